package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExtractedText is one page of recognized text plus the fields derived from it.
type ExtractedText struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;column:document_id;not null;uniqueIndex:idx_extracted_text_doc_page,priority:1" json:"document_id"`
	PageNumber int       `gorm:"column:page_number;not null;uniqueIndex:idx_extracted_text_doc_page,priority:2" json:"page_number"`

	RawText    string  `gorm:"column:raw_text;type:text;not null" json:"raw_text"`
	Confidence float64 `gorm:"column:confidence;not null;default:0" json:"confidence"`

	MainMessage    string         `gorm:"column:main_message;type:text" json:"main_message,omitempty"`
	SupportingText string         `gorm:"column:supporting_text;type:text" json:"supporting_text,omitempty"`
	CallToAction   string         `gorm:"column:call_to_action;type:text" json:"call_to_action,omitempty"`
	NamedEntities  datatypes.JSON `gorm:"column:named_entities;type:jsonb" json:"named_entities,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ExtractedText) TableName() string { return "extracted_text" }

func (e *ExtractedText) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
