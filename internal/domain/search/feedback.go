package search

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SearchFeedback is a user's relevance judgment for one result of a query.
type SearchFeedback struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Query      string    `gorm:"column:query;type:text;not null" json:"query"`
	Mode       string    `gorm:"column:mode" json:"mode,omitempty"`
	DocumentID uuid.UUID `gorm:"type:uuid;column:document_id;not null;index" json:"document_id"`
	Relevant   bool      `gorm:"column:relevant;not null" json:"relevant"`
	Position   int       `gorm:"column:position;not null;default:0" json:"position"`
	Comment    string    `gorm:"column:comment;type:text" json:"comment,omitempty"`
	CreatedAt  time.Time `gorm:"not null;index" json:"created_at"`
}

func (SearchFeedback) TableName() string { return "search_feedback" }

func (f *SearchFeedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
