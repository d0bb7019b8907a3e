package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AnalysisResult holds the structured interpretation of a document. There is
// at most one row per document; reprocessing overwrites it in place.
type AnalysisResult struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;column:document_id;not null;uniqueIndex" json:"document_id"`

	Summary            string  `gorm:"column:summary;type:text;not null" json:"summary"`
	VisualAnalysis     string  `gorm:"column:visual_analysis;type:text" json:"visual_analysis,omitempty"`
	ContentAnalysis    string  `gorm:"column:content_analysis;type:text" json:"content_analysis,omitempty"`
	ConfidenceScore    float64 `gorm:"column:confidence_score;not null;default:0" json:"confidence_score"`
	DocumentType       string  `gorm:"column:document_type;index" json:"document_type,omitempty"`
	Tone               string  `gorm:"column:tone" json:"tone,omitempty"`
	CommunicationFocus string  `gorm:"column:communication_focus" json:"communication_focus,omitempty"`

	ContextTags    datatypes.JSON `gorm:"column:context_tags;type:jsonb" json:"context_tags,omitempty"`
	Entities       datatypes.JSON `gorm:"column:entities;type:jsonb" json:"entities,omitempty"`
	DesignElements datatypes.JSON `gorm:"column:design_elements;type:jsonb" json:"design_elements,omitempty"`
	Keywords       datatypes.JSON `gorm:"column:keywords;type:jsonb" json:"keywords,omitempty"`

	Fallback       bool   `gorm:"column:fallback;not null;default:false" json:"fallback"`
	FallbackReason string `gorm:"column:fallback_reason" json:"fallback_reason,omitempty"`

	Embedding *pgvector.Vector `gorm:"column:embedding;type:vector(1536)" json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (AnalysisResult) TableName() string { return "analysis_result" }

func (a *AnalysisResult) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
