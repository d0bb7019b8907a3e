package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EmbeddingDim is the width of the vector(1536) embedding columns.
const EmbeddingDim = 1536

type Document struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BatchJobID *uuid.UUID `gorm:"type:uuid;column:batch_job_id;index" json:"batch_job_id,omitempty"`

	Filename   string    `gorm:"column:filename;not null;index" json:"filename"`
	BlobHandle string    `gorm:"column:blob_handle;not null" json:"blob_handle"`
	MimeType   string    `gorm:"column:mime_type;not null" json:"mime_type"`
	ByteSize   int64     `gorm:"column:byte_size;not null;default:0" json:"byte_size"`
	PageCount  int       `gorm:"column:page_count;not null;default:0" json:"page_count"`
	UploadedAt time.Time `gorm:"column:uploaded_at;not null;index" json:"uploaded_at"`

	Status          string         `gorm:"column:status;not null;index" json:"status"`
	StatusChangedAt time.Time      `gorm:"column:status_changed_at;not null;index" json:"status_changed_at"`
	ActiveJobID     *uuid.UUID     `gorm:"type:uuid;column:active_job_id" json:"active_job_id,omitempty"`
	CompletedStage  string         `gorm:"column:completed_stage" json:"completed_stage,omitempty"`
	ProcessingMS    int64          `gorm:"column:processing_ms;not null;default:0" json:"processing_ms"`
	LowConfidence   bool           `gorm:"column:low_confidence;not null;default:false" json:"low_confidence"`
	VisualSummary   string         `gorm:"column:visual_summary;type:text" json:"visual_summary,omitempty"`
	ErrorSummary    datatypes.JSON `gorm:"column:error_summary;type:jsonb" json:"error_summary,omitempty"`

	// Denormalized filter attributes, written by the analysis and taxonomy stages.
	DocumentType    string `gorm:"column:document_type;index" json:"document_type,omitempty"`
	Year            *int   `gorm:"column:year;index" json:"year,omitempty"`
	Location        string `gorm:"column:location;index" json:"location,omitempty"`
	PrimaryCategory string `gorm:"column:primary_category;index" json:"primary_category,omitempty"`
	Subcategory     string `gorm:"column:subcategory;index" json:"subcategory,omitempty"`

	Embedding *pgvector.Vector `gorm:"column:embedding;type:vector(1536)" json:"-"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Document) TableName() string { return "document" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

func (d *Document) LastError() *ErrorSummary {
	if d == nil {
		return nil
	}
	return DecodeErrorSummary(d.ErrorSummary)
}
