package search

import (
	"time"

	"github.com/google/uuid"
)

// Filter restricts the searchable population before ranking.
type Filter struct {
	DocumentType    string `json:"document_type,omitempty"`
	Year            *int   `json:"year,omitempty"`
	Location        string `json:"location,omitempty"`
	PrimaryCategory string `json:"primary_category,omitempty"`
	Subcategory     string `json:"subcategory,omitempty"`
}

// FieldWeights scale the per-field text rank before summing.
type FieldWeights struct {
	Filename float64
	Body     float64
	Summary  float64
}

// KeywordQuery is a full-text lookup; Expansions are OR'ed into Text.
type KeywordQuery struct {
	Text       string
	Expansions []string
	Filter     Filter
	Weights    FieldWeights
	Limit      int
}

// VectorQuery is a nearest-neighbour lookup over document embeddings.
type VectorQuery struct {
	Vector []float32
	Filter Filter
	Limit  int
}

// Hit is a raw per-strategy score for one document.
type Hit struct {
	DocumentID uuid.UUID `gorm:"column:document_id"`
	Score      float64   `gorm:"column:score"`
}

// Card is the display projection of a searchable document.
type Card struct {
	DocumentID      uuid.UUID `gorm:"column:document_id" json:"document_id"`
	Filename        string    `gorm:"column:filename" json:"filename"`
	UploadedAt      time.Time `gorm:"column:uploaded_at" json:"uploaded_at"`
	DocumentType    string    `gorm:"column:document_type" json:"document_type,omitempty"`
	Year            *int      `gorm:"column:year" json:"year,omitempty"`
	Location        string    `gorm:"column:location" json:"location,omitempty"`
	PrimaryCategory string    `gorm:"column:primary_category" json:"primary_category,omitempty"`
	Subcategory     string    `gorm:"column:subcategory" json:"subcategory,omitempty"`
	PageCount       int       `gorm:"column:page_count" json:"page_count"`
	LowConfidence   bool      `gorm:"column:low_confidence" json:"low_confidence"`
	Summary         string    `gorm:"column:summary" json:"summary,omitempty"`
}
