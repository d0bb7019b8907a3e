package documents

import (
	"time"

	"github.com/google/uuid"
)

const (
	MatchExact   = "exact"
	MatchSynonym = "synonym"
	MatchFuzzy   = "fuzzy"
)

// DocumentKeyword links a document to a taxonomy term with a relevance score.
type DocumentKeyword struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID     uuid.UUID `gorm:"type:uuid;column:document_id;not null;uniqueIndex:idx_document_keyword_doc_term,priority:1" json:"document_id"`
	TermID         uuid.UUID `gorm:"type:uuid;column:term_id;not null;uniqueIndex:idx_document_keyword_doc_term,priority:2;index" json:"term_id"`
	RelevanceScore float64   `gorm:"column:relevance_score;not null" json:"relevance_score"`
	MatchKind      string    `gorm:"column:match_kind;not null" json:"match_kind"`
	Candidate      string    `gorm:"column:candidate" json:"candidate,omitempty"`
	Rank           int       `gorm:"column:rank;not null;default:0" json:"rank"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

func (DocumentKeyword) TableName() string { return "document_keyword" }

// KeywordID derives a stable row id so identical reprocessing yields identical rows.
func KeywordID(documentID, termID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(documentID, termID[:])
}
