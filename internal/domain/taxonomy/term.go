package taxonomy

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaxonomyTerm is one node of the controlled vocabulary. The triple
// (primary_category, subcategory, term) is its unique path.
type TaxonomyTerm struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ParentID        *uuid.UUID `gorm:"type:uuid;column:parent_id;index" json:"parent_id,omitempty"`
	PrimaryCategory string     `gorm:"column:primary_category;not null;uniqueIndex:idx_taxonomy_term_path,priority:1" json:"primary_category"`
	Subcategory     string     `gorm:"column:subcategory;not null;default:'';uniqueIndex:idx_taxonomy_term_path,priority:2" json:"subcategory"`
	Term            string     `gorm:"column:term;not null;uniqueIndex:idx_taxonomy_term_path,priority:3" json:"term"`
	SpecificTerm    *string    `gorm:"column:specific_term" json:"specific_term,omitempty"`
	Description     string     `gorm:"column:description;type:text" json:"description,omitempty"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

func (TaxonomyTerm) TableName() string { return "taxonomy_term" }

func (t *TaxonomyTerm) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = TermID(t.PrimaryCategory, t.Subcategory, t.Term)
	}
	return nil
}

// Path returns the distinct non-empty segments primary > subcategory > term.
func (t *TaxonomyTerm) Path() []string {
	out := make([]string, 0, 3)
	for _, seg := range []string{t.PrimaryCategory, t.Subcategory, t.Term} {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if len(out) > 0 && strings.EqualFold(out[len(out)-1], seg) {
			continue
		}
		out = append(out, seg)
	}
	return out
}

var termNamespace = uuid.MustParse("6f1c2d8e-4b0a-4f4e-9a57-1d2c3b4a5e6f")

// TermID derives a stable id from a term path, so reseeding is idempotent.
// Segments are compared in NormalizeTerm form: two paths share an id exactly
// when they collide in the vocabulary tree.
func TermID(primary, subcategory, term string) uuid.UUID {
	key := NormalizeTerm(primary) + "\x1f" + NormalizeTerm(subcategory) + "\x1f" + NormalizeTerm(term)
	return uuid.NewSHA1(termNamespace, []byte(key))
}

// NormalizeTerm lowercases s, collapses whitespace and strips punctuation
// from the edges of every word. Inner punctuation ("e-mail", "u.s") survives.
func NormalizeTerm(s string) string {
	return strings.Join(TermWords(s), " ")
}

// TermWords returns the normalized words of s, dropping words that were
// nothing but punctuation.
func TermWords(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
