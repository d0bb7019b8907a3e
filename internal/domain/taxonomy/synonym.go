package taxonomy

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TermSynonym struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TermID    uuid.UUID `gorm:"type:uuid;column:term_id;not null;uniqueIndex:idx_term_synonym_term_value,priority:1" json:"term_id"`
	Synonym   string    `gorm:"column:synonym;not null;uniqueIndex:idx_term_synonym_term_value,priority:2" json:"synonym"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (TermSynonym) TableName() string { return "term_synonym" }

func (s *TermSynonym) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.NewSHA1(s.TermID, []byte(s.Synonym))
	}
	return nil
}
