package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BatchStatusOpen       = "open"
	BatchStatusProcessing = "processing"
	BatchStatusDone       = "completed"
	BatchStatusPartial    = "completed_with_failures"
)

// BatchJob groups documents uploaded together and counts their outcomes.
type BatchJob struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	Status         string    `gorm:"column:status;not null;index" json:"status"`
	TotalCount     int       `gorm:"column:total_count;not null;default:0" json:"total_count"`
	CompletedCount int       `gorm:"column:completed_count;not null;default:0" json:"completed_count"`
	FailedCount    int       `gorm:"column:failed_count;not null;default:0" json:"failed_count"`
	CreatedAt      time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (BatchJob) TableName() string { return "batch_job" }

func (b *BatchJob) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
