package realtime

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventDocumentStatus = "document.status"

	EventJobCreated  = "job.created"
	EventJobProgress = "job.progress"
	EventJobFailed   = "job.failed"
	EventJobDone     = "job.done"
	EventJobCanceled = "job.canceled"
)

// Event is a document lifecycle notification fanned out to listeners.
type Event struct {
	Type       string     `json:"type"`
	DocumentID uuid.UUID  `json:"document_id"`
	JobID      *uuid.UUID `json:"job_id,omitempty"`
	Status     string     `json:"status"`
	Stage      string     `json:"stage,omitempty"`
	Message    string     `json:"message,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
