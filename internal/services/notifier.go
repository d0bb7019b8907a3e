package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
	"github.com/yungbote/docsearch-backend/internal/realtime"
	"github.com/yungbote/docsearch-backend/internal/realtime/bus"
)

// =========================
// Job notifier
// =========================

type JobNotifier interface {
	JobCreated(job *types.JobRun)
	JobProgress(job *types.JobRun, stage string, progress int, message string)
	JobFailed(job *types.JobRun, stage string, errorMessage string)
	JobDone(job *types.JobRun)
	JobCanceled(job *types.JobRun)
}

// =========================
// Document notifier
// =========================

type DocumentNotifier interface {
	DocumentStatus(ctx context.Context, documentID uuid.UUID, jobID *uuid.UUID, status, stage, message string)
}

// Notifier publishes job and document events on the bus. A nil bus makes
// every method a no-op.
type Notifier struct {
	log *logger.Logger
	bus bus.Bus
}

func NewNotifier(baseLog *logger.Logger, b bus.Bus) *Notifier {
	return &Notifier{log: baseLog.With("service", "Notifier"), bus: b}
}

func (n *Notifier) publish(ctx context.Context, ev realtime.Event) {
	if n == nil || n.bus == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := n.bus.Publish(ctx, ev); err != nil && n.log != nil {
		n.log.Warn("event publish failed", "type", ev.Type, "document_id", ev.DocumentID, "error", err)
	}
}

func (n *Notifier) DocumentStatus(ctx context.Context, documentID uuid.UUID, jobID *uuid.UUID, status, stage, message string) {
	n.publish(ctx, realtime.Event{
		Type:       realtime.EventDocumentStatus,
		DocumentID: documentID,
		JobID:      jobID,
		Status:     status,
		Stage:      stage,
		Message:    message,
	})
}

func (n *Notifier) jobEvent(evType string, job *types.JobRun, stage, message string) {
	if job == nil {
		return
	}
	ev := realtime.Event{
		Type:    evType,
		JobID:   &job.ID,
		Status:  job.Status,
		Stage:   stage,
		Message: message,
	}
	if job.EntityID != nil {
		ev.DocumentID = *job.EntityID
	}
	n.publish(context.Background(), ev)
}

func (n *Notifier) JobCreated(job *types.JobRun) {
	n.jobEvent(realtime.EventJobCreated, job, safeStage(job), "")
}

func (n *Notifier) JobProgress(job *types.JobRun, stage string, progress int, message string) {
	n.jobEvent(realtime.EventJobProgress, job, stage, message)
}

func (n *Notifier) JobFailed(job *types.JobRun, stage string, errorMessage string) {
	n.jobEvent(realtime.EventJobFailed, job, stage, errorMessage)
}

func (n *Notifier) JobDone(job *types.JobRun) {
	n.jobEvent(realtime.EventJobDone, job, safeStage(job), "")
}

func (n *Notifier) JobCanceled(job *types.JobRun) {
	n.jobEvent(realtime.EventJobCanceled, job, safeStage(job), "")
}

func safeStage(job *types.JobRun) string {
	if job == nil {
		return ""
	}
	return job.Stage
}
