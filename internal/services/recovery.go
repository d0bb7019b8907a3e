package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	apperr "github.com/yungbote/docsearch-backend/internal/pkg/errors"
	"github.com/yungbote/docsearch-backend/internal/pkg/httpx"
	"github.com/yungbote/docsearch-backend/internal/platform/blob"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

const (
	ActionRetry      = "retry"
	ActionMarkFailed = "markFailed"
	ActionDelete     = "delete"
)

// Per-document outcomes of a recovery call.
const (
	OutcomeSubmitted      = "submitted"
	OutcomeMarkedFailed   = "marked_failed"
	OutcomeDeleted        = "deleted"
	OutcomeAlreadyRunning = "already_in_flight"
	OutcomeNotFound       = "not_found"
	OutcomeInvalidState   = "invalid_state"
	OutcomeError          = "error"
)

func ValidAction(a string) bool {
	return a == ActionRetry || a == ActionMarkFailed || a == ActionDelete
}

type RecoveryOutcome struct {
	DocumentID uuid.UUID  `json:"document_id"`
	Outcome    string     `json:"outcome"`
	JobID      *uuid.UUID `json:"job_id,omitempty"`
	Batch      int        `json:"batch,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type ReprocessRequest struct {
	Filter    repos.FailedFilter
	BatchSize int
	Delay     time.Duration
}

type ReprocessReport struct {
	Batches  int               `json:"batches"`
	Selected int               `json:"selected"`
	Outcomes []RecoveryOutcome `json:"outcomes"`
}

type BlobDeleter interface {
	Delete(ctx context.Context, handle string) error
}

type RecoveryService interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
	ListFailed(ctx context.Context, filter repos.FailedFilter) ([]*types.Document, error)
	ListStuck(ctx context.Context, olderThan time.Duration, limit int) ([]*types.Document, error)
	Recover(ctx context.Context, ids []uuid.UUID, action string) ([]RecoveryOutcome, error)
	ReprocessBatch(ctx context.Context, req ReprocessRequest) (*ReprocessReport, error)
}

type RecoveryConfig struct {
	// MaxInflight caps queued+running jobs across the system while batches are submitted.
	MaxInflight int
	// CapacityPoll is how often a saturated batch rechecks the queue.
	CapacityPoll time.Duration
	// Sleep is replaceable in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

type recoveryService struct {
	db        *gorm.DB
	log       *logger.Logger
	docs      repos.DocumentRepo
	jobRuns   repos.JobRunRepo
	documents DocumentService
	jobs      JobService
	blobs     BlobDeleter
	notify    DocumentNotifier
	cfg       RecoveryConfig
}

func NewRecoveryService(
	db *gorm.DB,
	baseLog *logger.Logger,
	docs repos.DocumentRepo,
	jobRuns repos.JobRunRepo,
	documents DocumentService,
	jobs JobService,
	blobs BlobDeleter,
	notify DocumentNotifier,
	cfg RecoveryConfig,
) RecoveryService {
	if cfg.CapacityPoll <= 0 {
		cfg.CapacityPoll = 2 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = httpx.Sleep
	}
	return &recoveryService{
		db:        db,
		log:       baseLog.With("service", "RecoveryService"),
		docs:      docs,
		jobRuns:   jobRuns,
		documents: documents,
		jobs:      jobs,
		blobs:     blobs,
		notify:    notify,
		cfg:       cfg,
	}
}

func (s *recoveryService) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return s.docs.CountByStatus(dbctx.New(ctx))
}

func (s *recoveryService) ListFailed(ctx context.Context, filter repos.FailedFilter) ([]*types.Document, error) {
	return s.docs.ListFailed(dbctx.New(ctx), filter)
}

func (s *recoveryService) ListStuck(ctx context.Context, olderThan time.Duration, limit int) ([]*types.Document, error) {
	if olderThan <= 0 {
		return nil, fmt.Errorf("%w: older_than must be positive", apperr.ErrInvalidArgument)
	}
	return s.docs.ListStuck(dbctx.New(ctx), time.Now().Add(-olderThan), limit)
}

// Recover applies action to every id and reports one outcome per id. Errors
// on individual documents are reported in the outcome, not returned.
func (s *recoveryService) Recover(ctx context.Context, ids []uuid.UUID, action string) ([]RecoveryOutcome, error) {
	if !ValidAction(action) {
		return nil, fmt.Errorf("%w: unknown action %q", apperr.ErrInvalidArgument, action)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: document_ids is required", apperr.ErrInvalidArgument)
	}
	out := make([]RecoveryOutcome, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var o RecoveryOutcome
		switch action {
		case ActionRetry:
			o = s.retry(ctx, id)
		case ActionMarkFailed:
			o = s.markFailed(ctx, id)
		case ActionDelete:
			o = s.delete(ctx, id)
		}
		s.log.Info("recovery action", "document_id", id, "action", action, "outcome", o.Outcome)
		out = append(out, o)
	}
	return out, nil
}

func (s *recoveryService) retry(ctx context.Context, id uuid.UUID) RecoveryOutcome {
	job, err := s.documents.Enqueue(ctx, id, SubmitOptions{
		FromStatuses: []string{types.DocumentStatusPending, types.DocumentStatusFailed},
		Reason:       "recover",
	})
	return submitOutcome(id, job, err)
}

func submitOutcome(id uuid.UUID, job *types.JobRun, err error) RecoveryOutcome {
	o := RecoveryOutcome{DocumentID: id}
	switch {
	case err == nil:
		o.Outcome = OutcomeSubmitted
		o.JobID = &job.ID
	case errors.Is(err, apperr.ErrAlreadyInFlight):
		o.Outcome = OutcomeAlreadyRunning
	case errors.Is(err, apperr.ErrNotFound):
		o.Outcome = OutcomeNotFound
	case errors.Is(err, apperr.ErrInvalidTransition):
		o.Outcome = OutcomeInvalidState
		o.Error = err.Error()
	default:
		o.Outcome = OutcomeError
		o.Error = err.Error()
	}
	return o
}

// markFailed cancels any active job and forces FAILED. A worker mid-stage
// loses its ownership and discards its next commit.
func (s *recoveryService) markFailed(ctx context.Context, id uuid.UUID) RecoveryOutcome {
	o := RecoveryOutcome{DocumentID: id}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		doc, err := s.docs.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return apperr.ErrNotFound
		}
		if _, err := s.jobs.CancelForEntity(dbc, types.EntityTypeDocument, id, "marked failed by operator"); err != nil {
			return err
		}
		summary := types.ErrorSummary{
			Stage:      types.StageRecovery,
			Message:    "marked failed by operator",
			OccurredAt: time.Now().UTC(),
		}
		if prev := doc.LastError(); prev != nil && doc.Status == types.DocumentStatusFailed {
			summary.Message = "marked failed by operator (previous: " + prev.Stage + ": " + prev.Message + ")"
		}
		_, err = s.docs.ForceStatus(dbc, id, types.DocumentStatusFailed, map[string]interface{}{
			"error_summary": summary.JSON(),
		})
		return err
	})
	switch {
	case err == nil:
		o.Outcome = OutcomeMarkedFailed
		if s.notify != nil {
			s.notify.DocumentStatus(ctx, id, nil, types.DocumentStatusFailed, types.StageRecovery, "marked failed by operator")
		}
	case errors.Is(err, apperr.ErrNotFound):
		o.Outcome = OutcomeNotFound
	default:
		o.Outcome = OutcomeError
		o.Error = err.Error()
	}
	return o
}

func (s *recoveryService) delete(ctx context.Context, id uuid.UUID) RecoveryOutcome {
	o := RecoveryOutcome{DocumentID: id}
	var handle string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		doc, err := s.docs.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return apperr.ErrNotFound
		}
		handle = doc.BlobHandle
		if _, err := s.jobs.CancelForEntity(dbc, types.EntityTypeDocument, id, "document deleted by operator"); err != nil {
			return err
		}
		_, err = s.docs.DeleteCascade(dbc, []uuid.UUID{id})
		return err
	})
	switch {
	case err == nil:
		o.Outcome = OutcomeDeleted
	case errors.Is(err, apperr.ErrNotFound):
		o.Outcome = OutcomeNotFound
		return o
	default:
		o.Outcome = OutcomeError
		o.Error = err.Error()
		return o
	}
	if s.blobs != nil && handle != "" {
		if err := s.blobs.Delete(ctx, handle); err != nil && !errors.Is(err, blob.ErrNotFound) {
			s.log.Warn("blob delete failed after document delete", "document_id", id, "handle", handle, "error", err)
		}
	}
	return o
}

// ReprocessBatch resubmits FAILED documents matching the filter in batches of
// BatchSize, sleeping Delay between batches. Before each batch it waits until
// the system has room for the whole batch under MaxInflight.
func (s *recoveryService) ReprocessBatch(ctx context.Context, req ReprocessRequest) (*ReprocessReport, error) {
	if req.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch_size must be positive", apperr.ErrInvalidArgument)
	}
	if req.Delay < 0 {
		return nil, fmt.Errorf("%w: delay_seconds must not be negative", apperr.ErrInvalidArgument)
	}
	failed, err := s.docs.ListFailed(dbctx.New(ctx), req.Filter)
	if err != nil {
		return nil, err
	}
	report := &ReprocessReport{Selected: len(failed), Outcomes: make([]RecoveryOutcome, 0, len(failed))}
	for start := 0; start < len(failed); start += req.BatchSize {
		end := start + req.BatchSize
		if end > len(failed) {
			end = len(failed)
		}
		if start > 0 && req.Delay > 0 {
			if err := s.cfg.Sleep(ctx, req.Delay); err != nil {
				return report, err
			}
		}
		if err := s.waitForCapacity(ctx, end-start); err != nil {
			return report, err
		}
		report.Batches++
		for _, doc := range failed[start:end] {
			job, err := s.documents.Enqueue(ctx, doc.ID, SubmitOptions{
				FromStatuses:    []string{types.DocumentStatusFailed},
				ResetCheckpoint: true,
				Reason:          "reprocess_batch",
			})
			o := submitOutcome(doc.ID, job, err)
			o.Batch = report.Batches
			report.Outcomes = append(report.Outcomes, o)
		}
		s.log.Info("reprocess batch submitted", "batch", report.Batches, "size", end-start, "selected", len(failed))
	}
	return report, nil
}

func (s *recoveryService) waitForCapacity(ctx context.Context, need int) error {
	if s.cfg.MaxInflight <= 0 {
		return nil
	}
	if need > s.cfg.MaxInflight {
		need = s.cfg.MaxInflight
	}
	for {
		active, err := s.jobRuns.CountActive(dbctx.New(ctx))
		if err != nil {
			return err
		}
		if int(active)+need <= s.cfg.MaxInflight {
			return nil
		}
		s.log.Debug("waiting for job capacity", "active", active, "need", need, "max_inflight", s.cfg.MaxInflight)
		if err := s.cfg.Sleep(ctx, s.cfg.CapacityPoll); err != nil {
			return err
		}
	}
}
