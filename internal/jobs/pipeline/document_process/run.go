package document_process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	jobrt "github.com/yungbote/docsearch-backend/internal/jobs/runtime"
	"github.com/yungbote/docsearch-backend/internal/observability"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

// errOwnershipLost means the document was recovered, deleted or claimed by
// another run while this one was working.
var errOwnershipLost = errors.New("document no longer owned by this job")

type result struct {
	DocumentID   string `json:"document_id"`
	Status       string `json:"status"`
	ResumedAfter string `json:"resumed_after,omitempty"`
	ProcessingMS int64  `json:"processing_ms"`
	Keywords     int    `json:"keywords"`
	Fallback     bool   `json:"fallback"`
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	docID, ok := jc.PayloadUUID(types.PayloadDocumentID)
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing document_id"))
		return nil
	}
	from := jc.PayloadStrings(types.PayloadFromStatuses)
	if len(from) == 0 {
		from = []string{types.DocumentStatusPending, types.DocumentStatusFailed}
	}
	reset := jc.PayloadBool(types.PayloadResetCheckpoint)
	log := p.log.With("document_id", docID, "job_id", jc.Job.ID)

	ctx, span := observability.StartSpan(jc.Ctx, "pipeline.document",
		attribute.String("document.id", docID.String()),
		attribute.String("job.id", jc.Job.ID.String()),
	)
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	claimed, err := p.deps.Documents.ClaimForJob(dbctx.Context{Ctx: ctx}, docID, jc.Job.ID, from, reset)
	if err != nil {
		spanErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		jc.Fail("claim", err)
		return nil
	}
	if !claimed {
		doc, _ := p.deps.Documents.GetByID(dbctx.Context{Ctx: ctx}, docID)
		if doc == nil {
			err = fmt.Errorf("document %s not found", docID)
		} else {
			err = fmt.Errorf("document %s is %s and cannot be claimed", docID, doc.Status)
		}
		spanErr = err
		log.Warn("claim rejected", "error", err)
		jc.Fail("claim", err)
		return nil
	}

	start := time.Now()
	doc, err := p.deps.Documents.GetByID(dbctx.Context{Ctx: ctx}, docID)
	if err != nil || doc == nil {
		if err == nil {
			err = errOwnershipLost
		}
		spanErr = err
		jc.Fail("claim", err)
		return nil
	}
	p.notifyStatus(ctx, doc, jc.Job.ID, types.DocumentStatusProcessing, "claimed", "")

	st, err := p.restore(ctx, doc, jc.Job.ID)
	if err != nil {
		spanErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.fail(ctx, jc, log, doc, &stageError{Stage: types.StageExtraction, Err: err, Attempts: 1}, start)
	}
	resumedAfter := ""
	if st.done >= 0 {
		resumedAfter = types.PipelineStages[st.done]
		log.Info("resuming from checkpoint", "completed_stage", resumedAfter)
	}

	for i, stage := range types.PipelineStages {
		if i <= st.done {
			continue
		}
		jc.Progress(stage, 5+i*95/len(types.PipelineStages), "Running "+stage)
		err := p.runStage(ctx, log, st, stage)
		if err == nil {
			st.done = i
			continue
		}
		spanErr = err
		switch {
		case errors.Is(err, errOwnershipLost):
			log.Info("run abandoned; document was recovered or deleted", "stage", stage)
			jc.Fail("canceled", err)
			return nil
		case ctx.Err() != nil:
			// Shutdown. The document stays PROCESSING under this job so the
			// stale reclaim resumes it from the last checkpoint.
			log.Info("run interrupted", "stage", stage, "error", ctx.Err())
			return ctx.Err()
		}
		var se *stageError
		if !errors.As(err, &se) {
			se = &stageError{Stage: stage, Err: err, Attempts: 1}
		}
		return p.fail(ctx, jc, log, st.doc, se, start)
	}

	return p.complete(ctx, jc, log, st, start, resumedAfter)
}

func (p *Pipeline) complete(ctx context.Context, jc *jobrt.Context, log *logger.Logger, st *runState, start time.Time, resumedAfter string) error {
	elapsed := time.Since(start).Milliseconds()
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := p.deps.Documents.UpdateIfActive(dbc, st.doc.ID, jc.Job.ID, map[string]interface{}{
			"status":        types.DocumentStatusCompleted,
			"active_job_id": nil,
			"processing_ms": elapsed,
			"error_summary": nil,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errOwnershipLost
		}
		if st.doc.BatchJobID != nil {
			return p.deps.Batches.RecordOutcome(dbc, *st.doc.BatchJobID, true)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errOwnershipLost) {
			jc.Fail("canceled", err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		jc.Fail("complete", err)
		return nil
	}
	observability.Current().IncDocumentOutcome("completed")
	p.notifyStatus(ctx, st.doc, jc.Job.ID, types.DocumentStatusCompleted, "done", "")
	log.Info("document processed", "processing_ms", elapsed, "keywords", st.keywords, "fallback", st.fallback)
	jc.Succeed("done", result{
		DocumentID:   st.doc.ID.String(),
		Status:       types.DocumentStatusCompleted,
		ResumedAfter: resumedAfter,
		ProcessingMS: elapsed,
		Keywords:     st.keywords,
		Fallback:     st.fallback,
	})
	return nil
}

// fail records the error summary on the document and settles the job.
func (p *Pipeline) fail(ctx context.Context, jc *jobrt.Context, log *logger.Logger, doc *types.Document, se *stageError, start time.Time) error {
	summary := types.ErrorSummary{
		Stage:      se.Stage,
		Message:    se.Err.Error(),
		OccurredAt: time.Now().UTC(),
		Attempts:   se.Attempts,
		Transient:  se.Transient,
	}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := p.deps.Documents.UpdateIfActive(dbc, doc.ID, jc.Job.ID, map[string]interface{}{
			"status":        types.DocumentStatusFailed,
			"active_job_id": nil,
			"processing_ms": time.Since(start).Milliseconds(),
			"error_summary": summary.JSON(),
		})
		if err != nil {
			return err
		}
		if !ok {
			return errOwnershipLost
		}
		if doc.BatchJobID != nil {
			return p.deps.Batches.RecordOutcome(dbc, *doc.BatchJobID, false)
		}
		return nil
	})
	if errors.Is(err, errOwnershipLost) {
		jc.Fail("canceled", err)
		return nil
	}
	if err != nil {
		// The document stays PROCESSING under this job; failing the run
		// leaves it for stuck detection instead of reporting a state that
		// was never written.
		log.Error("recording failure failed", "stage", se.Stage, "error", err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("record %s failure: %w", se.Stage, err)
	}
	observability.Current().IncDocumentOutcome("failed")
	p.notifyStatus(ctx, doc, jc.Job.ID, types.DocumentStatusFailed, se.Stage, summary.Message)
	log.Warn("document failed",
		"stage", se.Stage,
		"attempts", se.Attempts,
		"transient", se.Transient,
		"error", se.Err,
	)
	jc.Fail(se.Stage, se)
	return nil
}

func (p *Pipeline) notifyStatus(ctx context.Context, doc *types.Document, jobID uuid.UUID, status, stage, msg string) {
	if p.deps.Notify == nil || doc == nil {
		return
	}
	p.deps.Notify.DocumentStatus(ctx, doc.ID, &jobID, status, stage, msg)
}
