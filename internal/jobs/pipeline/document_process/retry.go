package document_process

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/observability"
	"github.com/yungbote/docsearch-backend/internal/pkg/httpx"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

// stageError is the terminal failure of one stage.
type stageError struct {
	Stage     string
	Err       error
	Attempts  int
	Transient bool
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *stageError) Unwrap() error { return e.Err }

// isTransient reports failures worth another attempt: timeouts, dropped
// connections, throttling and 5xx answers from the oracles.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || httpx.IsRetryableError(err) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
			return true
		}
	}
	return false
}

// runStage computes stage under a per-attempt timeout, retrying transient
// failures with exponential backoff, then commits the output together with
// the checkpoint.
func (p *Pipeline) runStage(ctx context.Context, log *logger.Logger, st *runState, stage string) error {
	for attempt := 1; ; attempt++ {
		actx, cancel := context.WithTimeout(ctx, p.cfg.timeout(stage))
		started := time.Now()
		out, err := p.compute(actx, st, stage)
		cancel()

		if err == nil {
			if cerr := p.commit(ctx, st, stage, out); cerr != nil {
				observability.Current().ObserveStage(stage, "failed", time.Since(started))
				if errors.Is(cerr, errOwnershipLost) || ctx.Err() != nil {
					return cerr
				}
				return &stageError{Stage: stage, Err: cerr, Attempts: attempt}
			}
			observability.Current().ObserveStage(stage, "ok", time.Since(started))
			if out.apply != nil {
				out.apply(st)
			}
			log.Debug("stage committed", "stage", stage, "attempt", attempt, "elapsed", time.Since(started))
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		transient := isTransient(err)
		if !transient || attempt >= p.cfg.MaxAttempts {
			observability.Current().ObserveStage(stage, "failed", time.Since(started))
			return &stageError{Stage: stage, Err: err, Attempts: attempt, Transient: transient}
		}
		observability.Current().ObserveStage(stage, "retry", time.Since(started))
		wait := httpx.Backoff(p.cfg.BackoffBase, p.cfg.BackoffMax, attempt)
		log.Warn("stage attempt failed; retrying",
			"stage", stage,
			"attempt", attempt,
			"backoff", wait,
			"error", err,
		)
		if err := p.deps.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// commit writes the stage output and advances completed_stage in one
// transaction, provided this job still owns the document.
func (p *Pipeline) commit(ctx context.Context, st *runState, stage string, out *stageOutput) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		updates := map[string]interface{}{}
		for k, v := range out.doc {
			updates[k] = v
		}
		updates["completed_stage"] = stage
		ok, err := p.deps.Documents.UpdateIfActive(dbc, st.doc.ID, st.jobID, updates)
		if err != nil {
			return err
		}
		if !ok {
			return errOwnershipLost
		}
		if out.write != nil {
			return out.write(dbc)
		}
		return nil
	})
}
