package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

// Executor runs one claimed job_run to completion.
type Executor interface {
	Execute(ctx context.Context, job *types.JobRun)
}

type Activities struct {
	Log        *logger.Logger
	Jobs       repos.JobRunRepo
	Exec       Executor
	StaleAfter time.Duration
}

// Execute claims the job named by the workflow and runs it. A row that is
// already terminal is reported as-is, so replays after a crash are no-ops.
func (a *Activities) Execute(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.Jobs == nil || a.Exec == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(res.JobID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id %q", jobID)
	}

	stale := a.StaleAfter
	if stale <= 0 {
		stale = 10 * time.Minute
	}
	job, err := a.Jobs.ClaimByID(dbctx.Context{Ctx: ctx}, id, stale)
	if err != nil {
		return res, err
	}
	if job != nil {
		stop := a.startHeartbeat(ctx)
		a.Exec.Execute(ctx, job)
		stop()
	}

	rows, err := a.Jobs.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{id})
	if err != nil {
		return res, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return res, fmt.Errorf("jobrun: job %s not found", id)
	}
	cur := rows[0]
	res.Status = cur.Status
	res.Stage = cur.Stage
	res.Progress = cur.Progress
	res.Message = cur.Message
	if job == nil && a.Log != nil && !res.Terminal() {
		a.Log.Debug("job not claimable yet", "job_id", id, "status", cur.Status)
	}
	return res, nil
}

func (a *Activities) startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
