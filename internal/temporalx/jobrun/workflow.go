package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"
)

const (
	pollInterval      = 5 * time.Second
	continueTickLimit = 500
)

// Workflow drives one job_run row, keyed by workflow id. It keeps executing
// until the row is terminal; a run released back to queued is picked up on
// the next tick.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    time.Minute,
	})

	for tick := 1; ; tick++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityExecute, jobID).Get(ctx, &out); err != nil {
			return err
		}
		if out.Terminal() {
			// A failed document is already recorded on its row; the workflow
			// itself succeeds so Temporal does not rerun the pipeline.
			return nil
		}
		if err := workflow.Sleep(ctx, pollInterval); err != nil {
			return err
		}
		if tick >= continueTickLimit {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
	}
}
