package jobrun

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"gorm.io/datatypes"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	"github.com/yungbote/docsearch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
)

func TestWorkflowPollsUntilTerminal(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	jobID := uuid.NewString()
	env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: jobID})

	calls := 0
	env.RegisterActivityWithOptions(func(ctx context.Context, id string) (TickResult, error) {
		calls++
		if id != jobID {
			t.Errorf("activity job id: want=%s got=%s", jobID, id)
		}
		if calls < 3 {
			return TickResult{JobID: id, Status: "queued"}, nil
		}
		return TickResult{JobID: id, Status: "failed"}, nil
	}, activity.RegisterOptions{Name: ActivityExecute})

	env.ExecuteWorkflow(Workflow)

	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("a failed document must not fail the workflow: %v", err)
	}
	if calls != 3 {
		t.Fatalf("activity calls: want=3 got=%d", calls)
	}
}

func TestWorkflowSurfacesActivityError(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: uuid.NewString()})

	env.RegisterActivityWithOptions(func(ctx context.Context, id string) (TickResult, error) {
		return TickResult{}, temporal.NewNonRetryableApplicationError("db down", "store", nil)
	}, activity.RegisterOptions{Name: ActivityExecute})

	env.ExecuteWorkflow(Workflow)

	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	if env.GetWorkflowError() == nil {
		t.Fatalf("expected workflow error")
	}
}

func TestTickResultTerminal(t *testing.T) {
	for status, want := range map[string]bool{
		"queued":    false,
		"running":   false,
		"succeeded": true,
		"failed":    true,
		"canceled":  true,
	} {
		if got := (TickResult{Status: status}).Terminal(); got != want {
			t.Fatalf("Terminal(%s): want=%v got=%v", status, want, got)
		}
	}
}

type succeedingExecutor struct {
	repo repos.JobRunRepo
	ran  int
}

func (e *succeedingExecutor) Execute(ctx context.Context, job *types.JobRun) {
	e.ran++
	_, _ = e.repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, job.ID, []string{types.JobStatusCanceled}, map[string]interface{}{
		"status":     types.JobStatusSucceeded,
		"stage":      "done",
		"progress":   100,
		"updated_at": time.Now().UTC(),
	})
}

func TestActivityClaimsAndReportsStatus(t *testing.T) {
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	repo := repos.NewJobRunRepo(db, log)
	ctx := context.Background()

	now := time.Now().UTC()
	entity := uuid.New()
	job := &types.JobRun{
		ID:         uuid.New(),
		JobType:    types.JobTypeDocumentProcess,
		EntityType: types.EntityTypeDocument,
		EntityID:   &entity,
		Status:     types.JobStatusQueued,
		Payload:    datatypes.JSON([]byte("{}")),
		Result:     datatypes.JSON([]byte("{}")),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := repo.Create(dbctx.Context{Ctx: ctx}, []*types.JobRun{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	exec := &succeedingExecutor{repo: repo}
	acts := &Activities{Log: log, Jobs: repo, Exec: exec, StaleAfter: time.Minute}

	res, err := acts.Execute(ctx, job.ID.String())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if exec.ran != 1 || res.Status != types.JobStatusSucceeded || !res.Terminal() {
		t.Fatalf("first tick: ran=%d status=%s", exec.ran, res.Status)
	}

	// Replays of a finished job report the row without running it again.
	res, err = acts.Execute(ctx, job.ID.String())
	if err != nil {
		t.Fatalf("Execute replay: %v", err)
	}
	if exec.ran != 1 || res.Status != types.JobStatusSucceeded {
		t.Fatalf("replay: ran=%d status=%s", exec.ran, res.Status)
	}

	if _, err := acts.Execute(ctx, "not-a-uuid"); err == nil {
		t.Fatalf("Execute: expected error for invalid id")
	}
}
