package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	"github.com/yungbote/docsearch-backend/internal/pkg/httpx"
	"github.com/yungbote/docsearch-backend/internal/platform/envutil"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
	"github.com/yungbote/docsearch-backend/internal/temporalx"
	"github.com/yungbote/docsearch-backend/internal/temporalx/jobrun"
)

type Options struct {
	Concurrency int
	StaleAfter  time.Duration
}

// Runner hosts the job_run workflow and its activity on the task queue.
type Runner struct {
	log  *logger.Logger
	tc   temporalsdkclient.Client
	cfg  temporalx.Config
	opts Options
	acts *jobrun.Activities
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, cfg temporalx.Config, jobs repos.JobRunRepo, exec jobrun.Executor, opts Options) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if jobs == nil || exec == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	return &Runner{
		log:  log.With("component", "TemporalWorker"),
		tc:   tc,
		cfg:  cfg,
		opts: opts,
		acts: &jobrun.Activities{Log: log, Jobs: jobs, Exec: exec, StaleAfter: opts.StaleAfter},
	}, nil
}

// Start polls the task queue until ctx is done. Startup is retried for a
// while because Temporal often comes up after the API in local stacks.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	maxWait := envutil.Duration("TEMPORAL_WORKER_START_MAX_WAIT", time.Minute)
	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) && r.cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if maxWait <= 0 || time.Now().After(deadline) {
			return fmt.Errorf("temporal worker start (namespace=%s): %w", r.cfg.Namespace, startErr)
		}
		r.log.Warn("Temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)
		if err := httpx.Sleep(ctx, httpx.Backoff(250*time.Millisecond, 5*time.Second, attempt)); err != nil {
			return err
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.opts.Concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.opts.Concurrency,
	})
	w.RegisterWorkflowWithOptions(jobrun.Workflow, workflow.RegisterOptions{Name: jobrun.WorkflowName})
	w.RegisterActivityWithOptions(r.acts.Execute, activity.RegisterOptions{Name: jobrun.ActivityExecute})
	return w
}
