package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/jobs/runtime"
	"github.com/yungbote/docsearch-backend/internal/observability"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
	"github.com/yungbote/docsearch-backend/internal/services"
)

type Config struct {
	// Concurrency is the number of jobs this process runs at once.
	Concurrency int
	// MaxInflight caps running jobs across every worker process; 0 disables the cap.
	MaxInflight    int
	PollInterval   time.Duration
	StaleAfter     time.Duration
	HeartbeatEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = c.StaleAfter / 4
	}
	return c
}

// Worker claims queued job_run rows and executes them on a bounded pool.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	cfg      Config

	pool *ants.Pool
	wg   sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify services.JobNotifier, cfg Config) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		cfg:      cfg.withDefaults(),
	}
}

// Start launches the poll loop. It returns once the pool exists; the loop
// stops when ctx is done. Wait blocks until running jobs return.
func (w *Worker) Start(ctx context.Context) error {
	pool, err := ants.NewPool(w.cfg.Concurrency, ants.WithNonblocking(true))
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	w.pool = pool
	w.log.Info("Starting job worker pool",
		"concurrency", w.cfg.Concurrency,
		"max_inflight", w.cfg.MaxInflight,
		"stale_after", w.cfg.StaleAfter.String(),
	)
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Worker) Wait() {
	w.wg.Wait()
	if w.pool != nil {
		w.pool.Release()
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped")
			return
		case <-ticker.C:
			for w.pool.Free() > 0 {
				job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxInflight, w.cfg.StaleAfter)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "error", err)
					break
				}
				if job == nil {
					break
				}
				w.wg.Add(1)
				if err := w.pool.Submit(func() {
					defer w.wg.Done()
					w.Execute(ctx, job)
				}); err != nil {
					w.wg.Done()
					w.log.Warn("pool rejected claimed job; releasing", "job_id", job.ID, "error", err)
					runtime.NewContext(ctx, w.db, job, w.repo, w.notify).Release("worker pool saturated")
					break
				}
			}
		}
	}
}

// RunOnce claims and executes at most one job on the calling goroutine.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.MaxInflight, w.cfg.StaleAfter)
	if err != nil || job == nil {
		return false, err
	}
	w.Execute(ctx, job)
	return true, nil
}

// Execute runs one claimed job with a heartbeat and panic recovery.
func (w *Worker) Execute(ctx context.Context, job *types.JobRun) {
	start := time.Now()
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
	log := w.log.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		log.Warn("No handler registered for job_type")
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go func() {
		t := time.NewTicker(w.cfg.HeartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				jc.Heartbeat()
			}
		}
	}()

	status := "ok"
	func() {
		defer func() {
			if r := recover(); r != nil {
				status = "panic"
				log.Error("Job handler panic", "panic", r)
				jc.Fail("panic", errFromRecover(r))
			}
		}()
		if runErr := h.Run(jc); runErr != nil {
			status = "error"
			if ctx.Err() != nil {
				// Shutdown: hand the row back instead of failing it.
				jc.Release("worker shutting down")
				status = "released"
				return
			}
			// Handlers normally settle the row themselves.
			jc.Fail("run", runErr)
		}
	}()
	observability.Current().ObserveJob(job.JobType, status, time.Since(start))
	log.Debug("job finished", "status", status, "duration_ms", time.Since(start).Milliseconds())
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
