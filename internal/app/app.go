package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/data/db"
	httpserver "github.com/yungbote/docsearch-backend/internal/http"
	"github.com/yungbote/docsearch-backend/internal/jobs/worker"
	"github.com/yungbote/docsearch-backend/internal/observability"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
	"github.com/yungbote/docsearch-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *httpserver.Server
	Metrics  *observability.Metrics

	worker       *worker.Worker
	temporal     *temporalworker.Runner
	pg           *db.PostgresService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// New wires the full process from cfg: database, clients, services, the job
// runner selected by JOB_RUNNER, and the HTTP server.
func New(ctx context.Context, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "docsearch",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	a.Metrics = observability.Init(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a.pg = pg
	a.DB = pg.DB()
	if err := db.Migrate(a.DB, cfg.Migrate); err != nil {
		a.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Clients = clients
	a.Repos = wireRepos(a.DB, log)
	a.Services, err = wireServices(a.DB, log, cfg, a.Repos, a.Clients)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.wireRunner(); err != nil {
		a.Close()
		return nil, err
	}

	a.Server, err = wireServer(a.DB, log, cfg, a.Services, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wireRunner() error {
	cfg := a.Cfg
	switch cfg.JobRunner {
	case RunnerNone:
		a.Log.Info("JOB_RUNNER=none; this process only serves the API")
		return nil
	case RunnerWorker, RunnerTemporal:
	default:
		return fmt.Errorf("unknown JOB_RUNNER %q", cfg.JobRunner)
	}

	a.worker = worker.NewWorker(a.DB, a.Log, a.Repos.JobRun, a.Services.Registry, a.Services.Notifier, cfg.Worker)
	if cfg.JobRunner == RunnerWorker {
		return nil
	}
	runner, err := temporalworker.NewRunner(a.Log, a.Clients.Temporal, cfg.Temporal, a.Repos.JobRun, a.worker, temporalworker.Options{
		Concurrency: cfg.Worker.Concurrency,
		StaleAfter:  cfg.Worker.StaleAfter,
	})
	if err != nil {
		return fmt.Errorf("init temporal worker: %w", err)
	}
	a.temporal = runner
	return nil
}

// Start launches the job runner and the metrics listener in the background.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Metrics != nil {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	}
	switch {
	case a.temporal != nil:
		return a.temporal.Start(ctx)
	case a.worker != nil:
		return a.worker.Start(ctx)
	}
	return nil
}

// Run serves HTTP on addr until ctx is canceled, then drains in-flight
// requests and running jobs.
func (a *App) Run(ctx context.Context, addr string) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", addr)
		return a.Server.Run(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		defer cancel()
		err := a.Server.Shutdown(shutdownCtx)
		if a.cancel != nil {
			a.cancel()
		}
		if a.worker != nil {
			a.worker.Wait()
		}
		return err
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
