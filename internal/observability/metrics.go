package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/envutil"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *Vec
	apiLatency  *HistogramVec
	apiInflight *Vec

	llmRequests *Vec
	llmLatency  *HistogramVec
	llmTokens   *Vec

	stageLatency     *HistogramVec
	stageRetries     *Vec
	documentOutcomes *Vec
	jobLatency       *HistogramVec

	searchRequests *Vec
	searchLatency  *HistogramVec

	queueDepth     *Vec
	documentStatus *Vec
	pgStats        *Vec
	redisUp        *Vec
	redisPing      *Vec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when metrics are disabled.
// Every method is nil-safe.
func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	slow := []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600}
	return &Metrics{
		apiRequests: NewCounterVec("ds_api_requests_total", "API requests by method/route/status.", "method", "route", "status"),
		apiLatency:  NewHistogramVec("ds_api_request_duration_seconds", "API request latency in seconds.", latency, "method", "route", "status"),
		apiInflight: NewGaugeVec("ds_api_inflight_requests", "In-flight API requests."),

		llmRequests: NewCounterVec("ds_llm_requests_total", "Oracle requests by model/endpoint/status.", "model", "endpoint", "status"),
		llmLatency:  NewHistogramVec("ds_llm_request_duration_seconds", "Oracle request latency in seconds.", slow, "model", "endpoint"),
		llmTokens:   NewCounterVec("ds_llm_tokens_total", "Oracle tokens by model/direction.", "model", "direction"),

		stageLatency:     NewHistogramVec("ds_pipeline_stage_duration_seconds", "Pipeline stage latency by stage/status.", slow, "stage", "status"),
		stageRetries:     NewCounterVec("ds_pipeline_stage_retries_total", "Transient stage failures that were retried.", "stage"),
		documentOutcomes: NewCounterVec("ds_pipeline_documents_total", "Finished pipeline runs by outcome.", "outcome"),
		jobLatency:       NewHistogramVec("ds_job_duration_seconds", "Job handler latency by type/status.", slow, "job_type", "status"),

		searchRequests: NewCounterVec("ds_search_requests_total", "Search requests by mode and degraded flag.", "mode", "degraded"),
		searchLatency:  NewHistogramVec("ds_search_duration_seconds", "Search latency in seconds.", latency, "mode"),

		queueDepth:     NewGaugeVec("ds_job_queue_depth", "Job runs by status.", "status"),
		documentStatus: NewGaugeVec("ds_documents_by_status", "Documents by status.", "status"),
		pgStats:        NewGaugeVec("ds_postgres_pool", "database/sql pool stats.", "stat"),
		redisUp:        NewGaugeVec("ds_redis_up", "Redis reachability (1/0)."),
		redisPing:      NewGaugeVec("ds_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.stageLatency, m.stageRetries, m.documentOutcomes, m.jobLatency,
		m.searchRequests, m.searchLatency,
		m.queueDepth, m.documentStatus, m.pgStats, m.redisUp, m.redisPing,
	}
	for _, pw := range all {
		if err := pw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(model, endpoint, status)
	m.llmLatency.Observe(dur.Seconds(), model, endpoint)
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

// ObserveStage records one attempt of a pipeline stage. status is ok, retry, or failed.
func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageLatency.Observe(dur.Seconds(), stage, status)
	if status == "retry" {
		m.stageRetries.Inc(stage)
	}
}

func (m *Metrics) IncDocumentOutcome(outcome string) {
	if m == nil {
		return
	}
	m.documentOutcomes.Inc(outcome)
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobLatency.Observe(dur.Seconds(), jobType, status)
}

func (m *Metrics) ObserveSearch(mode string, degraded bool, dur time.Duration) {
	if m == nil {
		return
	}
	flag := "false"
	if degraded {
		flag = "true"
	}
	m.searchRequests.Inc(mode, flag)
	m.searchLatency.Observe(dur.Seconds(), mode)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	m.every(ctx, func() {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("metrics: postgres stats unavailable", "error", err)
			}
			return
		}
		stats := sqlDB.Stats()
		m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
		m.pgStats.Set(float64(stats.InUse), "in_use")
		m.pgStats.Set(float64(stats.Idle), "idle")
		m.pgStats.Set(float64(stats.WaitCount), "wait_count")
		m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
		m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
	})
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	m.every(ctx, func() {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			if log != nil {
				log.Warn("metrics: redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}

// StartQueueCollector samples job_run and document status counts.
func (m *Metrics) StartQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	m.every(ctx, func() {
		if err := m.collectQueue(ctx, db); err != nil && log != nil {
			log.Warn("metrics: queue depth query failed", "error", err)
		}
	})
}

func (m *Metrics) collectQueue(ctx context.Context, db *gorm.DB) error {
	type row struct {
		Status string
		Count  int64
	}
	jobStatuses := []string{
		types.JobStatusQueued, types.JobStatusRunning, types.JobStatusSucceeded,
		types.JobStatusFailed, types.JobStatusCanceled,
	}
	for _, s := range jobStatuses {
		m.queueDepth.Set(0, s)
	}
	var jobs []row
	if err := db.WithContext(ctx).Model(&types.JobRun{}).
		Select("status, count(*) as count").Group("status").Scan(&jobs).Error; err != nil {
		return err
	}
	for _, r := range jobs {
		m.queueDepth.Set(float64(r.Count), r.Status)
	}

	for _, s := range types.DocumentStatuses {
		m.documentStatus.Set(0, s)
	}
	var docs []row
	if err := db.WithContext(ctx).Model(&types.Document{}).
		Select("status, count(*) as count").Group("status").Scan(&docs).Error; err != nil {
		return err
	}
	for _, r := range docs {
		m.documentStatus.Set(float64(r.Count), r.Status)
	}
	return nil
}

func (m *Metrics) every(ctx context.Context, fn func()) {
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}
