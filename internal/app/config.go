package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/docsearch-backend/internal/data/db"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/jobs/pipeline/document_process"
	"github.com/yungbote/docsearch-backend/internal/jobs/worker"
	"github.com/yungbote/docsearch-backend/internal/modules/search"
	"github.com/yungbote/docsearch-backend/internal/modules/taxonomy"
	"github.com/yungbote/docsearch-backend/internal/platform/envutil"
	"github.com/yungbote/docsearch-backend/internal/platform/gcp"
	"github.com/yungbote/docsearch-backend/internal/services"
	"github.com/yungbote/docsearch-backend/internal/temporalx"
)

const (
	RunnerWorker   = "worker"
	RunnerTemporal = "temporal"
	RunnerNone     = "none"
)

type Config struct {
	Port        string
	LogMode     string
	Environment string
	Version     string

	// JobRunner selects how queued jobs execute: the in-process worker pool,
	// Temporal, or nothing (API-only replica).
	JobRunner string
	Worker    worker.Config
	Pipeline  document_process.Config
	Temporal  temporalx.Config

	Upload   services.UploadLimits
	Recovery services.RecoveryConfig
	Migrate  db.MigrateOptions

	Search           search.Config
	TaxonomyScores   taxonomy.Scores
	TaxonomyCacheTTL time.Duration

	BlobBackend  string
	GCSBucket    string
	MaxImageSide int
	DocAI        gcp.DocAIConfig

	RedisAddr        string
	EventChannel     string
	QueryCacheTTL    time.Duration
	AdminJWTSecret   string
	AdminAPIKeyHash  string
	CORSOrigins      []string
	ShutdownTimeout  time.Duration
	TaxonomySeedPath string
	// MetricsAddr runs a dedicated metrics listener; /metrics on the API port is always served.
	MetricsAddr string
}

// Validate rejects settings the schema cannot hold. The embedding columns
// are created as vector(1536), so EMBEDDING_DIM cannot differ.
func (c Config) Validate() error {
	if c.Pipeline.EmbeddingDim != types.EmbeddingColumnDim {
		return fmt.Errorf("EMBEDDING_DIM=%d does not match the vector(%d) embedding columns",
			c.Pipeline.EmbeddingDim, types.EmbeddingColumnDim)
	}
	return nil
}

func LoadConfig() Config {
	pipe := document_process.DefaultConfig()
	pipe.MaxAttempts = envutil.Int("STAGE_MAX_ATTEMPTS", pipe.MaxAttempts)
	pipe.BackoffBase = envutil.Duration("STAGE_BACKOFF_BASE", pipe.BackoffBase)
	pipe.BackoffMax = envutil.Duration("STAGE_BACKOFF_MAX", pipe.BackoffMax)
	pipe.EmbeddingDim = envutil.Int("EMBEDDING_DIM", pipe.EmbeddingDim)
	pipe.EmbedTextRunes = envutil.Int("EMBED_TEXT_RUNES", pipe.EmbedTextRunes)
	timeouts := make(map[string]time.Duration, len(types.PipelineStages))
	for _, stage := range types.PipelineStages {
		key := "STAGE_TIMEOUT_" + strings.ToUpper(stage)
		timeouts[stage] = envutil.Duration(key, pipe.Timeouts[stage])
	}
	pipe.Timeouts = timeouts

	srch := search.DefaultConfig()
	srch.Weights.Keyword = envutil.Float("SEARCH_KEYWORD_WEIGHT", srch.Weights.Keyword)
	srch.Weights.Vector = envutil.Float("SEARCH_VECTOR_WEIGHT", srch.Weights.Vector)
	srch.FieldWeights.Filename = envutil.Float("SEARCH_FIELD_WEIGHT_FILENAME", srch.FieldWeights.Filename)
	srch.FieldWeights.Body = envutil.Float("SEARCH_FIELD_WEIGHT_BODY", srch.FieldWeights.Body)
	srch.FieldWeights.Summary = envutil.Float("SEARCH_FIELD_WEIGHT_SUMMARY", srch.FieldWeights.Summary)
	srch.CandidateLimit = envutil.Int("SEARCH_CANDIDATE_LIMIT", srch.CandidateLimit)
	srch.ExpansionLimit = envutil.Int("SEARCH_EXPANSION_LIMIT", srch.ExpansionLimit)

	scores := taxonomy.DefaultScores()
	scores.Exact = envutil.Float("TAXONOMY_EXACT_SCORE", scores.Exact)
	scores.Synonym = envutil.Float("TAXONOMY_SYNONYM_SCORE", scores.Synonym)
	scores.FuzzyCeiling = envutil.Float("TAXONOMY_FUZZY_CEILING_SCORE", scores.FuzzyCeiling)
	scores.Min = envutil.Float("TAXONOMY_MIN_SCORE", scores.Min)

	maxInflight := envutil.Int("MAX_INFLIGHT_JOBS", 0)

	return Config{
		Port:        envutil.String("PORT", "8080"),
		LogMode:     envutil.String("LOG_MODE", "development"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		JobRunner: strings.ToLower(envutil.String("JOB_RUNNER", RunnerWorker)),
		Worker: worker.Config{
			Concurrency:    envutil.Int("WORKER_CONCURRENCY", 4),
			MaxInflight:    maxInflight,
			PollInterval:   envutil.Duration("WORKER_POLL_INTERVAL", time.Second),
			StaleAfter:     envutil.Duration("STALE_JOB_AFTER", 10*time.Minute),
			HeartbeatEvery: envutil.Duration("WORKER_HEARTBEAT_EVERY", 15*time.Second),
		},
		Pipeline: pipe,
		Temporal: temporalx.LoadConfig(),

		Upload: services.UploadLimits{
			MaxBytes:     envutil.Int64("MAX_UPLOAD_BYTES", 50<<20),
			AllowedMimes: envutil.List("ALLOWED_MIME_TYPES", nil),
		},
		Recovery: services.RecoveryConfig{
			MaxInflight:  maxInflight,
			CapacityPoll: envutil.Duration("RECOVERY_CAPACITY_POLL", 2*time.Second),
		},
		Migrate: db.MigrateOptions{IVFFlatLists: envutil.Int("IVFFLAT_LISTS", 100)},

		Search:           srch,
		TaxonomyScores:   scores,
		TaxonomyCacheTTL: envutil.Duration("TAXONOMY_CACHE_TTL", 5*time.Minute),

		BlobBackend:  strings.ToLower(envutil.String("BLOB_BACKEND", BlobBackendGCS)),
		GCSBucket:    envutil.String("DOCUMENTS_GCS_BUCKET", ""),
		MaxImageSide: envutil.Int("OCR_MAX_IMAGE_SIDE", 4096),
		DocAI: gcp.DocAIConfig{
			ProjectID:        envutil.String("GCP_PROJECT_ID", ""),
			Location:         envutil.String("DOCUMENTAI_LOCATION", "us"),
			ProcessorID:      envutil.String("DOCUMENTAI_PROCESSOR_ID", ""),
			ProcessorVersion: envutil.String("DOCUMENTAI_PROCESSOR_VERSION", ""),
		},

		RedisAddr:        envutil.String("REDIS_ADDR", ""),
		EventChannel:     envutil.String("EVENTS_CHANNEL", "docsearch:events"),
		QueryCacheTTL:    envutil.Duration("QUERY_EMBED_CACHE_TTL", time.Hour),
		AdminJWTSecret:   envutil.String("ADMIN_JWT_SECRET", ""),
		AdminAPIKeyHash:  envutil.String("ADMIN_API_KEY_HASH", ""),
		CORSOrigins:      envutil.List("CORS_ALLOWED_ORIGINS", nil),
		ShutdownTimeout:  envutil.Duration("SHUTDOWN_TIMEOUT", 20*time.Second),
		TaxonomySeedPath: envutil.String("TAXONOMY_SEED_PATH", "configs/taxonomy.yaml"),
		MetricsAddr:      envutil.String("METRICS_ADDR", ""),
	}
}
