package document_process

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/modules/analysis"
	"github.com/yungbote/docsearch-backend/internal/modules/extraction"
	"github.com/yungbote/docsearch-backend/internal/modules/taxonomy"
	"github.com/yungbote/docsearch-backend/internal/pkg/httpx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
	"github.com/yungbote/docsearch-backend/internal/services"
)

// TaxonomyMapper maps analysis candidates onto the current vocabulary.
type TaxonomyMapper interface {
	Map(ctx context.Context, candidates []string, freeText string) ([]taxonomy.Match, error)
}

type Config struct {
	// MaxAttempts counts every try of a stage, the first one included.
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// Timeouts bounds one attempt of each stage; exceeding it is transient.
	Timeouts     map[string]time.Duration
	EmbeddingDim int
	// EmbedTextRunes truncates text sent to the embedding oracle.
	EmbedTextRunes int
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
		BackoffMax:  30 * time.Second,
		Timeouts: map[string]time.Duration{
			types.StageExtraction: 3 * time.Minute,
			types.StageAnalysis:   2 * time.Minute,
			types.StageTaxonomy:   30 * time.Second,
			types.StageEmbedding:  time.Minute,
		},
		EmbeddingDim:   types.EmbeddingColumnDim,
		EmbedTextRunes: 8000,
	}
}

func (c Config) timeout(stage string) time.Duration {
	if d, ok := c.Timeouts[stage]; ok && d > 0 {
		return d
	}
	return DefaultConfig().Timeouts[stage]
}

type Deps struct {
	Documents repos.DocumentRepo
	Pages     repos.ExtractedTextRepo
	Analyses  repos.AnalysisResultRepo
	Keywords  repos.DocumentKeywordRepo
	Batches   repos.BatchJobRepo

	Extractor extraction.Extractor
	Oracle    analysis.Oracle
	Mapper    TaxonomyMapper
	Embedder  analysis.Embedder
	Notify    services.DocumentNotifier

	// Sleep waits between retries; nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Pipeline struct {
	db   *gorm.DB
	log  *logger.Logger
	deps Deps
	cfg  Config
}

func New(db *gorm.DB, baseLog *logger.Logger, deps Deps, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase < 0 {
		cfg.BackoffBase = 0
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.EmbedTextRunes <= 0 {
		cfg.EmbedTextRunes = def.EmbedTextRunes
	}
	if deps.Sleep == nil {
		deps.Sleep = httpx.Sleep
	}
	return &Pipeline{
		db:   db,
		log:  baseLog.With("job", "DocumentProcess"),
		deps: deps,
		cfg:  cfg,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeDocumentProcess }
