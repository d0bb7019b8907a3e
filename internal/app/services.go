package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/jobs/pipeline/document_process"
	jobruntime "github.com/yungbote/docsearch-backend/internal/jobs/runtime"
	"github.com/yungbote/docsearch-backend/internal/modules/analysis"
	"github.com/yungbote/docsearch-backend/internal/modules/extraction"
	"github.com/yungbote/docsearch-backend/internal/modules/search"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
	"github.com/yungbote/docsearch-backend/internal/services"
)

type Services struct {
	Notifier *services.Notifier
	Jobs     services.JobService
	Taxonomy services.TaxonomyService
	Document services.DocumentService
	Recovery services.RecoveryService
	Search   services.SearchService
	Feedback services.FeedbackService
	Batch    services.BatchService

	// Embedder is nil when no embedding model is configured.
	Embedder analysis.Embedder
	Registry *jobruntime.Registry
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, c Clients) (Services, error) {
	log.Info("Wiring services...")
	notifier := services.NewNotifier(log, c.Bus)
	jobs := services.NewJobService(db, log, r.JobRun, notifier, c.Temporal, cfg.Temporal.TaskQueue)
	taxonomySvc := services.NewTaxonomyService(db, log, r.TaxonomyTerm, r.TermSynonym, cfg.TaxonomyScores, cfg.TaxonomyCacheTTL)
	documents := services.NewDocumentService(db, log,
		r.Document, r.AnalysisResult, r.Keyword, r.Batch, r.JobRun,
		jobs, c.Blobs, notifier, cfg.Upload,
	)
	recovery := services.NewRecoveryService(db, log,
		r.Document, r.JobRun, documents, jobs, c.Blobs, notifier, cfg.Recovery,
	)

	var embedder analysis.Embedder
	var queryEmbedder search.QueryEmbedder
	if c.OpenAI != nil {
		var cache analysis.VectorCache
		if c.Redis != nil {
			cache = analysis.NewRedisVectorCache(log, c.Redis, cfg.QueryCacheTTL)
		}
		oe := analysis.NewOracleEmbedder(log, c.OpenAI, cfg.Pipeline.EmbeddingDim, cache)
		embedder, queryEmbedder = oe, oe
	}
	engine := search.NewEngine(log, r.SearchIndex, taxonomySvc, queryEmbedder, cfg.Search)

	var oracle analysis.Oracle = analysis.FallbackOracle{}
	if c.OpenAI != nil {
		oracle = analysis.NewOpenAIOracle(log, c.OpenAI, 0)
	}
	pipeline := document_process.New(db, log, document_process.Deps{
		Documents: r.Document,
		Pages:     r.ExtractedText,
		Analyses:  r.AnalysisResult,
		Keywords:  r.Keyword,
		Batches:   r.Batch,
		Extractor: extraction.NewGCPExtractor(log, c.Blobs, c.DocAI, c.Vision, cfg.MaxImageSide),
		Oracle:    oracle,
		Mapper:    taxonomySvc,
		Embedder:  embedder,
		Notify:    notifier,
	}, cfg.Pipeline)
	registry := jobruntime.NewRegistry()
	if err := registry.Register(pipeline); err != nil {
		return Services{}, fmt.Errorf("register pipeline: %w", err)
	}

	return Services{
		Notifier: notifier,
		Jobs:     jobs,
		Taxonomy: taxonomySvc,
		Document: documents,
		Recovery: recovery,
		Search:   services.NewSearchService(log, engine),
		Feedback: services.NewFeedbackService(log, r.Document, r.SearchFeedback),
		Batch:    services.NewBatchService(log, r.Batch),
		Embedder: embedder,
		Registry: registry,
	}, nil
}
