package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/docsearch-backend/internal/http/handlers"
	httpMW "github.com/yungbote/docsearch-backend/internal/http/middleware"
	"github.com/yungbote/docsearch-backend/internal/observability"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	CORSOrigins []string
	// UploadLimit caps request bodies on the document routes; zero disables it.
	UploadLimit int64
	OTelEnabled bool

	AdminAuth *httpMW.AdminAuth
	Metrics   *observability.Metrics

	HealthHandler   *httpH.HealthHandler
	DocumentHandler *httpH.DocumentHandler
	SearchHandler   *httpH.SearchHandler
	TaxonomyHandler *httpH.TaxonomyHandler
	BatchHandler    *httpH.BatchHandler
	RecoveryHandler *httpH.RecoveryHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.OTelEnabled {
		r.Use(otelgin.Middleware("docsearch"))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	if cfg.Metrics != nil {
		r.Use(httpMW.Metrics(cfg.Metrics, "/metrics", "/healthcheck", "/readyz"))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", httpH.Metrics(cfg.Metrics))
	}

	// Documents
	if cfg.DocumentHandler != nil {
		docs := r.Group("/documents")
		docs.POST("", httpMW.LimitBody(cfg.UploadLimit), cfg.DocumentHandler.Create)
		docs.GET("/:id", cfg.DocumentHandler.Get)
		docs.GET("/:id/status", cfg.DocumentHandler.Status)
		docs.POST("/:id/reprocess", cfg.DocumentHandler.Reprocess)
		if cfg.SearchHandler != nil {
			docs.GET("/:id/feedback", cfg.SearchHandler.ListFeedback)
		}
	}

	// Search
	if cfg.SearchHandler != nil {
		r.GET("/search", cfg.SearchHandler.Search)
		r.POST("/search/feedback", cfg.SearchHandler.Feedback)
	}

	// Taxonomy (reads are public)
	if cfg.TaxonomyHandler != nil {
		r.GET("/taxonomy", cfg.TaxonomyHandler.View)
		r.GET("/taxonomy/expand", cfg.TaxonomyHandler.Expand)
	}

	// Batches
	if cfg.BatchHandler != nil {
		r.POST("/batches", cfg.BatchHandler.Create)
		r.GET("/batches/:id", cfg.BatchHandler.Get)
	}

	admin := r.Group("/")
	{
		if cfg.AdminAuth != nil {
			admin.Use(cfg.AdminAuth.RequireAdmin())
		}

		if cfg.TaxonomyHandler != nil {
			admin.POST("/taxonomy/terms", cfg.TaxonomyHandler.AddTerm)
		}

		// Recovery
		if cfg.RecoveryHandler != nil {
			admin.GET("/recovery/counts", cfg.RecoveryHandler.Counts)
			admin.GET("/recovery/failed", cfg.RecoveryHandler.Failed)
			admin.GET("/recovery/stuck", cfg.RecoveryHandler.Stuck)
			admin.POST("/recovery/recover", cfg.RecoveryHandler.Recover)
			admin.POST("/recovery/batch", cfg.RecoveryHandler.ReprocessBatch)
		}
	}

	return r
}
