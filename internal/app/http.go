package app

import (
	"gorm.io/gorm"

	httpserver "github.com/yungbote/docsearch-backend/internal/http"
	httpH "github.com/yungbote/docsearch-backend/internal/http/handlers"
	httpMW "github.com/yungbote/docsearch-backend/internal/http/middleware"
	"github.com/yungbote/docsearch-backend/internal/observability"
	"github.com/yungbote/docsearch-backend/internal/platform/envutil"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

func wireServer(db *gorm.DB, log *logger.Logger, cfg Config, s Services, metrics *observability.Metrics) (*httpserver.Server, error) {
	log.Info("Wiring handlers...")
	var pinger httpH.Pinger
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		pinger = sqlDB
	}
	// Multipart framing adds a little on top of the file itself.
	uploadLimit := cfg.Upload.MaxBytes
	if uploadLimit > 0 {
		uploadLimit += 1 << 20
	}
	return httpserver.NewServer(httpserver.RouterConfig{
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
		UploadLimit: uploadLimit,
		OTelEnabled: envutil.Bool("OTEL_ENABLED", false),
		AdminAuth:   httpMW.NewAdminAuth(log, cfg.AdminJWTSecret, cfg.AdminAPIKeyHash),
		Metrics:     metrics,

		HealthHandler:   httpH.NewHealthHandler(pinger),
		DocumentHandler: httpH.NewDocumentHandler(s.Document),
		SearchHandler:   httpH.NewSearchHandler(s.Search, s.Feedback),
		TaxonomyHandler: httpH.NewTaxonomyHandler(s.Taxonomy),
		BatchHandler:    httpH.NewBatchHandler(s.Batch),
		RecoveryHandler: httpH.NewRecoveryHandler(s.Recovery),
	}), nil
}
