package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/docsearch-backend/internal/platform/blob"
	"github.com/yungbote/docsearch-backend/internal/platform/gcp"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
	"github.com/yungbote/docsearch-backend/internal/platform/openai"
	"github.com/yungbote/docsearch-backend/internal/platform/redisx"
	"github.com/yungbote/docsearch-backend/internal/realtime/bus"
	"github.com/yungbote/docsearch-backend/internal/temporalx"
)

type Clients struct {
	Redis    *goredis.Client
	Bus      bus.Bus
	OpenAI   openai.Client
	DocAI    gcp.DocumentAI
	Vision   gcp.Vision
	Blobs    *blob.Router
	Temporal temporalsdkclient.Client
}

// wireClients opens every external dependency. Optional ones (Redis,
// OpenAI, Temporal) are left nil when unconfigured; the extractor clients are
// only opened when this process runs jobs.
func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Redis
	rdb, err := redisx.NewClient(ctx, log, cfg.RedisAddr)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	c.Redis = rdb
	if rdb != nil {
		b, err := bus.NewRedisBus(log, rdb, cfg.EventChannel)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		c.Bus = b
	} else {
		c.Bus = bus.NewMemoryBus()
	}

	// Blobs
	blobs, err := resolveBlobStore(ctx, log, cfg)
	if err != nil {
		c.Close()
		return Clients{}, err
	}
	c.Blobs = blobs

	// Openai
	oc, err := openai.NewClient(log, openai.ConfigFromEnv())
	if err != nil {
		log.Warn("OpenAI client unavailable; analysis falls back and vector search is disabled", "error", err)
	} else {
		c.OpenAI = oc
	}

	// Gcp
	if cfg.JobRunner != RunnerNone {
		vision, err := gcp.NewVision(ctx, log)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init vision client: %w", err)
		}
		c.Vision = vision
		if cfg.DocAI.ProcessorID != "" {
			docAI, err := gcp.NewDocumentAI(ctx, log, cfg.DocAI)
			if err != nil {
				c.Close()
				return Clients{}, fmt.Errorf("init document ai client: %w", err)
			}
			c.DocAI = docAI
		} else {
			log.Warn("DOCUMENTAI_PROCESSOR_ID not set; PDFs will be rejected by the extractor")
		}
	}

	// Temporal
	if cfg.JobRunner == RunnerTemporal || cfg.Temporal.Address != "" {
		tc, err := temporalx.NewClient(log, cfg.Temporal)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init temporal client: %w", err)
		}
		c.Temporal = tc
	}
	if cfg.JobRunner == RunnerTemporal && c.Temporal == nil {
		c.Close()
		return Clients{}, fmt.Errorf("JOB_RUNNER=temporal requires TEMPORAL_ADDRESS")
	}

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.DocAI != nil {
		_ = c.DocAI.Close()
	}
	if c.Vision != nil {
		_ = c.Vision.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
