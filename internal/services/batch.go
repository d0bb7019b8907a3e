package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/domain/documents"
	apperr "github.com/yungbote/docsearch-backend/internal/pkg/errors"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type BatchService interface {
	Create(ctx context.Context, name string) (*types.BatchJob, error)
	Get(ctx context.Context, id uuid.UUID) (*types.BatchJob, error)
}

type batchService struct {
	log     *logger.Logger
	batches repos.BatchJobRepo
}

func NewBatchService(baseLog *logger.Logger, batches repos.BatchJobRepo) BatchService {
	return &batchService{log: baseLog.With("service", "BatchService"), batches: batches}
}

func (s *batchService) Create(ctx context.Context, name string) (*types.BatchJob, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "batch " + time.Now().UTC().Format(time.RFC3339)
	}
	if len(name) > 200 {
		return nil, fmt.Errorf("%w: name too long", apperr.ErrInvalidArgument)
	}
	b, err := s.batches.Create(dbctx.New(ctx), &types.BatchJob{Name: name, Status: documents.BatchStatusOpen})
	if err != nil {
		return nil, err
	}
	s.log.Info("batch created", "batch_id", b.ID, "name", name)
	return b, nil
}

func (s *batchService) Get(ctx context.Context, id uuid.UUID) (*types.BatchJob, error) {
	b, err := s.batches.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperr.ErrNotFound
	}
	return b, nil
}
