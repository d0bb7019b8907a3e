package search

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type SearchFeedbackRepo interface {
	Create(dbc dbctx.Context, rows []*types.SearchFeedback) ([]*types.SearchFeedback, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID, limit int) ([]*types.SearchFeedback, error)
}

type searchFeedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSearchFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) SearchFeedbackRepo {
	return &searchFeedbackRepo{db: db, log: baseLog.With("repo", "SearchFeedbackRepo")}
}

func (r *searchFeedbackRepo) Create(dbc dbctx.Context, rows []*types.SearchFeedback) ([]*types.SearchFeedback, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.SearchFeedback{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *searchFeedbackRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID, limit int) ([]*types.SearchFeedback, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.SearchFeedback
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
