package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type DocumentKeywordRepo interface {
	ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, rows []*types.DocumentKeyword) ([]*types.DocumentKeyword, error)
	ListByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.DocumentKeyword, error)
}

type documentKeywordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentKeywordRepo(db *gorm.DB, baseLog *logger.Logger) DocumentKeywordRepo {
	return &documentKeywordRepo{db: db, log: baseLog.With("repo", "DocumentKeywordRepo")}
}

func (r *documentKeywordRepo) ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, rows []*types.DocumentKeyword) ([]*types.DocumentKeyword, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	t := transaction.WithContext(dbc.Ctx)
	if err := t.Where("document_id = ?", documentID).Delete(&types.DocumentKeyword{}).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []*types.DocumentKeyword{}, nil
	}
	for i, row := range rows {
		row.DocumentID = documentID
		row.ID = types.KeywordID(documentID, row.TermID)
		row.Rank = i
	}
	if err := t.Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *documentKeywordRepo) ListByDocumentIDs(dbc dbctx.Context, documentIDs []uuid.UUID) ([]*types.DocumentKeyword, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.DocumentKeyword
	if len(documentIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id IN ?", documentIDs).
		Order("document_id ASC, rank ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
