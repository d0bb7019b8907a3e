package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type ExtractedTextRepo interface {
	ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, pages []*types.ExtractedText) ([]*types.ExtractedText, error)
	ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.ExtractedText, error)
}

type extractedTextRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExtractedTextRepo(db *gorm.DB, baseLog *logger.Logger) ExtractedTextRepo {
	return &extractedTextRepo{db: db, log: baseLog.With("repo", "ExtractedTextRepo")}
}

// ReplaceForDocument swaps the full page set of a document. Callers pass a
// transaction when the swap must be atomic with other writes.
func (r *extractedTextRepo) ReplaceForDocument(dbc dbctx.Context, documentID uuid.UUID, pages []*types.ExtractedText) ([]*types.ExtractedText, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	t := transaction.WithContext(dbc.Ctx)
	if err := t.Where("document_id = ?", documentID).Delete(&types.ExtractedText{}).Error; err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return []*types.ExtractedText{}, nil
	}
	for _, p := range pages {
		p.DocumentID = documentID
	}
	if err := t.Create(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}

func (r *extractedTextRepo) ListByDocument(dbc dbctx.Context, documentID uuid.UUID) ([]*types.ExtractedText, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ExtractedText
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Order("page_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
