package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type AnalysisResultRepo interface {
	Upsert(dbc dbctx.Context, row *types.AnalysisResult) (*types.AnalysisResult, error)
	GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (*types.AnalysisResult, error)
	UpdateFields(dbc dbctx.Context, documentID uuid.UUID, updates map[string]interface{}) error
}

type analysisResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisResultRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisResultRepo {
	return &analysisResultRepo{db: db, log: baseLog.With("repo", "AnalysisResultRepo")}
}

// Upsert keeps the existing row id and created_at for the document, so a
// reprocessed document ends up with the same row it had before.
func (r *analysisResultRepo) Upsert(dbc dbctx.Context, row *types.AnalysisResult) (*types.AnalysisResult, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	t := transaction.WithContext(dbc.Ctx)

	existing, err := r.GetByDocumentID(dbc, row.DocumentID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if err := t.Create(row).Error; err != nil {
			return nil, err
		}
		return row, nil
	}
	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	row.UpdatedAt = time.Now().UTC()
	if err := t.Model(existing).Select("*").Omit("id", "created_at", "embedding").Updates(row).Error; err != nil {
		return nil, err
	}
	row.Embedding = existing.Embedding
	return row, nil
}

func (r *analysisResultRepo) GetByDocumentID(dbc dbctx.Context, documentID uuid.UUID) (*types.AnalysisResult, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AnalysisResult
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", documentID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *analysisResultRepo) UpdateFields(dbc dbctx.Context, documentID uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.AnalysisResult{}).
		Where("document_id = ?", documentID).
		Updates(updates).Error
}
