package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type BatchJobRepo interface {
	Create(dbc dbctx.Context, batch *types.BatchJob) (*types.BatchJob, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.BatchJob, error)
	AddTotal(dbc dbctx.Context, id uuid.UUID, delta int) error
	RecordOutcome(dbc dbctx.Context, id uuid.UUID, completed bool) error
}

type batchJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchJobRepo(db *gorm.DB, baseLog *logger.Logger) BatchJobRepo {
	return &batchJobRepo{db: db, log: baseLog.With("repo", "BatchJobRepo")}
}

func (r *batchJobRepo) Create(dbc dbctx.Context, batch *types.BatchJob) (*types.BatchJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if batch.Status == "" {
		batch.Status = "open"
	}
	if err := transaction.WithContext(dbc.Ctx).Create(batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *batchJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.BatchJob, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.BatchJob
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *batchJobRepo) AddTotal(dbc dbctx.Context, id uuid.UUID, delta int) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.BatchJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_count": gorm.Expr("total_count + ?", delta),
			"status":      "processing",
			"updated_at":  time.Now().UTC(),
		}).Error
}

// RecordOutcome bumps the completed or failed counter and settles the batch
// status once every document has an outcome.
func (r *batchJobRepo) RecordOutcome(dbc dbctx.Context, id uuid.UUID, completed bool) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	col := "failed_count"
	if completed {
		col = "completed_count"
	}
	t := transaction.WithContext(dbc.Ctx)
	if err := t.Model(&types.BatchJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			col:          gorm.Expr(col + " + 1"),
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return err
	}
	return t.Exec(`
		UPDATE batch_job
		SET status = CASE WHEN failed_count > 0 THEN ? ELSE ? END
		WHERE id = ? AND total_count > 0 AND completed_count + failed_count >= total_count`,
		"completed_with_failures", "completed", id,
	).Error
}
