package documents

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

// FailedFilter narrows ListFailed. Zero values match everything.
type FailedFilter struct {
	FilenameContains string
	Stage            string
	FailedAfter      *time.Time
	FailedBefore     *time.Time
	BatchJobID       *uuid.UUID
	Limit            int
}

type DocumentRepo interface {
	Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error)
	ClaimForJob(dbc dbctx.Context, id, jobID uuid.UUID, fromStatuses []string, resetCheckpoint bool) (bool, error)
	UpdateIfActive(dbc dbctx.Context, id, jobID uuid.UUID, updates map[string]interface{}) (bool, error)
	TransitionStatus(dbc dbctx.Context, id uuid.UUID, fromStatuses []string, to string, updates map[string]interface{}) (bool, error)
	ForceStatus(dbc dbctx.Context, id uuid.UUID, to string, updates map[string]interface{}) (bool, error)
	ListStuck(dbc dbctx.Context, cutoff time.Time, limit int) ([]*types.Document, error)
	ListFailed(dbc dbctx.Context, filter FailedFilter) ([]*types.Document, error)
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
	DeleteCascade(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *documentRepo) Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error) {
	if len(docs) == 0 {
		return []*types.Document{}, nil
	}
	now := time.Now().UTC()
	for _, d := range docs {
		if d.Status == "" {
			d.Status = types.DocumentStatusPending
		}
		if d.UploadedAt.IsZero() {
			d.UploadedAt = now
		}
		if d.StatusChangedAt.IsZero() {
			d.StatusChangedAt = now
		}
	}
	if err := r.tx(dbc).Create(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.Document
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *documentRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Document, error) {
	var out []*types.Document
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.tx(dbc).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimForJob moves the document into PROCESSING on behalf of jobID. The
// update only lands if the document is still in one of fromStatuses, or is
// already PROCESSING under the same job (a reclaimed stale run).
func (r *documentRepo) ClaimForJob(dbc dbctx.Context, id, jobID uuid.UUID, fromStatuses []string, resetCheckpoint bool) (bool, error) {
	if id == uuid.Nil || jobID == uuid.Nil {
		return false, nil
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":            types.DocumentStatusProcessing,
		"status_changed_at": now,
		"active_job_id":     jobID,
		"updated_at":        now,
	}
	if resetCheckpoint {
		updates["completed_stage"] = ""
	}
	q := r.tx(dbc).Model(&types.Document{}).Where("id = ?", id)
	if len(fromStatuses) > 0 {
		q = q.Where("(status IN ? OR (status = ? AND active_job_id = ?))", fromStatuses, types.DocumentStatusProcessing, jobID)
	} else {
		q = q.Where("status = ? AND active_job_id = ?", types.DocumentStatusProcessing, jobID)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateIfActive applies updates only while jobID still owns the document.
// A false result means the run was canceled, recovered or deleted.
func (r *documentRepo) UpdateIfActive(dbc dbctx.Context, id, jobID uuid.UUID, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil || jobID == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	if _, ok := updates["status"]; ok {
		if _, has := updates["status_changed_at"]; !has {
			updates["status_changed_at"] = time.Now().UTC()
		}
	}
	res := r.tx(dbc).Model(&types.Document{}).
		Where("id = ? AND status = ? AND active_job_id = ?", id, types.DocumentStatusProcessing, jobID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *documentRepo) TransitionStatus(dbc dbctx.Context, id uuid.UUID, fromStatuses []string, to string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	merged := statusUpdates(to, updates)
	q := r.tx(dbc).Model(&types.Document{}).Where("id = ?", id)
	if len(fromStatuses) > 0 {
		q = q.Where("status IN ?", fromStatuses)
	}
	res := q.Updates(merged)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ForceStatus sets the status regardless of the current one and releases the
// active job slot. Used by operator recovery.
func (r *documentRepo) ForceStatus(dbc dbctx.Context, id uuid.UUID, to string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	merged := statusUpdates(to, updates)
	if _, ok := merged["active_job_id"]; !ok {
		merged["active_job_id"] = nil
	}
	res := r.tx(dbc).Model(&types.Document{}).Where("id = ?", id).Updates(merged)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func statusUpdates(to string, updates map[string]interface{}) map[string]interface{} {
	now := time.Now().UTC()
	merged := make(map[string]interface{}, len(updates)+3)
	for k, v := range updates {
		merged[k] = v
	}
	merged["status"] = to
	merged["status_changed_at"] = now
	if _, ok := merged["updated_at"]; !ok {
		merged["updated_at"] = now
	}
	return merged
}

func (r *documentRepo) ListStuck(dbc dbctx.Context, cutoff time.Time, limit int) ([]*types.Document, error) {
	if limit <= 0 {
		limit = 500
	}
	var out []*types.Document
	err := r.tx(dbc).
		Where("status IN ? AND status_changed_at < ?",
			[]string{types.DocumentStatusPending, types.DocumentStatusProcessing}, cutoff.UTC()).
		Order("status_changed_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentRepo) ListFailed(dbc dbctx.Context, filter FailedFilter) ([]*types.Document, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	transaction := r.tx(dbc)
	q := transaction.Where("status = ?", types.DocumentStatusFailed)
	if s := strings.TrimSpace(filter.FilenameContains); s != "" {
		q = q.Where("LOWER(filename) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if s := strings.TrimSpace(filter.Stage); s != "" {
		q = q.Where(jsonTextExpr(transaction, "error_summary", "stage")+" = ?", s)
	}
	if filter.FailedAfter != nil {
		q = q.Where("status_changed_at >= ?", filter.FailedAfter.UTC())
	}
	if filter.FailedBefore != nil {
		q = q.Where("status_changed_at < ?", filter.FailedBefore.UTC())
	}
	if filter.BatchJobID != nil && *filter.BatchJobID != uuid.Nil {
		q = q.Where("batch_job_id = ?", *filter.BatchJobID)
	}
	var out []*types.Document
	if err := q.Order("status_changed_at ASC, id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func jsonTextExpr(db *gorm.DB, column, key string) string {
	if db.Dialector.Name() == "postgres" {
		return column + " ->> '" + key + "'"
	}
	return "json_extract(" + column + ", '$." + key + "')"
}

// CountByStatus always reports every status, zero included.
func (r *documentRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.tx(dbc).
		Model(&types.Document{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(types.DocumentStatuses))
	for _, st := range types.DocumentStatuses {
		out[st] = 0
	}
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// DeleteCascade removes documents and everything derived from them.
func (r *documentRepo) DeleteCascade(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		for _, model := range []interface{}{
			&types.DocumentKeyword{},
			&types.AnalysisResult{},
			&types.ExtractedText{},
		} {
			if err := txx.Where("document_id IN ?", ids).Delete(model).Error; err != nil {
				return err
			}
		}
		res := txx.Where("id IN ?", ids).Delete(&types.Document{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
