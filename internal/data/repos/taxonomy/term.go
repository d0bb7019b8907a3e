package taxonomy

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type TaxonomyTermRepo interface {
	Create(dbc dbctx.Context, terms []*types.TaxonomyTerm) ([]*types.TaxonomyTerm, error)
	Upsert(dbc dbctx.Context, terms []*types.TaxonomyTerm) (int64, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.TaxonomyTerm, error)
	ListAll(dbc dbctx.Context) ([]*types.TaxonomyTerm, error)
	Count(dbc dbctx.Context) (int64, error)
}

type taxonomyTermRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaxonomyTermRepo(db *gorm.DB, baseLog *logger.Logger) TaxonomyTermRepo {
	return &taxonomyTermRepo{db: db, log: baseLog.With("repo", "TaxonomyTermRepo")}
}

func (r *taxonomyTermRepo) Create(dbc dbctx.Context, terms []*types.TaxonomyTerm) ([]*types.TaxonomyTerm, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(terms) == 0 {
		return []*types.TaxonomyTerm{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&terms).Error; err != nil {
		return nil, err
	}
	return terms, nil
}

// Upsert inserts terms whose path is new and refreshes the descriptive
// columns of existing ones. Returns the number of rows written.
func (r *taxonomyTermRepo) Upsert(dbc dbctx.Context, terms []*types.TaxonomyTerm) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(terms) == 0 {
		return 0, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "primary_category"}, {Name: "subcategory"}, {Name: "term"}},
			DoUpdates: clause.AssignmentColumns([]string{"parent_id", "specific_term", "description", "updated_at"}),
		}).
		Create(&terms)
	return res.RowsAffected, res.Error
}

func (r *taxonomyTermRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.TaxonomyTerm, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TaxonomyTerm
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taxonomyTermRepo) ListAll(dbc dbctx.Context) ([]*types.TaxonomyTerm, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TaxonomyTerm
	if err := transaction.WithContext(dbc.Ctx).
		Order("primary_category ASC, subcategory ASC, term ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taxonomyTermRepo) Count(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).Model(&types.TaxonomyTerm{}).Count(&n).Error
	return n, err
}
