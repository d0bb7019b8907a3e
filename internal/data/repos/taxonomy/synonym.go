package taxonomy

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type TermSynonymRepo interface {
	Upsert(dbc dbctx.Context, rows []*types.TermSynonym) (int64, error)
	ListAll(dbc dbctx.Context) ([]*types.TermSynonym, error)
}

type termSynonymRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTermSynonymRepo(db *gorm.DB, baseLog *logger.Logger) TermSynonymRepo {
	return &termSynonymRepo{db: db, log: baseLog.With("repo", "TermSynonymRepo")}
}

func (r *termSynonymRepo) Upsert(dbc dbctx.Context, rows []*types.TermSynonym) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return 0, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *termSynonymRepo) ListAll(dbc dbctx.Context) ([]*types.TermSynonym, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.TermSynonym
	if err := transaction.WithContext(dbc.Ctx).
		Order("term_id ASC, synonym ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
