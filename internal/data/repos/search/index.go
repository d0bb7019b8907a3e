package search

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

// SearchIndexRepo runs the ranking queries. Keyword and vector ranking need
// Postgres (tsvector and pgvector); Browse and Describe are portable.
type SearchIndexRepo interface {
	KeywordRank(dbc dbctx.Context, q types.KeywordQuery) ([]types.SearchHit, error)
	VectorRank(dbc dbctx.Context, q types.VectorQuery) ([]types.SearchHit, error)
	Browse(dbc dbctx.Context, filter types.SearchFilter, limit int) ([]types.SearchHit, error)
	Describe(dbc dbctx.Context, ids []uuid.UUID) ([]types.SearchCard, error)
}

type searchIndexRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSearchIndexRepo(db *gorm.DB, baseLog *logger.Logger) SearchIndexRepo {
	return &searchIndexRepo{db: db, log: baseLog.With("repo", "SearchIndexRepo")}
}

func (r *searchIndexRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

// filterSQL renders the pre-filter for documents aliased as d. Only
// COMPLETED documents are ever searchable.
func filterSQL(f types.SearchFilter) (string, []interface{}) {
	clauses := []string{"d.status = ?"}
	args := []interface{}{types.DocumentStatusCompleted}
	if v := strings.TrimSpace(f.DocumentType); v != "" {
		clauses = append(clauses, "LOWER(d.document_type) = LOWER(?)")
		args = append(args, v)
	}
	if f.Year != nil {
		clauses = append(clauses, "d.year = ?")
		args = append(args, *f.Year)
	}
	if v := strings.TrimSpace(f.Location); v != "" {
		clauses = append(clauses, "LOWER(d.location) = LOWER(?)")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.PrimaryCategory); v != "" {
		clauses = append(clauses, "LOWER(d.primary_category) = LOWER(?)")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.Subcategory); v != "" {
		clauses = append(clauses, "LOWER(d.subcategory) = LOWER(?)")
		args = append(args, v)
	}
	return strings.Join(clauses, " AND "), args
}

// tsQuerySQL ORs the user query with each expansion phrase.
func tsQuerySQL(text string, expansions []string) (string, []interface{}) {
	parts := []string{"websearch_to_tsquery('english', ?)"}
	args := []interface{}{text}
	for _, e := range expansions {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		parts = append(parts, "phraseto_tsquery('english', ?)")
		args = append(args, e)
	}
	return strings.Join(parts, " || "), args
}

func (r *searchIndexRepo) KeywordRank(dbc dbctx.Context, q types.KeywordQuery) ([]types.SearchHit, error) {
	if strings.TrimSpace(q.Text) == "" && len(q.Expansions) == 0 {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	w := q.Weights
	tsq, tsArgs := tsQuerySQL(q.Text, q.Expansions)
	where, whereArgs := filterSQL(q.Filter)

	sql := fmt.Sprintf(`
		WITH q AS (SELECT (%s) AS query)
		SELECT d.id AS document_id,
			? * COALESCE(ts_rank_cd(d.search_vector, q.query), 0)
			+ ? * COALESCE(MAX(ts_rank_cd(et.search_vector, q.query)), 0)
			+ ? * COALESCE(MAX(ts_rank_cd(ar.search_vector, q.query)), 0) AS score
		FROM document d
		CROSS JOIN q
		LEFT JOIN extracted_text et ON et.document_id = d.id AND et.search_vector @@ q.query
		LEFT JOIN analysis_result ar ON ar.document_id = d.id AND ar.search_vector @@ q.query
		WHERE %s
			AND (d.search_vector @@ q.query OR et.id IS NOT NULL OR ar.id IS NOT NULL)
		GROUP BY d.id, d.search_vector, q.query
		ORDER BY score DESC, d.id ASC
		LIMIT ?`, tsq, where)

	args := make([]interface{}, 0, len(tsArgs)+len(whereArgs)+4)
	args = append(args, tsArgs...)
	args = append(args, w.Filename, w.Body, w.Summary)
	args = append(args, whereArgs...)
	args = append(args, limit)

	var out []types.SearchHit
	if err := r.tx(dbc).Raw(sql, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// VectorRank takes the nearest documents by cosine similarity over both the
// document and analysis embeddings and keeps each document's best score.
func (r *searchIndexRepo) VectorRank(dbc dbctx.Context, q types.VectorQuery) ([]types.SearchHit, error) {
	if len(q.Vector) == 0 {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	vec := pgvector.NewVector(q.Vector)
	where, whereArgs := filterSQL(q.Filter)

	sql := fmt.Sprintf(`
		SELECT c.document_id, MAX(c.score) AS score FROM (
			(SELECT d.id AS document_id, 1 - (d.embedding <=> ?) AS score
				FROM document d
				WHERE %[1]s AND d.embedding IS NOT NULL
				ORDER BY d.embedding <=> ?
				LIMIT ?)
			UNION ALL
			(SELECT ar.document_id AS document_id, 1 - (ar.embedding <=> ?) AS score
				FROM analysis_result ar
				JOIN document d ON d.id = ar.document_id
				WHERE %[1]s AND ar.embedding IS NOT NULL
				ORDER BY ar.embedding <=> ?
				LIMIT ?)
		) c
		GROUP BY c.document_id
		ORDER BY score DESC, c.document_id ASC
		LIMIT ?`, where)

	args := make([]interface{}, 0, 2*len(whereArgs)+7)
	args = append(args, vec)
	args = append(args, whereArgs...)
	args = append(args, vec, limit, vec)
	args = append(args, whereArgs...)
	args = append(args, vec, limit, limit)

	var out []types.SearchHit
	if err := r.tx(dbc).Raw(sql, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Browse lists filtered documents with a zero score, newest first.
func (r *searchIndexRepo) Browse(dbc dbctx.Context, filter types.SearchFilter, limit int) ([]types.SearchHit, error) {
	if limit <= 0 {
		limit = 1000
	}
	where, args := filterSQL(filter)
	var out []types.SearchHit
	err := r.tx(dbc).
		Table("document AS d").
		Select("d.id AS document_id, 0 AS score").
		Where(where, args...).
		Order("d.uploaded_at DESC, d.id ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *searchIndexRepo) Describe(dbc dbctx.Context, ids []uuid.UUID) ([]types.SearchCard, error) {
	var out []types.SearchCard
	if len(ids) == 0 {
		return out, nil
	}
	err := r.tx(dbc).
		Table("document AS d").
		Select(`d.id AS document_id, d.filename, d.uploaded_at, d.document_type, d.year,
			d.location, d.primary_category, d.subcategory, d.page_count, d.low_confidence,
			COALESCE(ar.summary, '') AS summary`).
		Joins("LEFT JOIN analysis_result ar ON ar.document_id = d.id").
		Where("d.id IN ? AND d.status = ?", ids, types.DocumentStatusCompleted).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
