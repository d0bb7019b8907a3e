package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

// MigrateOptions tunes the Postgres-only index statements.
type MigrateOptions struct {
	// IVFFlatLists is the number of inverted lists for the embedding indexes.
	IVFFlatLists int
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// =========================
		// Documents + pipeline output
		// =========================
		&types.Document{},
		&types.ExtractedText{},
		&types.AnalysisResult{},
		&types.DocumentKeyword{},
		&types.BatchJob{},

		// =========================
		// Controlled vocabulary
		// =========================
		&types.TaxonomyTerm{},
		&types.TermSynonym{},

		// =========================
		// Search feedback
		// =========================
		&types.SearchFeedback{},

		// =========================
		// Jobs
		// =========================
		&types.JobRun{},
	)
}

// EnsureIndexes creates the indexes every dialect supports. The partial unique
// index on job_run is what keeps a document to a single queued/running job.
func EnsureIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_job_run_active_entity
			ON job_run(job_type, entity_id)
			WHERE status IN ('queued', 'running')`,
		`CREATE INDEX IF NOT EXISTS idx_job_run_claim ON job_run(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_document_status_changed ON document(status, status_changed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_document_keyword_doc_score ON document_keyword(document_id, relevance_score)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}

// EnsureSearchIndexes adds the generated tsvector columns and the GIN and
// IVFFlat indexes used by ranking. Postgres only.
func EnsureSearchIndexes(db *gorm.DB, opts MigrateOptions) error {
	lists := opts.IVFFlatLists
	if lists <= 0 {
		lists = 100
	}
	stmts := []string{
		`ALTER TABLE document ADD COLUMN IF NOT EXISTS search_vector tsvector
			GENERATED ALWAYS AS (
				setweight(to_tsvector('english', regexp_replace(coalesce(filename, ''), '[_.\-]+', ' ', 'g')), 'A')
			) STORED`,
		`ALTER TABLE extracted_text ADD COLUMN IF NOT EXISTS search_vector tsvector
			GENERATED ALWAYS AS (
				to_tsvector('english',
					coalesce(raw_text, '') || ' ' ||
					coalesce(main_message, '') || ' ' ||
					coalesce(supporting_text, '') || ' ' ||
					coalesce(call_to_action, ''))
			) STORED`,
		`ALTER TABLE analysis_result ADD COLUMN IF NOT EXISTS search_vector tsvector
			GENERATED ALWAYS AS (
				to_tsvector('english',
					coalesce(summary, '') || ' ' ||
					coalesce(content_analysis, '') || ' ' ||
					coalesce(visual_analysis, ''))
			) STORED`,
		`CREATE INDEX IF NOT EXISTS idx_document_search_vector ON document USING GIN (search_vector)`,
		`CREATE INDEX IF NOT EXISTS idx_extracted_text_search_vector ON extracted_text USING GIN (search_vector)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_result_search_vector ON analysis_result USING GIN (search_vector)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_document_embedding_ivfflat
			ON document USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, lists),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_analysis_result_embedding_ivfflat
			ON analysis_result USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, lists),
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure search index: %w", err)
		}
	}
	return nil
}

// Migrate runs the full schema setup for the connected dialect.
func Migrate(db *gorm.DB, opts MigrateOptions) error {
	if err := AutoMigrateAll(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := EnsureIndexes(db); err != nil {
		return err
	}
	if db.Dialector.Name() == "postgres" {
		return EnsureSearchIndexes(db, opts)
	}
	return nil
}
