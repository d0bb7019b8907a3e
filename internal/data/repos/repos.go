package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/data/repos/documents"
	"github.com/yungbote/docsearch-backend/internal/data/repos/jobs"
	"github.com/yungbote/docsearch-backend/internal/data/repos/search"
	"github.com/yungbote/docsearch-backend/internal/data/repos/taxonomy"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type DocumentRepo = documents.DocumentRepo
type ExtractedTextRepo = documents.ExtractedTextRepo
type AnalysisResultRepo = documents.AnalysisResultRepo
type DocumentKeywordRepo = documents.DocumentKeywordRepo
type BatchJobRepo = documents.BatchJobRepo
type FailedFilter = documents.FailedFilter

type TaxonomyTermRepo = taxonomy.TaxonomyTermRepo
type TermSynonymRepo = taxonomy.TermSynonymRepo

type SearchIndexRepo = search.SearchIndexRepo
type SearchFeedbackRepo = search.SearchFeedbackRepo

type JobRunRepo = jobs.JobRunRepo

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return documents.NewDocumentRepo(db, baseLog)
}

func NewExtractedTextRepo(db *gorm.DB, baseLog *logger.Logger) ExtractedTextRepo {
	return documents.NewExtractedTextRepo(db, baseLog)
}

func NewAnalysisResultRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisResultRepo {
	return documents.NewAnalysisResultRepo(db, baseLog)
}

func NewDocumentKeywordRepo(db *gorm.DB, baseLog *logger.Logger) DocumentKeywordRepo {
	return documents.NewDocumentKeywordRepo(db, baseLog)
}

func NewBatchJobRepo(db *gorm.DB, baseLog *logger.Logger) BatchJobRepo {
	return documents.NewBatchJobRepo(db, baseLog)
}

func NewTaxonomyTermRepo(db *gorm.DB, baseLog *logger.Logger) TaxonomyTermRepo {
	return taxonomy.NewTaxonomyTermRepo(db, baseLog)
}

func NewTermSynonymRepo(db *gorm.DB, baseLog *logger.Logger) TermSynonymRepo {
	return taxonomy.NewTermSynonymRepo(db, baseLog)
}

func NewSearchIndexRepo(db *gorm.DB, baseLog *logger.Logger) SearchIndexRepo {
	return search.NewSearchIndexRepo(db, baseLog)
}

func NewSearchFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) SearchFeedbackRepo {
	return search.NewSearchFeedbackRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
