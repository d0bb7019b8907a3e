package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type Repos struct {
	Document       repos.DocumentRepo
	ExtractedText  repos.ExtractedTextRepo
	AnalysisResult repos.AnalysisResultRepo
	Keyword        repos.DocumentKeywordRepo
	Batch          repos.BatchJobRepo
	TaxonomyTerm   repos.TaxonomyTermRepo
	TermSynonym    repos.TermSynonymRepo
	SearchIndex    repos.SearchIndexRepo
	SearchFeedback repos.SearchFeedbackRepo
	JobRun         repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Document:       repos.NewDocumentRepo(db, log),
		ExtractedText:  repos.NewExtractedTextRepo(db, log),
		AnalysisResult: repos.NewAnalysisResultRepo(db, log),
		Keyword:        repos.NewDocumentKeywordRepo(db, log),
		Batch:          repos.NewBatchJobRepo(db, log),
		TaxonomyTerm:   repos.NewTaxonomyTermRepo(db, log),
		TermSynonym:    repos.NewTermSynonymRepo(db, log),
		SearchIndex:    repos.NewSearchIndexRepo(db, log),
		SearchFeedback: repos.NewSearchFeedbackRepo(db, log),
		JobRun:         repos.NewJobRunRepo(db, log),
	}
}
