package domain

import (
	"github.com/yungbote/docsearch-backend/internal/domain/documents"
	"github.com/yungbote/docsearch-backend/internal/domain/jobs"
	"github.com/yungbote/docsearch-backend/internal/domain/search"
	"github.com/yungbote/docsearch-backend/internal/domain/taxonomy"
)

const (
	DocumentStatusPending    = documents.StatusPending
	DocumentStatusProcessing = documents.StatusProcessing
	DocumentStatusCompleted  = documents.StatusCompleted
	DocumentStatusFailed     = documents.StatusFailed

	StageExtraction = documents.StageExtraction
	StageAnalysis   = documents.StageAnalysis
	StageTaxonomy   = documents.StageTaxonomy
	StageEmbedding  = documents.StageEmbedding
	StageRecovery   = documents.StageRecovery

	EmbeddingColumnDim = documents.EmbeddingDim

	MatchExact   = documents.MatchExact
	MatchSynonym = documents.MatchSynonym
	MatchFuzzy   = documents.MatchFuzzy

	JobStatusQueued    = jobs.JobStatusQueued
	JobStatusRunning   = jobs.JobStatusRunning
	JobStatusSucceeded = jobs.JobStatusSucceeded
	JobStatusFailed    = jobs.JobStatusFailed
	JobStatusCanceled  = jobs.JobStatusCanceled

	JobTypeDocumentProcess = jobs.JobTypeDocumentProcess
	EntityTypeDocument     = jobs.EntityTypeDocument

	PayloadDocumentID      = jobs.PayloadDocumentID
	PayloadFromStatuses    = jobs.PayloadFromStatuses
	PayloadResetCheckpoint = jobs.PayloadResetCheckpoint
	PayloadReason          = jobs.PayloadReason
)

type (
	Document        = documents.Document
	ExtractedText   = documents.ExtractedText
	AnalysisResult  = documents.AnalysisResult
	DocumentKeyword = documents.DocumentKeyword
	BatchJob        = documents.BatchJob
	ErrorSummary    = documents.ErrorSummary

	TaxonomyTerm = taxonomy.TaxonomyTerm
	TermSynonym  = taxonomy.TermSynonym

	JobRun = jobs.JobRun

	SearchFeedback = search.SearchFeedback
	SearchFilter   = search.Filter
	FieldWeights   = search.FieldWeights
	KeywordQuery   = search.KeywordQuery
	VectorQuery    = search.VectorQuery
	SearchHit      = search.Hit
	SearchCard     = search.Card
)

var (
	DocumentStatuses    = documents.Statuses
	PipelineStages      = documents.Stages
	ActiveJobStatuses   = jobs.ActiveJobStatuses
	ValidDocumentStatus = documents.ValidStatus
	StageIndex          = documents.StageIndex
	DecodeErrorSummary  = documents.DecodeErrorSummary
	KeywordID           = documents.KeywordID
	TermID              = taxonomy.TermID
	NormalizeTerm       = taxonomy.NormalizeTerm
	TermWords           = taxonomy.TermWords
)
