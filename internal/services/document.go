package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/modules/extraction"
	apperr "github.com/yungbote/docsearch-backend/internal/pkg/errors"
	"github.com/yungbote/docsearch-backend/internal/platform/blob"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type BlobWriter interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, handle string) error
}

type UploadInput struct {
	Filename string
	MimeType string
	Size     int64
	Body     io.Reader
	BatchID  *uuid.UUID
}

type RegisterInput struct {
	BlobHandle string     `json:"blob_handle"`
	Filename   string     `json:"filename"`
	MimeType   string     `json:"mime_type"`
	ByteSize   int64      `json:"byte_size"`
	BatchID    *uuid.UUID `json:"batch_id"`
}

type SubmitResult struct {
	Document *types.Document `json:"document"`
	Job      *types.JobRun   `json:"job"`
}

// SubmitOptions controls which statuses a document may be queued from and
// whether its stage checkpoint is discarded.
type SubmitOptions struct {
	FromStatuses    []string
	ResetCheckpoint bool
	Reason          string
}

type DocumentDetail struct {
	Document *types.Document          `json:"document"`
	Analysis *types.AnalysisResult    `json:"analysis,omitempty"`
	Keywords []*types.DocumentKeyword `json:"keywords"`
}

type DocumentStatus struct {
	ID              uuid.UUID           `json:"id"`
	Status          string              `json:"status"`
	CompletedStage  string              `json:"completed_stage,omitempty"`
	ActiveJobID     *uuid.UUID          `json:"active_job_id,omitempty"`
	Queued          bool                `json:"queued"`
	StatusChangedAt time.Time           `json:"status_changed_at"`
	ProcessingMS    int64               `json:"processing_ms"`
	LowConfidence   bool                `json:"low_confidence"`
	Error           *types.ErrorSummary `json:"error,omitempty"`
}

type UploadLimits struct {
	MaxBytes     int64
	AllowedMimes []string
}

type DocumentService interface {
	Upload(ctx context.Context, in UploadInput) (*SubmitResult, error)
	Register(ctx context.Context, in RegisterInput) (*SubmitResult, error)
	Submit(ctx context.Context, id uuid.UUID) (*types.JobRun, error)
	Reprocess(ctx context.Context, id uuid.UUID) (*types.JobRun, error)
	Enqueue(ctx context.Context, id uuid.UUID, opts SubmitOptions) (*types.JobRun, error)
	Get(ctx context.Context, id uuid.UUID) (*DocumentDetail, error)
	Status(ctx context.Context, id uuid.UUID) (*DocumentStatus, error)
}

type documentService struct {
	db       *gorm.DB
	log      *logger.Logger
	docs     repos.DocumentRepo
	analyses repos.AnalysisResultRepo
	keywords repos.DocumentKeywordRepo
	batches  repos.BatchJobRepo
	jobRuns  repos.JobRunRepo
	jobs     JobService
	blobs    BlobWriter
	notify   DocumentNotifier
	limits   UploadLimits
	allowed  map[string]bool
}

func NewDocumentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	docs repos.DocumentRepo,
	analyses repos.AnalysisResultRepo,
	keywords repos.DocumentKeywordRepo,
	batches repos.BatchJobRepo,
	jobRuns repos.JobRunRepo,
	jobs JobService,
	blobs BlobWriter,
	notify DocumentNotifier,
	limits UploadLimits,
) DocumentService {
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = 50 << 20
	}
	if len(limits.AllowedMimes) == 0 {
		limits.AllowedMimes = extraction.SupportedTypes()
	}
	allowed := make(map[string]bool, len(limits.AllowedMimes))
	for _, m := range limits.AllowedMimes {
		if m = normalizeMime(m); m != "" && extraction.Supported(m) {
			allowed[m] = true
		}
	}
	return &documentService{
		db:       db,
		log:      baseLog.With("service", "DocumentService"),
		docs:     docs,
		analyses: analyses,
		keywords: keywords,
		batches:  batches,
		jobRuns:  jobRuns,
		jobs:     jobs,
		blobs:    blobs,
		notify:   notify,
		limits:   limits,
		allowed:  allowed,
	}
}

func normalizeMime(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.Index(m, ";"); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	if m == "image/jpg" {
		return "image/jpeg"
	}
	return m
}

// validate runs before any blob write, row, or job exists.
func (s *documentService) validate(filename, mimeType string, size int64) (string, string, error) {
	filename = strings.TrimSpace(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	if filename == "" || filename == "." || filename == "/" {
		return "", "", fmt.Errorf("%w: filename is required", apperr.ErrInvalidArgument)
	}
	if size <= 0 {
		return "", "", fmt.Errorf("%w: empty document", apperr.ErrInvalidArgument)
	}
	if size > s.limits.MaxBytes {
		return "", "", fmt.Errorf("%w: %d bytes exceeds the %d byte limit", apperr.ErrTooLarge, size, s.limits.MaxBytes)
	}
	mime := normalizeMime(mimeType)
	if !s.allowed[mime] {
		return "", "", fmt.Errorf("%w: %q", apperr.ErrUnsupportedType, mimeType)
	}
	return filename, mime, nil
}

func (s *documentService) Upload(ctx context.Context, in UploadInput) (*SubmitResult, error) {
	filename, mime, err := s.validate(in.Filename, in.MimeType, in.Size)
	if err != nil {
		return nil, err
	}
	if in.Body == nil {
		return nil, fmt.Errorf("%w: missing document body", apperr.ErrInvalidArgument)
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("blob store not configured")
	}
	if err := s.checkBatch(ctx, in.BatchID); err != nil {
		return nil, err
	}
	// The declared size is only a hint; the bytes actually read decide.
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(in.Body, s.limits.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document body: %w", err)
	}
	if n > s.limits.MaxBytes {
		return nil, fmt.Errorf("%w: body exceeds the %d byte limit", apperr.ErrTooLarge, s.limits.MaxBytes)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty document", apperr.ErrInvalidArgument)
	}

	docID := uuid.New()
	key := "documents/" + docID.String() + "/" + filename
	handle, err := s.blobs.Put(ctx, key, bytes.NewReader(buf.Bytes()), n, mime)
	if err != nil {
		return nil, fmt.Errorf("store document bytes: %w", err)
	}
	res, err := s.create(ctx, &types.Document{
		ID:         docID,
		BatchJobID: in.BatchID,
		Filename:   filename,
		BlobHandle: handle,
		MimeType:   mime,
		ByteSize:   n,
	})
	if err != nil {
		// No row references the object, so nothing else will remove it.
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), handle); derr != nil {
			s.log.Warn("orphaned upload blob", "handle", handle, "error", derr)
		}
		return nil, err
	}
	return res, nil
}

func (s *documentService) Register(ctx context.Context, in RegisterInput) (*SubmitResult, error) {
	filename, mime, err := s.validate(in.Filename, in.MimeType, in.ByteSize)
	if err != nil {
		return nil, err
	}
	h, err := blob.ParseHandle(in.BlobHandle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
	}
	if err := s.checkBatch(ctx, in.BatchID); err != nil {
		return nil, err
	}
	return s.create(ctx, &types.Document{
		BatchJobID: in.BatchID,
		Filename:   filename,
		BlobHandle: h.String(),
		MimeType:   mime,
		ByteSize:   in.ByteSize,
	})
}

func (s *documentService) checkBatch(ctx context.Context, batchID *uuid.UUID) error {
	if batchID == nil || *batchID == uuid.Nil {
		return nil
	}
	b, err := s.batches.GetByID(dbctx.New(ctx), *batchID)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w: batch %s not found", apperr.ErrInvalidArgument, batchID)
	}
	return nil
}

// create writes the PENDING document and its job in one transaction.
func (s *documentService) create(ctx context.Context, doc *types.Document) (*SubmitResult, error) {
	if doc.BatchJobID != nil && *doc.BatchJobID == uuid.Nil {
		doc.BatchJobID = nil
	}
	var job *types.JobRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.docs.Create(dbc, []*types.Document{doc}); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if doc.BatchJobID != nil {
			if err := s.batches.AddTotal(dbc, *doc.BatchJobID, 1); err != nil {
				return err
			}
		}
		var err error
		job, err = s.jobs.Enqueue(dbc, types.JobTypeDocumentProcess, types.EntityTypeDocument, &doc.ID,
			jobPayload(doc.ID, SubmitOptions{FromStatuses: []string{types.DocumentStatusPending}, Reason: "upload"}))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, job)
	s.log.Info("document created", "document_id", doc.ID, "job_id", job.ID, "filename", doc.Filename, "bytes", doc.ByteSize)
	if s.notify != nil {
		s.notify.DocumentStatus(ctx, doc.ID, &job.ID, doc.Status, "queued", "")
	}
	return &SubmitResult{Document: doc, Job: job}, nil
}

func jobPayload(docID uuid.UUID, opts SubmitOptions) map[string]any {
	from := make([]any, 0, len(opts.FromStatuses))
	for _, st := range opts.FromStatuses {
		from = append(from, st)
	}
	return map[string]any{
		types.PayloadDocumentID:      docID.String(),
		types.PayloadFromStatuses:    from,
		types.PayloadResetCheckpoint: opts.ResetCheckpoint,
		types.PayloadReason:          opts.Reason,
	}
}

func (s *documentService) dispatch(ctx context.Context, job *types.JobRun) {
	if job == nil {
		return
	}
	if err := s.jobs.Dispatch(dbctx.New(ctx), job.ID); err != nil {
		// The row is marked failed by Dispatch; the document stays in its
		// current status and can be resubmitted.
		s.log.Warn("job dispatch failed", "job_id", job.ID, "error", err)
	}
}

// Submit queues a PENDING or FAILED document without discarding checkpoints.
func (s *documentService) Submit(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	return s.Enqueue(ctx, id, SubmitOptions{
		FromStatuses: []string{types.DocumentStatusPending, types.DocumentStatusFailed},
		Reason:       "submit",
	})
}

// Reprocess runs every stage again, including for COMPLETED documents.
func (s *documentService) Reprocess(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	return s.Enqueue(ctx, id, SubmitOptions{
		FromStatuses:    []string{types.DocumentStatusPending, types.DocumentStatusFailed, types.DocumentStatusCompleted},
		ResetCheckpoint: true,
		Reason:          "reprocess",
	})
}

// Enqueue is the in-flight guard. A document that is PROCESSING or already
// has a queued/running job is rejected with ErrAlreadyInFlight; one whose
// status is outside opts.FromStatuses with ErrInvalidTransition.
func (s *documentService) Enqueue(ctx context.Context, id uuid.UUID, opts SubmitOptions) (*types.JobRun, error) {
	var job *types.JobRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		doc, err := s.docs.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return apperr.ErrNotFound
		}
		if doc.Status == types.DocumentStatusProcessing {
			return apperr.ErrAlreadyInFlight
		}
		if !containsString(opts.FromStatuses, doc.Status) {
			return fmt.Errorf("%w: cannot queue a %s document", apperr.ErrInvalidTransition, doc.Status)
		}
		busy, err := s.jobRuns.HasRunnableForEntity(dbc, types.EntityTypeDocument, id, types.JobTypeDocumentProcess)
		if err != nil {
			return err
		}
		if busy {
			return apperr.ErrAlreadyInFlight
		}
		job, err = s.jobs.Enqueue(dbc, types.JobTypeDocumentProcess, types.EntityTypeDocument, &id, jobPayload(id, opts))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, job)
	s.log.Info("document queued", "document_id", id, "job_id", job.ID, "reason", opts.Reason, "reset_checkpoint", opts.ResetCheckpoint)
	return job, nil
}

func (s *documentService) Get(ctx context.Context, id uuid.UUID) (*DocumentDetail, error) {
	dbc := dbctx.New(ctx)
	doc, err := s.docs.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.ErrNotFound
	}
	analysis, err := s.analyses.GetByDocumentID(dbc, id)
	if err != nil {
		return nil, err
	}
	kws, err := s.keywords.ListByDocumentIDs(dbc, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if kws == nil {
		kws = []*types.DocumentKeyword{}
	}
	return &DocumentDetail{Document: doc, Analysis: analysis, Keywords: kws}, nil
}

func (s *documentService) Status(ctx context.Context, id uuid.UUID) (*DocumentStatus, error) {
	dbc := dbctx.New(ctx)
	doc, err := s.docs.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.ErrNotFound
	}
	out := &DocumentStatus{
		ID:              doc.ID,
		Status:          doc.Status,
		CompletedStage:  doc.CompletedStage,
		ActiveJobID:     doc.ActiveJobID,
		StatusChangedAt: doc.StatusChangedAt,
		ProcessingMS:    doc.ProcessingMS,
		LowConfidence:   doc.LowConfidence,
	}
	if doc.Status == types.DocumentStatusFailed {
		out.Error = doc.LastError()
	}
	if doc.Status != types.DocumentStatusProcessing {
		queued, err := s.jobRuns.HasRunnableForEntity(dbc, types.EntityTypeDocument, id, types.JobTypeDocumentProcess)
		if err != nil {
			return nil, err
		}
		out.Queued = queued
	}
	return out, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
