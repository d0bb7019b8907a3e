package document_process

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	"github.com/yungbote/docsearch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	jobrt "github.com/yungbote/docsearch-backend/internal/jobs/runtime"
	"github.com/yungbote/docsearch-backend/internal/modules/analysis"
	"github.com/yungbote/docsearch-backend/internal/modules/extraction"
	"github.com/yungbote/docsearch-backend/internal/modules/taxonomy"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/services"
)

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	text  string
}

func (f *fakeExtractor) Extract(ctx context.Context, handle, mimeType string) (*extraction.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &extraction.Extraction{
		Pages:         []extraction.Page{{Number: 1, Text: f.text, Confidence: 0.97}},
		VisualSummary: "red banner, portrait",
	}, nil
}

type fakeOracle struct {
	mu    sync.Mutex
	calls int
	fn    func(in analysis.Input) (analysis.Result, error)
	// hang makes every call wait for its context instead of calling fn.
	hang bool
}

func (f *fakeOracle) Analyze(ctx context.Context, in analysis.Input) (analysis.Result, error) {
	f.mu.Lock()
	f.calls++
	fn, hang := f.fn, f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return fn(in)
}

type notice struct {
	status string
	stage  string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) DocumentStatus(ctx context.Context, documentID uuid.UUID, jobID *uuid.UUID, status, stage, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{status: status, stage: stage})
}

// brokenFailureWrites refuses to persist the FAILED transition.
type brokenFailureWrites struct {
	repos.DocumentRepo
}

func (b brokenFailureWrites) UpdateIfActive(dbc dbctx.Context, id, jobID uuid.UUID, updates map[string]interface{}) (bool, error) {
	if updates["status"] == types.DocumentStatusFailed {
		return false, errors.New("database unavailable")
	}
	return b.DocumentRepo.UpdateIfActive(dbc, id, jobID, updates)
}

type fakeEmbedder struct {
	dim int
	out int
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := f.out
	if n == 0 {
		n = f.dim
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(len(text)%(i+2)) + 0.5
	}
	return v, nil
}

func parsed(in analysis.Input) (analysis.Result, error) {
	year := 2024
	return analysis.ParsedAnalysis{Data: analysis.Fields{
		Summary:         "Campaign flyer for Smith announcing a town hall.",
		ContentAnalysis: "Invites voters to a Tuesday meeting.",
		ConfidenceScore: 0.9,
		DocumentType:    "flyer",
		Year:            &year,
		Location:        "Springfield",
		Keywords:        []string{"Smith", "town hall"},
		ContextTags:     []string{"election"},
	}}, nil
}

type harness struct {
	db        *gorm.DB
	docs      repos.DocumentRepo
	jobRuns   repos.JobRunRepo
	analyses  repos.AnalysisResultRepo
	keywords  repos.DocumentKeywordRepo
	pages     repos.ExtractedTextRepo
	jobs      services.JobService
	extractor *fakeExtractor
	oracle    *fakeOracle
	embedder  *fakeEmbedder
	sleeps    []time.Duration
	pipe      *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	ctx := context.Background()

	testutil.SeedTerm(t, ctx, db, "Politics", "Candidates", "Smith", nil, "John Smith")
	testutil.SeedTerm(t, ctx, db, "Civic", "Meetings", "town hall", nil, "city hall meeting")

	h := &harness{
		db:        db,
		docs:      repos.NewDocumentRepo(db, log),
		jobRuns:   repos.NewJobRunRepo(db, log),
		analyses:  repos.NewAnalysisResultRepo(db, log),
		keywords:  repos.NewDocumentKeywordRepo(db, log),
		pages:     repos.NewExtractedTextRepo(db, log),
		extractor: &fakeExtractor{text: "Vote for Smith, town hall Tuesday"},
		oracle:    &fakeOracle{fn: parsed},
		embedder:  &fakeEmbedder{dim: 4},
	}
	h.jobs = services.NewJobService(db, log, h.jobRuns, nil, nil, "")
	mapper := services.NewTaxonomyService(db, log,
		repos.NewTaxonomyTermRepo(db, log),
		repos.NewTermSynonymRepo(db, log),
		taxonomy.DefaultScores(),
		time.Hour,
	)
	cfg := DefaultConfig()
	cfg.EmbeddingDim = 4
	h.pipe = New(db, log, Deps{
		Documents: h.docs,
		Pages:     h.pages,
		Analyses:  h.analyses,
		Keywords:  h.keywords,
		Batches:   repos.NewBatchJobRepo(db, log),
		Extractor: h.extractor,
		Oracle:    h.oracle,
		Mapper:    mapper,
		Embedder:  h.embedder,
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		},
	}, cfg)
	return h
}

// process enqueues and runs one pipeline job the way the worker would.
func (h *harness) process(t *testing.T, docID uuid.UUID, from []string, reset bool) *types.JobRun {
	t.Helper()
	ctx := context.Background()
	job, err := h.jobs.Enqueue(dbctx.Context{Ctx: ctx}, types.JobTypeDocumentProcess, types.EntityTypeDocument, &docID, map[string]any{
		types.PayloadDocumentID:      docID.String(),
		types.PayloadFromStatuses:    from,
		types.PayloadResetCheckpoint: reset,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := h.jobRuns.ClaimByID(dbctx.Context{Ctx: ctx}, job.ID, 10*time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("claim job: %v", err)
	}
	if err := h.pipe.Run(jobrt.NewContext(ctx, h.db, claimed, h.jobRuns, nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	rows, err := h.jobRuns.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{job.ID})
	if err != nil || len(rows) != 1 {
		t.Fatalf("reload job: %v", err)
	}
	return rows[0]
}

func (h *harness) doc(t *testing.T, id uuid.UUID) *types.Document {
	t.Helper()
	d, err := h.docs.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil || d == nil {
		t.Fatalf("reload document: %v", err)
	}
	return d
}

func TestProcessCompletesAndMapsKeywords(t *testing.T) {
	h := newHarness(t)
	d := testutil.SeedDocument(t, context.Background(), h.db, "smith.pdf", types.DocumentStatusPending)

	job := h.process(t, d.ID, []string{types.DocumentStatusPending}, false)
	if job.Status != types.JobStatusSucceeded {
		t.Fatalf("job status = %s (%s)", job.Status, job.Error)
	}

	got := h.doc(t, d.ID)
	if got.Status != types.DocumentStatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ActiveJobID != nil {
		t.Fatalf("active job not released")
	}
	if got.CompletedStage != types.StageEmbedding || got.PageCount != 1 {
		t.Fatalf("completed_stage=%q page_count=%d", got.CompletedStage, got.PageCount)
	}
	if got.DocumentType != "flyer" || got.Location != "Springfield" || got.Year == nil || *got.Year != 2024 {
		t.Fatalf("analysis attributes not denormalized: %+v", got)
	}
	if got.LowConfidence || got.LastError() != nil {
		t.Fatalf("unexpected low confidence or error")
	}
	if got.Embedding == nil || len(got.Embedding.Slice()) != 4 {
		t.Fatalf("document embedding missing")
	}

	kws, err := h.keywords.ListByDocumentIDs(dbctx.Context{Ctx: context.Background()}, []uuid.UUID{d.ID})
	if err != nil {
		t.Fatalf("keywords: %v", err)
	}
	if len(kws) < 2 {
		t.Fatalf("expected both terms mapped, got %d", len(kws))
	}
	for _, k := range kws {
		if k.RelevanceScore < 0.3 {
			t.Fatalf("keyword below threshold: %+v", k)
		}
	}
	if got.PrimaryCategory == "" {
		t.Fatalf("primary category not set")
	}

	row, err := h.analyses.GetByDocumentID(dbctx.Context{Ctx: context.Background()}, d.ID)
	if err != nil || row == nil {
		t.Fatalf("analysis row missing: %v", err)
	}
	if row.Embedding == nil {
		t.Fatalf("analysis embedding missing")
	}
	pages, _ := h.pages.ListByDocument(dbctx.Context{Ctx: context.Background()}, d.ID)
	if len(pages) != 1 || pages[0].CallToAction == "" {
		t.Fatalf("page derivation missing: %+v", pages)
	}
}

func TestTransientFailureExhaustsAttempts(t *testing.T) {
	h := newHarness(t)
	h.oracle.fn = func(analysis.Input) (analysis.Result, error) {
		return nil, context.DeadlineExceeded
	}
	d := testutil.SeedDocument(t, context.Background(), h.db, "slow.pdf", types.DocumentStatusPending)

	job := h.process(t, d.ID, []string{types.DocumentStatusPending}, false)
	if job.Status != types.JobStatusFailed || job.Stage != types.StageAnalysis {
		t.Fatalf("job = %s/%s", job.Status, job.Stage)
	}
	if h.oracle.calls != 3 {
		t.Fatalf("oracle calls = %d, want 3", h.oracle.calls)
	}
	if len(h.sleeps) != 2 || h.sleeps[0] != 2*time.Second || h.sleeps[1] != 4*time.Second {
		t.Fatalf("backoff = %v", h.sleeps)
	}

	got := h.doc(t, d.ID)
	if got.Status != types.DocumentStatusFailed || got.ActiveJobID != nil {
		t.Fatalf("status = %s active=%v", got.Status, got.ActiveJobID)
	}
	es := got.LastError()
	if es == nil || es.Stage != types.StageAnalysis || es.Attempts != 3 || !es.Transient {
		t.Fatalf("error summary = %+v", es)
	}
	if got.CompletedStage != types.StageExtraction {
		t.Fatalf("checkpoint = %q, want extraction", got.CompletedStage)
	}
}

func TestStageTimeoutIsRetriedAsTransient(t *testing.T) {
	h := newHarness(t)
	h.oracle.hang = true
	h.pipe.cfg.Timeouts[types.StageAnalysis] = 20 * time.Millisecond
	d := testutil.SeedDocument(t, context.Background(), h.db, "hung.pdf", types.DocumentStatusPending)

	job := h.process(t, d.ID, []string{types.DocumentStatusPending}, false)
	if job.Status != types.JobStatusFailed || job.Stage != types.StageAnalysis {
		t.Fatalf("job = %s/%s", job.Status, job.Stage)
	}
	if h.oracle.calls != 3 || len(h.sleeps) != 2 {
		t.Fatalf("calls=%d sleeps=%v", h.oracle.calls, h.sleeps)
	}
	got := h.doc(t, d.ID)
	es := got.LastError()
	if got.Status != types.DocumentStatusFailed || es == nil {
		t.Fatalf("status = %s error=%+v", got.Status, es)
	}
	if es.Stage != types.StageAnalysis || !es.Transient || es.Attempts != 3 {
		t.Fatalf("error summary = %+v", es)
	}
}

func TestUnrecordedFailureFailsRunWithoutNotifying(t *testing.T) {
	h := newHarness(t)
	notes := &recordingNotifier{}
	h.pipe.deps.Notify = notes
	h.pipe.deps.Documents = brokenFailureWrites{DocumentRepo: h.docs}
	h.oracle.fn = func(analysis.Input) (analysis.Result, error) {
		return nil, status.Error(codes.InvalidArgument, "prompt rejected")
	}
	ctx := context.Background()
	d := testutil.SeedDocument(t, ctx, h.db, "lost.pdf", types.DocumentStatusPending)
	docID := d.ID

	job, err := h.jobs.Enqueue(dbctx.Context{Ctx: ctx}, types.JobTypeDocumentProcess, types.EntityTypeDocument, &docID, map[string]any{
		types.PayloadDocumentID:   docID.String(),
		types.PayloadFromStatuses: []string{types.DocumentStatusPending},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := h.jobRuns.ClaimByID(dbctx.Context{Ctx: ctx}, job.ID, 10*time.Minute)
	if err != nil || claimed == nil {
		t.Fatalf("claim job: %v", err)
	}
	if err := h.pipe.Run(jobrt.NewContext(ctx, h.db, claimed, h.jobRuns, nil)); err == nil {
		t.Fatalf("Run should return the write error")
	}

	for _, n := range notes.notices {
		if n.status == types.DocumentStatusFailed {
			t.Fatalf("failure announced although it was never stored: %+v", notes.notices)
		}
	}
	got := h.doc(t, d.ID)
	if got.Status != types.DocumentStatusProcessing || got.ActiveJobID == nil || *got.ActiveJobID != job.ID {
		t.Fatalf("status = %s active=%v", got.Status, got.ActiveJobID)
	}
	if got.LastError() != nil {
		t.Fatalf("error summary written: %+v", got.LastError())
	}
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.oracle.fn = func(analysis.Input) (analysis.Result, error) {
		return nil, status.Error(codes.InvalidArgument, "prompt rejected")
	}
	d := testutil.SeedDocument(t, context.Background(), h.db, "bad.pdf", types.DocumentStatusPending)

	h.process(t, d.ID, []string{types.DocumentStatusPending}, false)
	if h.oracle.calls != 1 || len(h.sleeps) != 0 {
		t.Fatalf("calls=%d sleeps=%v", h.oracle.calls, h.sleeps)
	}
	es := h.doc(t, d.ID).LastError()
	if es == nil || es.Transient || es.Attempts != 1 {
		t.Fatalf("error summary = %+v", es)
	}
}

func TestResumeSkipsCommittedStages(t *testing.T) {
	h := newHarness(t)
	failing := true
	h.oracle.fn = func(in analysis.Input) (analysis.Result, error) {
		if failing {
			return nil, errors.New("oracle refused")
		}
		return parsed(in)
	}
	d := testutil.SeedDocument(t, context.Background(), h.db, "resume.pdf", types.DocumentStatusPending)
	h.process(t, d.ID, []string{types.DocumentStatusPending}, false)
	if h.doc(t, d.ID).Status != types.DocumentStatusFailed {
		t.Fatalf("first run should fail")
	}

	failing = false
	job := h.process(t, d.ID, []string{types.DocumentStatusFailed}, false)
	if job.Status != types.JobStatusSucceeded {
		t.Fatalf("job = %s (%s)", job.Status, job.Error)
	}
	if h.extractor.calls != 1 {
		t.Fatalf("extraction ran %d times, want 1", h.extractor.calls)
	}
	got := h.doc(t, d.ID)
	if got.Status != types.DocumentStatusCompleted || got.LastError() != nil {
		t.Fatalf("status = %s err=%+v", got.Status, got.LastError())
	}
}

func TestFallbackAnalysisFlagsLowConfidence(t *testing.T) {
	h := newHarness(t)
	h.oracle.fn = func(in analysis.Input) (analysis.Result, error) {
		return analysis.NewFallback(in, "malformed output"), nil
	}
	d := testutil.SeedDocument(t, context.Background(), h.db, "odd.pdf", types.DocumentStatusPending)

	h.process(t, d.ID, []string{types.DocumentStatusPending}, false)
	got := h.doc(t, d.ID)
	if got.Status != types.DocumentStatusCompleted || !got.LowConfidence {
		t.Fatalf("status=%s low_confidence=%v", got.Status, got.LowConfidence)
	}
	row, _ := h.analyses.GetByDocumentID(dbctx.Context{Ctx: context.Background()}, d.ID)
	if row == nil || !row.Fallback || row.FallbackReason != "malformed output" {
		t.Fatalf("fallback row = %+v", row)
	}
}

func TestReprocessingIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := testutil.SeedDocument(t, ctx, h.db, "twice.pdf", types.DocumentStatusPending)

	snapshot := func() (uuid.UUID, []string, []uuid.UUID) {
		row, _ := h.analyses.GetByDocumentID(dbctx.Context{Ctx: ctx}, d.ID)
		kws, _ := h.keywords.ListByDocumentIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{d.ID})
		keys := make([]string, 0, len(kws))
		for _, k := range kws {
			keys = append(keys, k.ID.String()+"|"+k.TermID.String()+"|"+k.MatchKind)
		}
		sort.Strings(keys)
		pages, _ := h.pages.ListByDocument(dbctx.Context{Ctx: ctx}, d.ID)
		pageIDs := make([]uuid.UUID, 0, len(pages))
		for _, p := range pages {
			pageIDs = append(pageIDs, p.ID)
		}
		return row.ID, keys, pageIDs
	}

	h.process(t, d.ID, []string{types.DocumentStatusPending}, false)
	a1, k1, p1 := snapshot()

	job := h.process(t, d.ID, []string{types.DocumentStatusCompleted}, true)
	if job.Status != types.JobStatusSucceeded {
		t.Fatalf("reprocess job = %s (%s)", job.Status, job.Error)
	}
	if h.extractor.calls != 2 {
		t.Fatalf("reset checkpoint should rerun extraction, calls=%d", h.extractor.calls)
	}
	a2, k2, p2 := snapshot()
	if a1 != a2 {
		t.Fatalf("analysis row id changed")
	}
	if strings.Join(k1, ",") != strings.Join(k2, ",") {
		t.Fatalf("keyword rows changed:\n%v\n%v", k1, k2)
	}
	if len(p1) != len(p2) || p1[0] != p2[0] {
		t.Fatalf("page rows changed")
	}
}

func TestRecoveryDuringRunDropsOutput(t *testing.T) {
	h := newHarness(t)
	var docID uuid.UUID
	h.oracle.fn = func(in analysis.Input) (analysis.Result, error) {
		ctx := context.Background()
		summary := types.ErrorSummary{Stage: types.StageRecovery, Message: "marked failed by operator", OccurredAt: time.Now().UTC()}
		if _, err := h.jobRuns.CancelRunnableForEntity(dbctx.Context{Ctx: ctx}, types.EntityTypeDocument, docID, "recovered"); err != nil {
			return nil, err
		}
		if _, err := h.docs.ForceStatus(dbctx.Context{Ctx: ctx}, docID, types.DocumentStatusFailed, map[string]interface{}{
			"error_summary": summary.JSON(),
		}); err != nil {
			return nil, err
		}
		return parsed(in)
	}
	d := testutil.SeedDocument(t, context.Background(), h.db, "stuck.pdf", types.DocumentStatusPending)
	docID = d.ID

	job := h.process(t, d.ID, []string{types.DocumentStatusPending}, false)
	if job.Status != types.JobStatusCanceled {
		t.Fatalf("job status = %s, want canceled", job.Status)
	}
	got := h.doc(t, d.ID)
	if got.Status != types.DocumentStatusFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if es := got.LastError(); es == nil || es.Stage != types.StageRecovery {
		t.Fatalf("operator error overwritten: %+v", es)
	}
	row, _ := h.analyses.GetByDocumentID(dbctx.Context{Ctx: context.Background()}, d.ID)
	if row != nil {
		t.Fatalf("analysis committed after recovery")
	}
}

func TestEmbeddingDimensionMismatchFails(t *testing.T) {
	h := newHarness(t)
	h.embedder.out = 3
	d := testutil.SeedDocument(t, context.Background(), h.db, "dims.pdf", types.DocumentStatusPending)

	h.process(t, d.ID, []string{types.DocumentStatusPending}, false)
	got := h.doc(t, d.ID)
	es := got.LastError()
	if got.Status != types.DocumentStatusFailed || es == nil || es.Stage != types.StageEmbedding || es.Transient {
		t.Fatalf("status=%s error=%+v", got.Status, es)
	}
	if got.CompletedStage != types.StageTaxonomy {
		t.Fatalf("checkpoint = %q", got.CompletedStage)
	}
}

func TestNotClaimableDocumentFailsJob(t *testing.T) {
	h := newHarness(t)
	d := testutil.SeedDocument(t, context.Background(), h.db, "done.pdf", types.DocumentStatusCompleted)

	job := h.process(t, d.ID, []string{types.DocumentStatusPending, types.DocumentStatusFailed}, false)
	if job.Status != types.JobStatusFailed || job.Stage != "claim" {
		t.Fatalf("job = %s/%s", job.Status, job.Stage)
	}
	if h.extractor.calls != 0 {
		t.Fatalf("extractor should not run")
	}
	if h.doc(t, d.ID).Status != types.DocumentStatusCompleted {
		t.Fatalf("document status changed")
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{status.Error(codes.Unavailable, "down"), true},
		{status.Error(codes.ResourceExhausted, "quota"), true},
		{status.Error(codes.InvalidArgument, "bad"), false},
		{errors.New("plain"), false},
		{analysis.ErrDimensionMismatch, false},
	}
	for _, tc := range cases {
		if got := isTransient(tc.err); got != tc.want {
			t.Fatalf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
