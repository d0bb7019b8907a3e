package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	"github.com/yungbote/docsearch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/modules/taxonomy"
	apperr "github.com/yungbote/docsearch-backend/internal/pkg/errors"
	"github.com/yungbote/docsearch-backend/internal/platform/blob"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
)

type fixture struct {
	db        *gorm.DB
	blobs     *blob.MemoryStore
	docs      repos.DocumentRepo
	jobRuns   repos.JobRunRepo
	batches   repos.BatchJobRepo
	jobs      JobService
	documents DocumentService
	recovery  RecoveryService
	taxonomy  TaxonomyService
	sleeps    []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	f := &fixture{db: db, blobs: blob.NewMemoryStore("uploads")}
	f.docs = repos.NewDocumentRepo(db, log)
	f.jobRuns = repos.NewJobRunRepo(db, log)
	f.batches = repos.NewBatchJobRepo(db, log)
	notifier := NewNotifier(log, nil)
	f.jobs = NewJobService(db, log, f.jobRuns, notifier, nil, "")
	f.documents = NewDocumentService(db, log,
		f.docs,
		repos.NewAnalysisResultRepo(db, log),
		repos.NewDocumentKeywordRepo(db, log),
		f.batches,
		f.jobRuns,
		f.jobs,
		f.blobs,
		notifier,
		UploadLimits{MaxBytes: 1024},
	)
	f.recovery = NewRecoveryService(db, log, f.docs, f.jobRuns, f.documents, f.jobs, f.blobs, notifier, RecoveryConfig{
		Sleep: func(ctx context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return nil
		},
	})
	f.taxonomy = NewTaxonomyService(db, log,
		repos.NewTaxonomyTermRepo(db, log),
		repos.NewTermSynonymRepo(db, log),
		taxonomy.DefaultScores(),
		time.Hour,
	)
	return f
}

func (f *fixture) jobsFor(t *testing.T, docID uuid.UUID) []*types.JobRun {
	t.Helper()
	var out []*types.JobRun
	if err := f.db.Where("entity_id = ?", docID).Find(&out).Error; err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	return out
}

// finishJobs marks every active job of the document succeeded, as a worker would.
func (f *fixture) finishJobs(t *testing.T, docID uuid.UUID) {
	t.Helper()
	if err := f.db.Model(&types.JobRun{}).
		Where("entity_id = ? AND status IN ?", docID, types.ActiveJobStatuses).
		Update("status", types.JobStatusSucceeded).Error; err != nil {
		t.Fatalf("finish jobs: %v", err)
	}
}

func TestUploadStoresBlobAndQueuesJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := []byte("%PDF-1.4 fake")

	res, err := f.documents.Upload(ctx, UploadInput{
		Filename: "../flyers/Vote Smith.pdf",
		MimeType: "application/pdf; charset=binary",
		Size:     int64(len(body)),
		Body:     bytes.NewReader(body),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Document.Status != types.DocumentStatusPending {
		t.Fatalf("status = %s, want PENDING", res.Document.Status)
	}
	if res.Document.Filename != "Vote Smith.pdf" {
		t.Fatalf("filename = %q", res.Document.Filename)
	}
	stored, err := f.blobs.Get(ctx, res.Document.BlobHandle)
	if err != nil || !bytes.Equal(stored, body) {
		t.Fatalf("blob not stored: %v", err)
	}
	if res.Job == nil || res.Job.Status != types.JobStatusQueued || res.Job.JobType != types.JobTypeDocumentProcess {
		t.Fatalf("unexpected job %+v", res.Job)
	}
	st, err := f.documents.Status(ctx, res.Document.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Queued || st.Error != nil {
		t.Fatalf("status view = %+v", st)
	}
}

func TestUploadRejectsBeforeAnyRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   UploadInput
		want error
	}{
		{"too large", UploadInput{Filename: "a.pdf", MimeType: "application/pdf", Size: 4096, Body: strings.NewReader("x")}, apperr.ErrTooLarge},
		{"unsupported", UploadInput{Filename: "a.docx", MimeType: "application/msword", Size: 10, Body: strings.NewReader("x")}, apperr.ErrUnsupportedType},
		{"no filename", UploadInput{Filename: " ", MimeType: "application/pdf", Size: 10, Body: strings.NewReader("x")}, apperr.ErrInvalidArgument},
		{"empty", UploadInput{Filename: "a.pdf", MimeType: "application/pdf", Size: 0, Body: strings.NewReader("")}, apperr.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.documents.Upload(ctx, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	var docs, jobs int64
	f.db.Model(&types.Document{}).Count(&docs)
	f.db.Model(&types.JobRun{}).Count(&jobs)
	if docs != 0 || jobs != 0 {
		t.Fatalf("rejected uploads left %d documents and %d jobs", docs, jobs)
	}
}

func TestUploadRejectsBodyLongerThanDeclared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.documents.Upload(ctx, UploadInput{
		Filename: "big.pdf",
		MimeType: "application/pdf",
		Size:     10,
		Body:     bytes.NewReader(bytes.Repeat([]byte("x"), 1025)),
	})
	if !errors.Is(err, apperr.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if f.blobs.Len() != 0 {
		t.Fatalf("oversized body was stored")
	}

	body := []byte("%PDF-1.4 short")
	res, err := f.documents.Upload(ctx, UploadInput{
		Filename: "short.pdf",
		MimeType: "application/pdf",
		Size:     900,
		Body:     bytes.NewReader(body),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Document.ByteSize != int64(len(body)) {
		t.Fatalf("byte_size = %d, want bytes read %d", res.Document.ByteSize, len(body))
	}
}

type failingCreates struct {
	repos.DocumentRepo
}

func (failingCreates) Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error) {
	return nil, errors.New("disk full")
}

func TestUploadRemovesBlobWhenRowFails(t *testing.T) {
	f := newFixture(t)
	log := testutil.Logger(t)
	svc := NewDocumentService(f.db, log,
		failingCreates{DocumentRepo: f.docs},
		repos.NewAnalysisResultRepo(f.db, log),
		repos.NewDocumentKeywordRepo(f.db, log),
		f.batches,
		f.jobRuns,
		f.jobs,
		f.blobs,
		nil,
		UploadLimits{MaxBytes: 1024},
	)

	_, err := svc.Upload(context.Background(), UploadInput{
		Filename: "a.pdf",
		MimeType: "application/pdf",
		Size:     4,
		Body:     strings.NewReader("%PDF"),
	})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v", err)
	}
	if f.blobs.Len() != 0 {
		t.Fatalf("blob left behind after failed create")
	}
	var jobs int64
	f.db.Model(&types.JobRun{}).Count(&jobs)
	if jobs != 0 {
		t.Fatalf("jobs = %d", jobs)
	}
}

func TestRegisterWithBatchCountsTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch, err := f.batches.Create(dbctx.New(ctx), &types.BatchJob{Name: "october mailers"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	_, err = f.documents.Register(ctx, RegisterInput{
		BlobHandle: "gs://archive/mailers/one.png",
		Filename:   "one.png",
		MimeType:   "image/png",
		ByteSize:   100,
		BatchID:    &batch.ID,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, _ := f.batches.GetByID(dbctx.New(ctx), batch.ID)
	if got.TotalCount != 1 {
		t.Fatalf("total_count = %d, want 1", got.TotalCount)
	}

	_, err = f.documents.Register(ctx, RegisterInput{BlobHandle: "not-a-handle", Filename: "x.png", MimeType: "image/png", ByteSize: 1})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("bad handle err = %v", err)
	}
	missing := uuid.New()
	_, err = f.documents.Register(ctx, RegisterInput{BlobHandle: "gs://a/b.png", Filename: "b.png", MimeType: "image/png", ByteSize: 1, BatchID: &missing})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("missing batch err = %v", err)
	}
}

func TestConcurrentSubmitQueuesOneJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := testutil.SeedDocument(t, ctx, f.db, "failed.pdf", types.DocumentStatusFailed)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		inFlight int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.documents.Submit(ctx, doc.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrAlreadyInFlight):
				inFlight++
			default:
				t.Errorf("unexpected submit error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || inFlight != n-1 {
		t.Fatalf("ok=%d in_flight=%d, want 1 and %d", ok, inFlight, n-1)
	}
	if got := len(f.jobsFor(t, doc.ID)); got != 1 {
		t.Fatalf("jobs = %d, want 1", got)
	}
}

func TestSubmitGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	processing := testutil.SeedDocument(t, ctx, f.db, "busy.pdf", types.DocumentStatusProcessing)
	if _, err := f.documents.Submit(ctx, processing.ID); !errors.Is(err, apperr.ErrAlreadyInFlight) {
		t.Fatalf("PROCESSING submit err = %v", err)
	}
	completed := testutil.SeedDocument(t, ctx, f.db, "done.pdf", types.DocumentStatusCompleted)
	if _, err := f.documents.Submit(ctx, completed.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("COMPLETED submit err = %v", err)
	}
	if _, err := f.documents.Submit(ctx, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing submit err = %v", err)
	}

	job, err := f.documents.Reprocess(ctx, completed.ID)
	if err != nil {
		t.Fatalf("Reprocess COMPLETED: %v", err)
	}
	if !strings.Contains(string(job.Payload), `"reset_checkpoint":true`) {
		t.Fatalf("reprocess payload = %s", job.Payload)
	}
	// The document stays COMPLETED until a worker claims the job.
	got, _ := f.docs.GetByID(dbctx.New(ctx), completed.ID)
	if got.Status != types.DocumentStatusCompleted {
		t.Fatalf("queued reprocess changed status to %s", got.Status)
	}
}

func TestRecoverActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbc := dbctx.New(ctx)

	failed := testutil.SeedDocument(t, ctx, f.db, "failed.pdf", types.DocumentStatusFailed)
	stuck := testutil.SeedDocument(t, ctx, f.db, "stuck.pdf", types.DocumentStatusPending)
	doomed := testutil.SeedDocument(t, ctx, f.db, "doomed.pdf", types.DocumentStatusPending)

	out, err := f.recovery.Recover(ctx, []uuid.UUID{failed.ID, failed.ID, uuid.New()}, ActionRetry)
	if err != nil {
		t.Fatalf("Recover retry: %v", err)
	}
	if len(out) != 2 || out[0].Outcome != OutcomeSubmitted || out[1].Outcome != OutcomeNotFound {
		t.Fatalf("retry outcomes = %+v", out)
	}

	// A stuck document with a queued job: markFailed cancels the job.
	if _, err := f.documents.Submit(ctx, stuck.ID); err != nil {
		t.Fatalf("Submit stuck: %v", err)
	}
	out, err = f.recovery.Recover(ctx, []uuid.UUID{stuck.ID}, ActionMarkFailed)
	if err != nil || out[0].Outcome != OutcomeMarkedFailed {
		t.Fatalf("markFailed: %+v %v", out, err)
	}
	got, _ := f.docs.GetByID(dbc, stuck.ID)
	if got.Status != types.DocumentStatusFailed || got.LastError() == nil || got.LastError().Stage != types.StageRecovery {
		t.Fatalf("after markFailed: %+v", got)
	}
	for _, j := range f.jobsFor(t, stuck.ID) {
		if j.Status != types.JobStatusCanceled {
			t.Fatalf("job %s status = %s, want canceled", j.ID, j.Status)
		}
	}

	out, err = f.recovery.Recover(ctx, []uuid.UUID{doomed.ID}, ActionDelete)
	if err != nil || out[0].Outcome != OutcomeDeleted {
		t.Fatalf("delete: %+v %v", out, err)
	}
	if d, _ := f.docs.GetByID(dbc, doomed.ID); d != nil {
		t.Fatalf("document still present after delete")
	}

	if _, err := f.recovery.Recover(ctx, []uuid.UUID{failed.ID}, "explode"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("bad action err = %v", err)
	}

	counts, err := f.recovery.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[types.DocumentStatusFailed] != 2 || counts[types.DocumentStatusCompleted] != 0 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestListStuck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := testutil.SeedDocument(t, ctx, f.db, "old.pdf", types.DocumentStatusProcessing)
	testutil.SeedDocument(t, ctx, f.db, "fresh.pdf", types.DocumentStatusPending)
	testutil.SeedDocument(t, ctx, f.db, "done.pdf", types.DocumentStatusCompleted)
	f.db.Model(&types.Document{}).Where("id = ?", old.ID).Update("status_changed_at", time.Now().UTC().Add(-2*time.Hour))

	got, err := f.recovery.ListStuck(ctx, time.Hour, 0)
	if err != nil {
		t.Fatalf("ListStuck: %v", err)
	}
	if len(got) != 1 || got[0].ID != old.ID {
		t.Fatalf("stuck = %+v", got)
	}
	if _, err := f.recovery.ListStuck(ctx, 0, 0); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("zero threshold err = %v", err)
	}
}

func TestReprocessBatchSubmitsEachOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		d := testutil.SeedDocument(t, ctx, f.db, "failed-"+string(rune('a'+i))+".pdf", types.DocumentStatusFailed)
		ids = append(ids, d.ID)
	}

	report, err := f.recovery.ReprocessBatch(ctx, ReprocessRequest{BatchSize: 2, Delay: time.Second})
	if err != nil {
		t.Fatalf("ReprocessBatch: %v", err)
	}
	if report.Batches != 3 || report.Selected != 5 || len(report.Outcomes) != 5 {
		t.Fatalf("report = %+v", report)
	}
	if len(f.sleeps) != 2 {
		t.Fatalf("sleeps = %v, want two gaps", f.sleeps)
	}
	for _, d := range f.sleeps {
		if d < time.Second {
			t.Fatalf("gap %v shorter than delay", d)
		}
	}
	wantBatch := []int{1, 1, 2, 2, 3}
	for i, o := range report.Outcomes {
		if o.Outcome != OutcomeSubmitted || o.Batch != wantBatch[i] {
			t.Fatalf("outcome %d = %+v", i, o)
		}
	}
	for _, id := range ids {
		if got := len(f.jobsFor(t, id)); got != 1 {
			t.Fatalf("document %s has %d jobs, want 1", id, got)
		}
	}

	// A second run finds the same FAILED rows but every one is already queued.
	report, err = f.recovery.ReprocessBatch(ctx, ReprocessRequest{BatchSize: 5})
	if err != nil {
		t.Fatalf("second ReprocessBatch: %v", err)
	}
	for _, o := range report.Outcomes {
		if o.Outcome != OutcomeAlreadyRunning {
			t.Fatalf("second run outcome = %+v", o)
		}
	}
	for _, id := range ids {
		f.finishJobs(t, id)
	}
}

func TestReprocessBatchWaitsForCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	busy := testutil.SeedDocument(t, ctx, f.db, "busy.pdf", types.DocumentStatusPending)
	if _, err := f.documents.Submit(ctx, busy.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	testutil.SeedDocument(t, ctx, f.db, "failed.pdf", types.DocumentStatusFailed)

	polls := 0
	svc := NewRecoveryService(f.db, testutil.Logger(t), f.docs, f.jobRuns, f.documents, f.jobs, nil, nil, RecoveryConfig{
		MaxInflight:  1,
		CapacityPoll: time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			polls++
			f.finishJobs(t, busy.ID)
			return nil
		},
	})
	report, err := svc.ReprocessBatch(ctx, ReprocessRequest{BatchSize: 1})
	if err != nil {
		t.Fatalf("ReprocessBatch: %v", err)
	}
	if polls != 1 {
		t.Fatalf("polls = %d, want 1", polls)
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].Outcome != OutcomeSubmitted {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
}

func TestTaxonomyServiceAddTermAndView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed, err := taxonomy.ParseSeed(strings.NewReader(`
categories:
  - name: Events
    subcategories:
      - name: Civic
        terms:
          - name: town hall
            synonyms: [city hall meeting]
`))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if _, err := f.taxonomy.Seed(ctx, seed); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Reseeding is idempotent.
	if _, err := f.taxonomy.Seed(ctx, seed); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	exp, err := f.taxonomy.Expand(ctx, "town hall", 8)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	found := false
	for _, e := range exp {
		if e == "city hall meeting" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expansions = %v", exp)
	}

	term, err := f.taxonomy.AddTerm(ctx, AddTermInput{
		PrimaryCategory: "People",
		Subcategory:     "Candidates",
		Term:            "Smith",
		Synonyms:        []string{"John Smith"},
	})
	if err != nil {
		t.Fatalf("AddTerm: %v", err)
	}
	if _, err := f.taxonomy.AddTerm(ctx, AddTermInput{PrimaryCategory: "people", Subcategory: "candidates", Term: "smith"}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate path err = %v", err)
	}
	missing := uuid.New()
	if _, err := f.taxonomy.AddTerm(ctx, AddTermInput{PrimaryCategory: "People", Term: "Jones", ParentID: &missing}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("unknown parent err = %v", err)
	}

	matches, err := f.taxonomy.Map(ctx, []string{"John Smith"}, "")
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(matches) == 0 || matches[0].TermID != term.ID || matches[0].Kind != taxonomy.KindSynonym {
		t.Fatalf("matches = %+v", matches)
	}

	view, err := f.taxonomy.View(ctx)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if len(view) == 0 {
		t.Fatalf("empty view")
	}
}

func TestFeedbackRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	svc := NewFeedbackService(log, f.docs, repos.NewSearchFeedbackRepo(f.db, log))
	doc := testutil.SeedDocument(t, ctx, f.db, "flyer.pdf", types.DocumentStatusCompleted)

	row, err := svc.Record(ctx, FeedbackInput{Query: " town hall ", DocumentID: doc.ID, Relevant: true, Position: 2})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if row.Query != "town hall" {
		t.Fatalf("query = %q", row.Query)
	}
	if _, err := svc.Record(ctx, FeedbackInput{Query: "x", DocumentID: uuid.New()}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown document err = %v", err)
	}
	if _, err := svc.Record(ctx, FeedbackInput{DocumentID: doc.ID}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("empty query err = %v", err)
	}
	rows, err := svc.ListForDocument(ctx, doc.ID, 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListForDocument: %d %v", len(rows), err)
	}
}
