package documents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/docsearch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
)

func TestDocumentRepoClaimAndActiveGuard(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	doc := testutil.SeedDocument(t, ctx, db, "flyer.pdf", types.DocumentStatusPending)
	jobA := uuid.New()
	jobB := uuid.New()

	ok, err := repo.ClaimForJob(dbc, doc.ID, jobA, []string{types.DocumentStatusPending}, false)
	if err != nil || !ok {
		t.Fatalf("ClaimForJob A: ok=%v err=%v", ok, err)
	}
	ok, err = repo.ClaimForJob(dbc, doc.ID, jobB, []string{types.DocumentStatusPending}, false)
	if err != nil {
		t.Fatalf("ClaimForJob B: %v", err)
	}
	if ok {
		t.Fatalf("second job must not claim a PROCESSING document")
	}
	// The owning job may reclaim after a restart.
	ok, err = repo.ClaimForJob(dbc, doc.ID, jobA, []string{types.DocumentStatusPending}, false)
	if err != nil || !ok {
		t.Fatalf("reclaim by owner: ok=%v err=%v", ok, err)
	}

	ok, err = repo.UpdateIfActive(dbc, doc.ID, jobB, map[string]interface{}{"completed_stage": types.StageExtraction})
	if err != nil || ok {
		t.Fatalf("UpdateIfActive with foreign job: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateIfActive(dbc, doc.ID, jobA, map[string]interface{}{"completed_stage": types.StageExtraction})
	if err != nil || !ok {
		t.Fatalf("UpdateIfActive with owner: ok=%v err=%v", ok, err)
	}

	summary := types.ErrorSummary{Stage: types.StageRecovery, Message: "operator", OccurredAt: time.Now().UTC()}
	ok, err = repo.ForceStatus(dbc, doc.ID, types.DocumentStatusFailed, map[string]interface{}{"error_summary": summary.JSON()})
	if err != nil || !ok {
		t.Fatalf("ForceStatus: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateIfActive(dbc, doc.ID, jobA, map[string]interface{}{"status": types.DocumentStatusCompleted})
	if err != nil || ok {
		t.Fatalf("UpdateIfActive after force: ok=%v err=%v", ok, err)
	}

	got, err := repo.GetByID(dbc, doc.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.DocumentStatusFailed || got.ActiveJobID != nil {
		t.Fatalf("unexpected state: status=%s active=%v", got.Status, got.ActiveJobID)
	}
	if es := got.LastError(); es == nil || es.Stage != types.StageRecovery {
		t.Fatalf("error summary: %+v", es)
	}
}

func TestDocumentRepoListingAndCounts(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewDocumentRepo(db, testutil.Logger(t))

	old := time.Now().UTC().Add(-3 * time.Hour)
	stuck := testutil.SeedDocument(t, ctx, db, "stuck.pdf", types.DocumentStatusProcessing)
	if err := db.Model(&types.Document{}).Where("id = ?", stuck.ID).Update("status_changed_at", old).Error; err != nil {
		t.Fatalf("age document: %v", err)
	}
	testutil.SeedDocument(t, ctx, db, "fresh.pdf", types.DocumentStatusProcessing)
	failed := testutil.SeedDocument(t, ctx, db, "Town_Hall.pdf", types.DocumentStatusFailed)
	summary := types.ErrorSummary{Stage: types.StageAnalysis, Message: "timeout", OccurredAt: time.Now().UTC(), Transient: true}
	if err := db.Model(&types.Document{}).Where("id = ?", failed.ID).Update("error_summary", summary.JSON()).Error; err != nil {
		t.Fatalf("set summary: %v", err)
	}
	testutil.SeedDocument(t, ctx, db, "other.pdf", types.DocumentStatusFailed)

	rows, err := repo.ListStuck(dbc, time.Now().UTC().Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("ListStuck: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != stuck.ID {
		t.Fatalf("ListStuck: got %d rows", len(rows))
	}

	rows, err = repo.ListFailed(dbc, FailedFilter{FilenameContains: "town"})
	if err != nil || len(rows) != 1 || rows[0].ID != failed.ID {
		t.Fatalf("ListFailed by filename: rows=%d err=%v", len(rows), err)
	}
	rows, err = repo.ListFailed(dbc, FailedFilter{Stage: types.StageAnalysis})
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListFailed by stage: rows=%d err=%v", len(rows), err)
	}

	counts, err := repo.CountByStatus(dbc)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	want := map[string]int64{
		types.DocumentStatusPending:    0,
		types.DocumentStatusProcessing: 2,
		types.DocumentStatusCompleted:  0,
		types.DocumentStatusFailed:     2,
	}
	for k, v := range want {
		if counts[k] != v {
			t.Fatalf("CountByStatus[%s]=%d want %d", k, counts[k], v)
		}
	}
}

func TestDocumentRepoDeleteCascade(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	logg := testutil.Logger(t)
	docs := NewDocumentRepo(db, logg)
	texts := NewExtractedTextRepo(db, logg)
	analyses := NewAnalysisResultRepo(db, logg)
	keywords := NewDocumentKeywordRepo(db, logg)

	doc := testutil.SeedDocument(t, ctx, db, "a.pdf", types.DocumentStatusCompleted)
	term := testutil.SeedTerm(t, ctx, db, "Events", "Civic", "town hall", nil)

	if _, err := texts.ReplaceForDocument(dbc, doc.ID, []*types.ExtractedText{{PageNumber: 1, RawText: "hello"}}); err != nil {
		t.Fatalf("ReplaceForDocument text: %v", err)
	}
	if _, err := analyses.Upsert(dbc, &types.AnalysisResult{DocumentID: doc.ID, Summary: "s"}); err != nil {
		t.Fatalf("Upsert analysis: %v", err)
	}
	if _, err := keywords.ReplaceForDocument(dbc, doc.ID, []*types.DocumentKeyword{{TermID: term.ID, RelevanceScore: 1, MatchKind: types.MatchExact}}); err != nil {
		t.Fatalf("ReplaceForDocument keywords: %v", err)
	}

	n, err := docs.DeleteCascade(dbc, []uuid.UUID{doc.ID})
	if err != nil || n != 1 {
		t.Fatalf("DeleteCascade: n=%d err=%v", n, err)
	}
	for _, model := range []interface{}{&types.ExtractedText{}, &types.AnalysisResult{}, &types.DocumentKeyword{}} {
		var count int64
		if err := db.Model(model).Where("document_id = ?", doc.ID).Count(&count).Error; err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 0 {
			t.Fatalf("%T rows left after delete: %d", model, count)
		}
	}
}

func TestAnalysisUpsertKeepsRowIdentity(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewAnalysisResultRepo(db, testutil.Logger(t))
	doc := testutil.SeedDocument(t, ctx, db, "a.pdf", types.DocumentStatusProcessing)

	first, err := repo.Upsert(dbc, &types.AnalysisResult{DocumentID: doc.ID, Summary: "one", ConfidenceScore: 0.5})
	if err != nil {
		t.Fatalf("Upsert #1: %v", err)
	}
	second, err := repo.Upsert(dbc, &types.AnalysisResult{DocumentID: doc.ID, Summary: "two", ConfidenceScore: 0.7})
	if err != nil {
		t.Fatalf("Upsert #2: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("row id changed: %v -> %v", first.ID, second.ID)
	}
	got, err := repo.GetByDocumentID(dbc, doc.ID)
	if err != nil || got == nil || got.Summary != "two" || got.ConfidenceScore != 0.7 {
		t.Fatalf("GetByDocumentID: %+v err=%v", got, err)
	}
}

func TestBatchJobRecordOutcome(t *testing.T) {
	db := testutil.SQLite(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewBatchJobRepo(db, testutil.Logger(t))

	batch, err := repo.Create(dbc, &types.BatchJob{Name: "upload"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.AddTotal(dbc, batch.ID, 2); err != nil {
		t.Fatalf("AddTotal: %v", err)
	}
	if err := repo.RecordOutcome(dbc, batch.ID, true); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if err := repo.RecordOutcome(dbc, batch.ID, false); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	got, err := repo.GetByID(dbc, batch.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.CompletedCount != 1 || got.FailedCount != 1 || got.Status != "completed_with_failures" {
		t.Fatalf("batch: %+v", got)
	}
}
