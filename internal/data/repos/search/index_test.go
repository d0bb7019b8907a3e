package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/yungbote/docsearch-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
)

func TestBrowseAndDescribeOnlyCompleted(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewSearchIndexRepo(db, testutil.Logger(t))

	done := testutil.SeedDocument(t, ctx, db, "done.pdf", types.DocumentStatusCompleted)
	pending := testutil.SeedDocument(t, ctx, db, "pending.pdf", types.DocumentStatusPending)
	flyer := testutil.SeedDocument(t, ctx, db, "flyer.pdf", types.DocumentStatusCompleted)
	if err := db.Model(&types.Document{}).Where("id = ?", flyer.ID).Update("document_type", "Flyer").Error; err != nil {
		t.Fatalf("set type: %v", err)
	}

	hits, err := repo.Browse(dbc, types.SearchFilter{}, 10)
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Browse: expected 2 completed docs, got %d", len(hits))
	}
	for _, h := range hits {
		if h.DocumentID == pending.ID {
			t.Fatalf("Browse returned a PENDING document")
		}
	}

	hits, err = repo.Browse(dbc, types.SearchFilter{DocumentType: "flyer"}, 10)
	if err != nil || len(hits) != 1 || hits[0].DocumentID != flyer.ID {
		t.Fatalf("Browse filtered: hits=%v err=%v", hits, err)
	}

	cards, err := repo.Describe(dbc, []uuid.UUID{done.ID, pending.ID})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if len(cards) != 1 || cards[0].DocumentID != done.ID || cards[0].Filename != "done.pdf" {
		t.Fatalf("Describe: %+v", cards)
	}
}

func TestRankingQueriesPostgres(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewSearchIndexRepo(db, testutil.Logger(t))

	vec := make([]float32, 1536)
	vec[0] = 1
	v := pgvector.NewVector(vec)

	doc := testutil.SeedDocument(t, ctx, tx, "town_hall_flyer.pdf", types.DocumentStatusCompleted)
	if err := tx.Model(&types.Document{}).Where("id = ?", doc.ID).Update("embedding", &v).Error; err != nil {
		t.Fatalf("set embedding: %v", err)
	}
	if err := tx.Create(&types.ExtractedText{DocumentID: doc.ID, PageNumber: 1, RawText: "Vote for Smith, town hall Tuesday"}).Error; err != nil {
		t.Fatalf("seed text: %v", err)
	}

	hits, err := repo.KeywordRank(dbc, types.KeywordQuery{
		Text:    "town hall",
		Weights: types.FieldWeights{Filename: 1, Body: 0.6, Summary: 0.3},
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("KeywordRank: %v", err)
	}
	if len(hits) != 1 || hits[0].DocumentID != doc.ID || hits[0].Score <= 0 {
		t.Fatalf("KeywordRank: %+v", hits)
	}

	hits, err = repo.VectorRank(dbc, types.VectorQuery{Vector: vec, Limit: 10})
	if err != nil {
		t.Fatalf("VectorRank: %v", err)
	}
	if len(hits) != 1 || hits[0].Score < 0.99 {
		t.Fatalf("VectorRank: %+v", hits)
	}
}
