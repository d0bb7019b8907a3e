package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

// SeedDocument inserts a document with the given status and returns it.
func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, filename, status string) *types.Document {
	tb.Helper()
	now := time.Now().UTC()
	d := &types.Document{
		ID:              uuid.New(),
		Filename:        filename,
		BlobHandle:      "mem://" + filename,
		MimeType:        "application/pdf",
		ByteSize:        1024,
		UploadedAt:      now,
		Status:          status,
		StatusChangedAt: now,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

// SeedTerm inserts a taxonomy term with optional synonyms.
func SeedTerm(tb testing.TB, ctx context.Context, tx *gorm.DB, primary, subcategory, term string, parentID *uuid.UUID, synonyms ...string) *types.TaxonomyTerm {
	tb.Helper()
	t := &types.TaxonomyTerm{
		PrimaryCategory: primary,
		Subcategory:     subcategory,
		Term:            term,
		ParentID:        parentID,
	}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		tb.Fatalf("seed term: %v", err)
	}
	for _, s := range synonyms {
		syn := &types.TermSynonym{TermID: t.ID, Synonym: s}
		if err := tx.WithContext(ctx).Create(syn).Error; err != nil {
			tb.Fatalf("seed synonym: %v", err)
		}
	}
	return t
}

func PtrUUID(id uuid.UUID) *uuid.UUID { return &id }

func PtrTime(t time.Time) *time.Time { return &t }
