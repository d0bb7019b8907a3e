package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/docsearch-backend/internal/data/repos"
	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/modules/taxonomy"
	apperr "github.com/yungbote/docsearch-backend/internal/pkg/errors"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

type AddTermInput struct {
	PrimaryCategory string     `json:"primary_category"`
	Subcategory     string     `json:"subcategory"`
	Term            string     `json:"term"`
	SpecificTerm    string     `json:"specific_term"`
	Description     string     `json:"description"`
	ParentID        *uuid.UUID `json:"parent_id"`
	Synonyms        []string   `json:"synonyms"`
}

// TermView is the nested JSON rendering of the vocabulary.
type TermView struct {
	ID              uuid.UUID  `json:"id"`
	Term            string     `json:"term"`
	PrimaryCategory string     `json:"primary_category"`
	Subcategory     string     `json:"subcategory,omitempty"`
	SpecificTerm    string     `json:"specific_term,omitempty"`
	Synonyms        []string   `json:"synonyms,omitempty"`
	Children        []TermView `json:"children,omitempty"`
}

type SeedStats struct {
	Terms    int64 `json:"terms"`
	Synonyms int64 `json:"synonyms"`
}

type TaxonomyService interface {
	Tree(ctx context.Context) (*taxonomy.Tree, error)
	Expand(ctx context.Context, query string, limit int) ([]string, error)
	Map(ctx context.Context, candidates []string, freeText string) ([]taxonomy.Match, error)
	View(ctx context.Context) ([]TermView, error)
	AddTerm(ctx context.Context, in AddTermInput) (*types.TaxonomyTerm, error)
	Seed(ctx context.Context, seed *taxonomy.Seed) (SeedStats, error)
	Invalidate()
}

type taxonomyService struct {
	db       *gorm.DB
	log      *logger.Logger
	terms    repos.TaxonomyTermRepo
	synonyms repos.TermSynonymRepo
	scores   taxonomy.Scores
	ttl      time.Duration

	mu       sync.RWMutex
	tree     *taxonomy.Tree
	loadedAt time.Time
}

// NewTaxonomyService caches the built tree for ttl. Writes through this
// service invalidate the cache immediately; out-of-band edits show up
// after ttl.
func NewTaxonomyService(db *gorm.DB, baseLog *logger.Logger, terms repos.TaxonomyTermRepo, synonyms repos.TermSynonymRepo, scores taxonomy.Scores, ttl time.Duration) TaxonomyService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &taxonomyService{
		db:       db,
		log:      baseLog.With("service", "TaxonomyService"),
		terms:    terms,
		synonyms: synonyms,
		scores:   scores,
		ttl:      ttl,
	}
}

func (s *taxonomyService) Tree(ctx context.Context) (*taxonomy.Tree, error) {
	s.mu.RLock()
	if s.tree != nil && time.Since(s.loadedAt) < s.ttl {
		t := s.tree
		s.mu.RUnlock()
		return t, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree != nil && time.Since(s.loadedAt) < s.ttl {
		return s.tree, nil
	}
	dbc := dbctx.New(ctx)
	terms, err := s.terms.ListAll(dbc)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy terms: %w", err)
	}
	syns, err := s.synonyms.ListAll(dbc)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy synonyms: %w", err)
	}
	tree, err := taxonomy.Build(terms, syns)
	if err != nil {
		return nil, err
	}
	s.tree = tree
	s.loadedAt = time.Now()
	s.log.Debug("taxonomy tree loaded", "terms", tree.Len(), "synonyms", len(syns))
	return tree, nil
}

func (s *taxonomyService) Invalidate() {
	s.mu.Lock()
	s.tree = nil
	s.mu.Unlock()
}

// Expand satisfies the search engine's expander.
func (s *taxonomyService) Expand(ctx context.Context, query string, limit int) ([]string, error) {
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return tree.Expand(query, limit), nil
}

func (s *taxonomyService) Map(ctx context.Context, candidates []string, freeText string) ([]taxonomy.Match, error) {
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return taxonomy.NewMapper(tree, s.scores).Map(candidates, freeText), nil
}

func (s *taxonomyService) View(ctx context.Context) ([]TermView, error) {
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	var build func(i int) TermView
	build = func(i int) TermView {
		n := tree.Node(i)
		v := TermView{
			ID:              n.ID,
			Term:            n.Term,
			PrimaryCategory: n.PrimaryCategory,
			Subcategory:     n.Subcategory,
			SpecificTerm:    n.SpecificTerm,
			Synonyms:        n.Synonyms,
		}
		for _, c := range n.Children {
			v.Children = append(v.Children, build(c))
		}
		return v
	}
	roots := tree.Roots()
	out := make([]TermView, 0, len(roots))
	for _, r := range roots {
		out = append(out, build(r))
	}
	return out, nil
}

// AddTerm inserts one term with its synonyms. A path that already exists is
// ErrConflict.
func (s *taxonomyService) AddTerm(ctx context.Context, in AddTermInput) (*types.TaxonomyTerm, error) {
	primary := strings.TrimSpace(in.PrimaryCategory)
	term := strings.TrimSpace(in.Term)
	if primary == "" || term == "" {
		return nil, fmt.Errorf("%w: primary_category and term are required", apperr.ErrInvalidArgument)
	}
	row := &types.TaxonomyTerm{
		ID:              types.TermID(primary, in.Subcategory, term),
		PrimaryCategory: primary,
		Subcategory:     strings.TrimSpace(in.Subcategory),
		Term:            term,
		Description:     strings.TrimSpace(in.Description),
		ParentID:        in.ParentID,
	}
	if sp := strings.TrimSpace(in.SpecificTerm); sp != "" {
		row.SpecificTerm = &sp
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		existing, err := s.terms.GetByIDs(dbc, []uuid.UUID{row.ID})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: term path %q already exists", apperr.ErrConflict, strings.Join(row.Path(), " > "))
		}
		if in.ParentID != nil && *in.ParentID != uuid.Nil {
			parents, err := s.terms.GetByIDs(dbc, []uuid.UUID{*in.ParentID})
			if err != nil {
				return err
			}
			if len(parents) == 0 {
				return fmt.Errorf("%w: parent %s not found", apperr.ErrInvalidArgument, in.ParentID)
			}
		}
		var syns []*types.TermSynonym
		for _, syn := range in.Synonyms {
			if syn = strings.TrimSpace(syn); syn != "" {
				syns = append(syns, &types.TermSynonym{TermID: row.ID, Synonym: syn})
			}
		}
		if err := s.checkBuildable(dbc, []*types.TaxonomyTerm{row}, syns); err != nil {
			return err
		}
		if _, err := s.terms.Create(dbc, []*types.TaxonomyTerm{row}); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: term path already exists", apperr.ErrConflict)
			}
			return err
		}
		_, err = s.synonyms.Upsert(dbc, syns)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Invalidate()
	s.log.Info("taxonomy term added", "term_id", row.ID, "path", strings.Join(row.Path(), " > "))
	return row, nil
}

// Seed upserts the seed vocabulary. Reseeding the same file is a no-op for
// ids and paths.
func (s *taxonomyService) Seed(ctx context.Context, seed *taxonomy.Seed) (SeedStats, error) {
	if seed == nil {
		return SeedStats{}, errors.New("nil taxonomy seed")
	}
	terms, syns, err := seed.Rows()
	if err != nil {
		return SeedStats{}, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
	}
	var stats SeedStats
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		n, err := s.terms.Upsert(dbc, terms)
		if err != nil {
			return err
		}
		stats.Terms = n
		m, err := s.synonyms.Upsert(dbc, syns)
		if err != nil {
			return err
		}
		stats.Synonyms = m
		return s.checkBuildable(dbc, nil, nil)
	})
	if err != nil {
		return SeedStats{}, err
	}
	s.Invalidate()
	s.log.Info("taxonomy seeded", "terms", stats.Terms, "synonyms", stats.Synonyms)
	return stats, nil
}

// checkBuildable assembles the tree the stored vocabulary would form with
// extra rows added, so a write that Build would reject never commits.
func (s *taxonomyService) checkBuildable(dbc dbctx.Context, extraTerms []*types.TaxonomyTerm, extraSyns []*types.TermSynonym) error {
	terms, err := s.terms.ListAll(dbc)
	if err != nil {
		return err
	}
	syns, err := s.synonyms.ListAll(dbc)
	if err != nil {
		return err
	}
	_, err = taxonomy.Build(append(terms, extraTerms...), append(syns, extraSyns...))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, taxonomy.ErrDuplicatePath):
		return fmt.Errorf("%w: %v", apperr.ErrConflict, err)
	case errors.Is(err, taxonomy.ErrUnknownParent), errors.Is(err, taxonomy.ErrCycle):
		return fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
	default:
		return err
	}
}
