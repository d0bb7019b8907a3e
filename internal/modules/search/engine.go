package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/observability"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

// ModeBrowse is reported when an empty query lists the filtered corpus.
const ModeBrowse Mode = "browse"

// Index is the ranking surface of the relational store.
type Index interface {
	KeywordRank(dbc dbctx.Context, q types.KeywordQuery) ([]types.SearchHit, error)
	VectorRank(dbc dbctx.Context, q types.VectorQuery) ([]types.SearchHit, error)
	Browse(dbc dbctx.Context, filter types.SearchFilter, limit int) ([]types.SearchHit, error)
	Describe(dbc dbctx.Context, ids []uuid.UUID) ([]types.SearchCard, error)
}

// Expander returns taxonomy phrases related to terms present in query.
type Expander interface {
	Expand(ctx context.Context, query string, limit int) ([]string, error)
}

type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	Weights        Weights
	FieldWeights   types.FieldWeights
	CandidateLimit int
	ExpansionLimit int
	DescribeChunk  int
}

func DefaultConfig() Config {
	return Config{
		Weights:        Weights{Keyword: 0.5, Vector: 0.5},
		FieldWeights:   types.FieldWeights{Filename: 1.0, Body: 0.6, Summary: 0.4},
		CandidateLimit: 500,
		ExpansionLimit: 8,
		DescribeChunk:  200,
	}
}

type Result struct {
	types.SearchCard
	Score        float64 `json:"score"`
	KeywordScore float64 `json:"keyword_score"`
	VectorScore  float64 `json:"vector_score"`
}

type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

type Response struct {
	Query          string     `json:"query"`
	Mode           Mode       `json:"mode"`
	EffectiveMode  Mode       `json:"effective_mode"`
	Expansions     []string   `json:"expansions,omitempty"`
	Results        []Result   `json:"results"`
	Pagination     Pagination `json:"pagination"`
	Facets         Facets     `json:"facets"`
	Degraded       bool       `json:"degraded"`
	Warning        string     `json:"warning,omitempty"`
	Error          string     `json:"error,omitempty"`
	ResponseTimeMS int64      `json:"response_time_ms"`
}

const (
	degradedWarning = "semantic ranking unavailable; showing keyword results only"
	failureMessage  = "search is temporarily unavailable"
)

type Engine struct {
	log      *logger.Logger
	index    Index
	expander Expander
	embedder QueryEmbedder
	cfg      Config
	now      func() time.Time
}

// NewEngine builds an engine. expander and embedder may be nil; without an
// embedder vector and hybrid requests degrade to keyword ranking.
func NewEngine(log *logger.Logger, index Index, expander Expander, embedder QueryEmbedder, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = def.CandidateLimit
	}
	if cfg.ExpansionLimit < 0 {
		cfg.ExpansionLimit = 0
	}
	if cfg.DescribeChunk <= 0 {
		cfg.DescribeChunk = def.DescribeChunk
	}
	if cfg.FieldWeights == (types.FieldWeights{}) {
		cfg.FieldWeights = def.FieldWeights
	}
	cfg.Weights = normalizeWeights(cfg.Weights)
	return &Engine{
		log:      log.With("module", "search"),
		index:    index,
		expander: expander,
		embedder: embedder,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Search validates req and runs it. The only returned error is a wrapped
// ErrInvalidRequest; ranking failures produce an empty Response with Error set.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	start := e.now()
	q, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "search.query",
		attribute.String("search.mode", string(q.Mode)),
		attribute.String("search.sort_by", string(q.SortBy)),
	)
	resp := &Response{
		Query:         q.Query,
		Mode:          q.Mode,
		EffectiveMode: q.Mode,
		Results:       []Result{},
		Pagination:    Pagination{Page: q.Page, PerPage: q.PerPage},
	}
	var spanErr error
	defer func() {
		dur := e.now().Sub(start)
		resp.ResponseTimeMS = dur.Milliseconds()
		span.SetAttributes(
			attribute.String("search.effective_mode", string(resp.EffectiveMode)),
			attribute.Bool("search.degraded", resp.Degraded),
			attribute.Int("search.total", resp.Pagination.Total),
		)
		observability.EndSpan(span, spanErr)
		observability.Current().ObserveSearch(string(resp.EffectiveMode), resp.Degraded, dur)
	}()

	candidates, err := e.rank(ctx, q, resp)
	if err != nil {
		spanErr = err
		e.log.Warn("search ranking failed", "error", err, "mode", q.Mode)
		resp.Error = failureMessage
		return resp, nil
	}
	cards, err := e.describe(ctx, candidates)
	if err != nil {
		spanErr = err
		e.log.Warn("search describe failed", "error", err, "candidates", len(candidates))
		resp.Error = failureMessage
		return resp, nil
	}

	byID := make(map[uuid.UUID]types.SearchCard, len(cards))
	for _, c := range cards {
		byID[c.DocumentID] = c
	}
	results := make([]Result, 0, len(candidates))
	filtered := make([]types.SearchCard, 0, len(candidates))
	for _, s := range candidates {
		card, ok := byID[s.id]
		if !ok {
			continue
		}
		filtered = append(filtered, card)
		results = append(results, Result{
			SearchCard:   card,
			Score:        s.score,
			KeywordScore: s.keyword,
			VectorScore:  s.vector,
		})
	}

	resp.Facets = computeFacets(filtered)
	sortBy, dir := q.SortBy, q.SortDir
	if resp.EffectiveMode == ModeBrowse && sortBy == SortRelevance {
		sortBy, dir = SortUploadDate, SortDesc
	}
	sortResults(results, sortBy, dir)
	resp.Results, resp.Pagination = paginate(results, q.Page, q.PerPage)
	return resp, nil
}

// rank produces fused candidates; it may switch resp to degraded keyword mode.
func (e *Engine) rank(ctx context.Context, q Request, resp *Response) ([]scored, error) {
	dbc := dbctx.New(ctx)
	if q.Query == "" {
		resp.EffectiveMode = ModeBrowse
		hits, err := e.index.Browse(dbc, q.Filter, e.cfg.CandidateLimit)
		if err != nil {
			return nil, err
		}
		return fuse(hits, nil, Weights{Keyword: 0, Vector: 0}), nil
	}

	var expansions []string
	if e.expander != nil && e.cfg.ExpansionLimit > 0 && q.Mode != ModeVector {
		exp, err := e.expander.Expand(ctx, q.Query, e.cfg.ExpansionLimit)
		if err != nil {
			e.log.Warn("query expansion failed (continuing)", "error", err)
		}
		expansions = exp
	}
	resp.Expansions = expansions

	kwQuery := types.KeywordQuery{
		Text:       q.Query,
		Expansions: expansions,
		Filter:     q.Filter,
		Weights:    e.cfg.FieldWeights,
		Limit:      e.cfg.CandidateLimit,
	}
	keywordOnly := func() ([]scored, error) {
		hits, err := e.index.KeywordRank(dbc, kwQuery)
		if err != nil {
			return nil, err
		}
		return fuse(hits, nil, Weights{Keyword: 1}), nil
	}

	switch q.Mode {
	case ModeKeyword:
		return keywordOnly()

	case ModeVector:
		vec, err := e.embedQuery(ctx, q.Query)
		if err != nil {
			e.degrade(resp, err)
			return keywordOnly()
		}
		hits, err := e.index.VectorRank(dbc, types.VectorQuery{Vector: vec, Filter: q.Filter, Limit: e.cfg.CandidateLimit})
		if err != nil {
			return nil, err
		}
		return fuse(nil, hits, Weights{Vector: 1}), nil
	}

	var (
		kwHits, vecHits []types.SearchHit
		embedErr        error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.index.KeywordRank(dbctx.New(gctx), kwQuery)
		kwHits = hits
		return err
	})
	g.Go(func() error {
		vec, err := e.embedQuery(gctx, q.Query)
		if err != nil {
			embedErr = err
			return nil
		}
		hits, err := e.index.VectorRank(dbctx.New(gctx), types.VectorQuery{Vector: vec, Filter: q.Filter, Limit: e.cfg.CandidateLimit})
		vecHits = hits
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if embedErr != nil {
		e.degrade(resp, embedErr)
		return fuse(kwHits, nil, Weights{Keyword: 1}), nil
	}
	return fuse(kwHits, vecHits, e.cfg.Weights), nil
}

var errNoEmbedder = errors.New("no query embedder configured")

func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.embedder == nil {
		return nil, errNoEmbedder
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errors.New("empty query embedding")
	}
	return vec, nil
}

func (e *Engine) degrade(resp *Response, cause error) {
	e.log.Warn("embedding oracle unavailable; degrading to keyword search", "error", cause)
	resp.EffectiveMode = ModeKeyword
	resp.Degraded = true
	resp.Warning = degradedWarning
}

// describe loads cards in chunks, concurrently.
func (e *Engine) describe(ctx context.Context, candidates []scored) ([]types.SearchCard, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	chunk := e.cfg.DescribeChunk
	parts := make([][]types.SearchCard, (len(ids)+chunk-1)/chunk)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range parts {
		i := i
		lo := i * chunk
		hi := lo + chunk
		if hi > len(ids) {
			hi = len(ids)
		}
		g.Go(func() error {
			cards, err := e.index.Describe(dbctx.New(gctx), ids[lo:hi])
			parts[i] = cards
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []types.SearchCard
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

func sortResults(rs []Result, by SortBy, dir SortDir) {
	less := func(a, b Result) int {
		switch by {
		case SortUploadDate:
			switch {
			case a.UploadedAt.Before(b.UploadedAt):
				return -1
			case a.UploadedAt.After(b.UploadedAt):
				return 1
			}
			return 0
		case SortFilename:
			if c := strings.Compare(strings.ToLower(a.Filename), strings.ToLower(b.Filename)); c != 0 {
				return c
			}
			return strings.Compare(a.Filename, b.Filename)
		default:
			switch {
			case a.Score < b.Score:
				return -1
			case a.Score > b.Score:
				return 1
			}
			return 0
		}
	}
	desc := dir == SortDesc
	if by == SortRelevance {
		desc = true
	}
	sort.SliceStable(rs, func(i, j int) bool {
		c := less(rs[i], rs[j])
		if c == 0 {
			return strings.Compare(rs[i].DocumentID.String(), rs[j].DocumentID.String()) < 0
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func paginate(rs []Result, page, perPage int) ([]Result, Pagination) {
	total := len(rs)
	p := Pagination{Page: page, PerPage: perPage, Total: total}
	if total > 0 {
		p.TotalPages = (total + perPage - 1) / perPage
	}
	p.HasPrev = page > 1
	p.HasNext = page < p.TotalPages
	lo := (page - 1) * perPage
	if lo >= total {
		return []Result{}, p
	}
	hi := lo + perPage
	if hi > total {
		hi = total
	}
	return rs[lo:hi], p
}
