package document_process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"

	types "github.com/yungbote/docsearch-backend/internal/domain"
	"github.com/yungbote/docsearch-backend/internal/modules/analysis"
	"github.com/yungbote/docsearch-backend/internal/modules/extraction"
	"github.com/yungbote/docsearch-backend/internal/platform/dbctx"
)

var errNoPages = errors.New("extraction produced no pages")

// runState carries stage outputs forward within one run.
type runState struct {
	doc   *types.Document
	jobID uuid.UUID
	done  int

	text     string
	visual   string
	entities []string

	fields   analysis.Fields
	fallback bool
	keywords int
}

// stageOutput is a computed stage waiting to be committed.
type stageOutput struct {
	doc   map[string]interface{}
	write func(dbc dbctx.Context) error
	apply func(st *runState)
}

// restore loads the outputs of already-committed stages so the run can pick
// up after completed_stage. A missing artifact moves the resume point back.
func (p *Pipeline) restore(ctx context.Context, doc *types.Document, jobID uuid.UUID) (*runState, error) {
	st := &runState{doc: doc, jobID: jobID, done: types.StageIndex(doc.CompletedStage)}
	if st.done < 0 {
		return st, nil
	}
	dbc := dbctx.Context{Ctx: ctx}

	pages, err := p.deps.Pages.ListByDocument(dbc, doc.ID)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		st.done = -1
		return st, nil
	}
	texts := make([]string, 0, len(pages))
	var ents []string
	for _, pg := range pages {
		if t := strings.TrimSpace(pg.RawText); t != "" {
			texts = append(texts, t)
		}
		var names []string
		_ = json.Unmarshal(pg.NamedEntities, &names)
		ents = append(ents, names...)
	}
	st.text = strings.Join(texts, "\n\n")
	st.visual = doc.VisualSummary
	st.entities = dedupe(ents)
	if st.done < types.StageIndex(types.StageAnalysis) {
		return st, nil
	}

	row, err := p.deps.Analyses.GetByDocumentID(dbc, doc.ID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		st.done = types.StageIndex(types.StageExtraction)
		return st, nil
	}
	st.fields = analysis.FromRow(row)
	st.fields.Year = doc.Year
	st.fields.Location = doc.Location
	st.fallback = row.Fallback
	if st.done < types.StageIndex(types.StageTaxonomy) {
		return st, nil
	}

	kws, err := p.deps.Keywords.ListByDocumentIDs(dbc, []uuid.UUID{doc.ID})
	if err != nil {
		return nil, err
	}
	st.keywords = len(kws)
	return st, nil
}

func (p *Pipeline) compute(ctx context.Context, st *runState, stage string) (*stageOutput, error) {
	switch stage {
	case types.StageExtraction:
		return p.extract(ctx, st)
	case types.StageAnalysis:
		return p.analyze(ctx, st)
	case types.StageTaxonomy:
		return p.mapTaxonomy(ctx, st)
	case types.StageEmbedding:
		return p.embed(ctx, st)
	}
	return nil, fmt.Errorf("unknown stage %q", stage)
}

func (p *Pipeline) extract(ctx context.Context, st *runState) (*stageOutput, error) {
	if p.deps.Extractor == nil {
		return nil, fmt.Errorf("no extractor configured")
	}
	ex, err := p.deps.Extractor.Extract(ctx, st.doc.BlobHandle, st.doc.MimeType)
	if err != nil {
		return nil, err
	}
	if ex == nil || len(ex.Pages) == 0 {
		return nil, errNoPages
	}

	docID := st.doc.ID
	rows := make([]*types.ExtractedText, 0, len(ex.Pages))
	var ents []string
	for i, pg := range ex.Pages {
		n := pg.Number
		if n <= 0 {
			n = i + 1
		}
		d := extraction.Derive(pg.Text)
		ents = append(ents, d.Entities...)
		rows = append(rows, &types.ExtractedText{
			ID:             pageID(docID, n),
			PageNumber:     n,
			RawText:        pg.Text,
			Confidence:     pg.Confidence,
			MainMessage:    d.MainMessage,
			SupportingText: d.SupportingText,
			CallToAction:   d.CallToAction,
			NamedEntities:  jsonList(d.Entities),
		})
	}
	text := ex.Text()
	visual := strings.TrimSpace(ex.VisualSummary)
	ents = dedupe(ents)

	return &stageOutput{
		doc: map[string]interface{}{
			"page_count":     len(rows),
			"visual_summary": visual,
		},
		write: func(dbc dbctx.Context) error {
			_, err := p.deps.Pages.ReplaceForDocument(dbc, docID, rows)
			return err
		},
		apply: func(st *runState) {
			st.text = text
			st.visual = visual
			st.entities = ents
			st.doc.PageCount = len(rows)
			st.doc.VisualSummary = visual
		},
	}, nil
}

func (p *Pipeline) analyze(ctx context.Context, st *runState) (*stageOutput, error) {
	if p.deps.Oracle == nil {
		return nil, fmt.Errorf("no analysis oracle configured")
	}
	res, err := p.deps.Oracle.Analyze(ctx, analysis.Input{
		Filename:      st.doc.Filename,
		Text:          st.text,
		VisualSummary: st.visual,
		Candidates:    st.entities,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("analysis oracle returned no result")
	}
	fields := res.Fields()
	fallback := analysis.IsFallback(res)
	row := analysis.ToRow(st.doc.ID, res)

	return &stageOutput{
		doc: map[string]interface{}{
			"document_type":  fields.DocumentType,
			"year":           fields.Year,
			"location":       fields.Location,
			"low_confidence": fallback,
		},
		write: func(dbc dbctx.Context) error {
			_, err := p.deps.Analyses.Upsert(dbc, row)
			return err
		},
		apply: func(st *runState) {
			st.fields = fields
			st.fallback = fallback
			st.doc.DocumentType = fields.DocumentType
			st.doc.Year = fields.Year
			st.doc.Location = fields.Location
			st.doc.LowConfidence = fallback
		},
	}, nil
}

func (p *Pipeline) mapTaxonomy(ctx context.Context, st *runState) (*stageOutput, error) {
	if p.deps.Mapper == nil {
		return nil, fmt.Errorf("no taxonomy mapper configured")
	}
	candidates := make([]string, 0, len(st.fields.Keywords)+len(st.fields.ContextTags)+len(st.entities))
	candidates = append(candidates, st.fields.Keywords...)
	candidates = append(candidates, st.fields.ContextTags...)
	for _, e := range st.fields.Entities {
		candidates = append(candidates, e.Name)
	}
	candidates = append(candidates, st.entities...)
	freeText := strings.TrimSpace(st.text + "\n\n" + st.fields.Summary)

	matches, err := p.deps.Mapper.Map(ctx, dedupe(candidates), freeText)
	if err != nil {
		return nil, err
	}

	docID := st.doc.ID
	rows := make([]*types.DocumentKeyword, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, &types.DocumentKeyword{
			TermID:         m.TermID,
			RelevanceScore: m.Score,
			MatchKind:      string(m.Kind),
			Candidate:      m.Candidate,
		})
	}
	primary, sub := "", ""
	if len(matches) > 0 {
		primary, sub = matches[0].PrimaryCategory, matches[0].Subcategory
	}

	return &stageOutput{
		doc: map[string]interface{}{
			"primary_category": primary,
			"subcategory":      sub,
		},
		write: func(dbc dbctx.Context) error {
			_, err := p.deps.Keywords.ReplaceForDocument(dbc, docID, rows)
			return err
		},
		apply: func(st *runState) {
			st.keywords = len(rows)
			st.doc.PrimaryCategory = primary
			st.doc.Subcategory = sub
		},
	}, nil
}

func (p *Pipeline) embed(ctx context.Context, st *runState) (*stageOutput, error) {
	if p.deps.Embedder == nil {
		p.log.Warn("no embedder configured; document will only match keyword search", "document_id", st.doc.ID)
		return &stageOutput{}, nil
	}
	docText := strings.TrimSpace(st.doc.Filename + "\n\n" + truncate(st.text, p.cfg.EmbedTextRunes))
	docVec, err := p.embedChecked(ctx, docText)
	if err != nil {
		return nil, err
	}
	var analysisVec []float32
	if t := analysis.EmbeddingText(st.fields, p.cfg.EmbedTextRunes); t != "" {
		if analysisVec, err = p.embedChecked(ctx, t); err != nil {
			return nil, err
		}
	}

	docID := st.doc.ID
	out := &stageOutput{
		doc: map[string]interface{}{"embedding": pgvector.NewVector(docVec)},
	}
	if analysisVec != nil {
		out.write = func(dbc dbctx.Context) error {
			return p.deps.Analyses.UpdateFields(dbc, docID, map[string]interface{}{
				"embedding": pgvector.NewVector(analysisVec),
			})
		}
	}
	return out, nil
}

func (p *Pipeline) embedChecked(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.deps.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	want := p.cfg.EmbeddingDim
	if d := p.deps.Embedder.Dimension(); d > 0 {
		want = d
	}
	if want > 0 && len(vec) != want {
		return nil, fmt.Errorf("%w: got %d want %d", analysis.ErrDimensionMismatch, len(vec), want)
	}
	return vec, nil
}

// pageID is stable per (document, page) so reprocessing rewrites the same rows.
func pageID(documentID uuid.UUID, page int) uuid.UUID {
	return uuid.NewSHA1(documentID, []byte("page:"+strconv.Itoa(page)))
}

func jsonList(in []string) datatypes.JSON {
	if len(in) == 0 {
		return datatypes.JSON("[]")
	}
	b, err := json.Marshal(in)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes])
}
