package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/docsearch-backend/internal/platform/logger"
	"github.com/yungbote/docsearch-backend/internal/platform/openai"
)

type fakeGenerator struct {
	obj   map[string]any
	err   error
	calls int
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.calls++
	return f.obj, f.err
}

func validAnswer() map[string]any {
	return map[string]any{
		"summary":             "Campaign flyer for Smith announcing a town hall.",
		"visual_analysis":     "Blue header, portrait photo.",
		"content_analysis":    "Urges attendance.",
		"confidence_score":    1.4,
		"document_type":       " Flyer ",
		"tone":                "urgent",
		"communication_focus": "event",
		"year":                float64(2022),
		"location":            "Springfield",
		"context_tags":        []any{"election", "Election"},
		"entities":            []any{map[string]any{"name": "Smith", "type": "PERSON"}, map[string]any{"name": " ", "type": "x"}},
		"design_elements":     []any{"photo"},
		"keywords":            []any{"town hall", "Smith", "town hall"},
	}
}

func TestParseNormalizes(t *testing.T) {
	f, err := Parse(validAnswer())
	require.NoError(t, err)
	require.Equal(t, "flyer", f.DocumentType)
	require.Equal(t, 1.0, f.ConfidenceScore)
	require.NotNil(t, f.Year)
	require.Equal(t, 2022, *f.Year)
	require.Equal(t, []string{"election"}, f.ContextTags)
	require.Equal(t, []string{"town hall", "Smith"}, f.Keywords)
	require.Equal(t, []Entity{{Name: "Smith", Type: "person"}}, f.Entities)
}

func TestParseRejectsMissingSummary(t *testing.T) {
	obj := validAnswer()
	delete(obj, "summary")
	_, err := Parse(obj)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseDropsImplausibleYear(t *testing.T) {
	obj := validAnswer()
	obj["year"] = 22.5
	f, err := Parse(obj)
	require.NoError(t, err)
	require.Nil(t, f.Year)
}

func TestParseJSONRejectsWrongTypes(t *testing.T) {
	_, err := ParseJSON([]byte(`{"summary": 12, "confidence_score": 0.5}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestSchemaRequiresEveryProperty(t *testing.T) {
	s := Schema()
	props := s["properties"].(map[string]any)
	required := s["required"].([]any)
	require.Len(t, required, len(props))
	for _, k := range required {
		_, ok := props[k.(string)]
		require.True(t, ok, "required key %v has no property", k)
	}
	_, err := json.Marshal(s)
	require.NoError(t, err)
}

func TestOracleParsedAnswer(t *testing.T) {
	gen := &fakeGenerator{obj: validAnswer()}
	o := NewOpenAIOracle(logger.Nop(), gen, 0)
	res, err := o.Analyze(context.Background(), Input{Filename: "flyer.pdf", Text: "Vote for Smith"})
	require.NoError(t, err)
	require.False(t, IsFallback(res))
	require.Equal(t, "flyer", res.Fields().DocumentType)
}

func TestOracleMalformedOutputFallsBack(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: bad json", openai.ErrMalformedOutput)}
	o := NewOpenAIOracle(logger.Nop(), gen, 0)
	in := Input{Filename: "flyer.pdf", Text: "Vote for Smith,  town hall Tuesday", Candidates: []string{"Smith", "smith", "Tuesday"}}

	res, err := o.Analyze(context.Background(), in)
	require.NoError(t, err)
	require.True(t, IsFallback(res))
	f := res.Fields()
	require.Equal(t, "Vote for Smith, town hall Tuesday", f.Summary)
	require.Equal(t, []string{"Smith", "Tuesday"}, f.Keywords)
	require.Zero(t, f.ConfidenceScore)

	row := ToRow(uuid.New(), res)
	require.True(t, row.Fallback)
	require.Contains(t, row.FallbackReason, "bad json")
}

func TestOracleInvalidAnswerFallsBack(t *testing.T) {
	gen := &fakeGenerator{obj: map[string]any{"summary": ""}}
	res, err := NewOpenAIOracle(logger.Nop(), gen, 0).Analyze(context.Background(), Input{Filename: "x.png"})
	require.NoError(t, err)
	require.True(t, IsFallback(res))
	require.Contains(t, res.Fields().Summary, "x.png")
}

func TestOracleTransportErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	gen := &fakeGenerator{err: boom}
	_, err := NewOpenAIOracle(logger.Nop(), gen, 0).Analyze(context.Background(), Input{})
	require.ErrorIs(t, err, boom)
}

func TestToRowIsDeterministic(t *testing.T) {
	f, err := Parse(validAnswer())
	require.NoError(t, err)
	id := uuid.New()
	a := ToRow(id, ParsedAnalysis{Data: f})
	b := ToRow(id, ParsedAnalysis{Data: f})
	require.Equal(t, a, b)
	require.JSONEq(t, `["town hall","Smith"]`, string(a.Keywords))
	require.JSONEq(t, `[]`, string(ToRow(id, ParsedAnalysis{Data: Fields{Summary: "s"}}).Keywords))
}

func TestBuildUserPromptTruncates(t *testing.T) {
	p := buildUserPrompt(Input{Filename: "f.pdf", Text: "abcdefghij"}, 4)
	require.Contains(t, p, "Document text:\nabcd")
	require.NotContains(t, p, "abcde")
}

type fakeBatchEmbedder struct {
	dim   int
	calls int
	err   error
}

func (f *fakeBatchEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(len(inputs[i]))
	}
	return out, nil
}

func (f *fakeBatchEmbedder) EmbedModel() string { return "fake-embed" }

type mapCache struct {
	mu sync.Mutex
	m  map[string][]float32
}

func (c *mapCache) Get(ctx context.Context, key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache) Set(ctx context.Context, key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = vec
}

func TestEmbedderUsesCache(t *testing.T) {
	client := &fakeBatchEmbedder{dim: 4}
	cache := &mapCache{m: map[string][]float32{}}
	e := NewOracleEmbedder(logger.Nop(), client, 4, cache)

	v1, err := e.Embed(context.Background(), "Town  Hall")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "town hall")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Equal(t, 1, client.calls)
}

func TestEmbedderRejectsWrongDimension(t *testing.T) {
	e := NewOracleEmbedder(logger.Nop(), &fakeBatchEmbedder{dim: 3}, 4, nil)
	_, err := e.Embed(context.Background(), "x")
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestVectorCodecRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3}
	got, ok := decodeVector(encodeVector(vec))
	require.True(t, ok)
	require.Equal(t, vec, got)
	_, ok = decodeVector([]byte{1, 2, 3})
	require.False(t, ok)
}

func TestFallbackOracleAlwaysFallsBack(t *testing.T) {
	res, err := FallbackOracle{}.Analyze(context.Background(), Input{
		Filename:   "flyer.png",
		Text:       "Vote   Smith\nfor council",
		Candidates: []string{"Smith", "smith"},
	})
	require.NoError(t, err)
	require.True(t, IsFallback(res))
	f := res.Fields()
	require.Equal(t, "unknown", f.DocumentType)
	require.Equal(t, "Vote Smith for council", f.Summary)
	require.Zero(t, f.ConfidenceScore)
}
