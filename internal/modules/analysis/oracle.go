package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/docsearch-backend/internal/platform/logger"
	"github.com/yungbote/docsearch-backend/internal/platform/openai"
)

// Oracle produces a structured analysis for one document. A malformed answer is
// not an error: it yields a FallbackAnalysis. Returned errors are transport or
// provider failures and are classified by the caller.
type Oracle interface {
	Analyze(ctx context.Context, in Input) (Result, error)
}

// FallbackOracle answers every request with the conservative default. It
// stands in when no model is configured so documents still complete, flagged
// low-confidence.
type FallbackOracle struct {
	Reason string
}

func (o FallbackOracle) Analyze(_ context.Context, in Input) (Result, error) {
	reason := o.Reason
	if reason == "" {
		reason = "analysis oracle not configured"
	}
	return NewFallback(in, reason), nil
}

type JSONGenerator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

type OpenAIOracle struct {
	log      *logger.Logger
	gen      JSONGenerator
	maxInput int
	schema   map[string]any
}

func NewOpenAIOracle(log *logger.Logger, gen JSONGenerator, maxInputRunes int) *OpenAIOracle {
	if maxInputRunes <= 0 {
		maxInputRunes = 24000
	}
	return &OpenAIOracle{
		log:      log.With("component", "AnalysisOracle"),
		gen:      gen,
		maxInput: maxInputRunes,
		schema:   Schema(),
	}
}

func (o *OpenAIOracle) Analyze(ctx context.Context, in Input) (Result, error) {
	obj, err := o.gen.GenerateJSON(ctx, systemPrompt, buildUserPrompt(in, o.maxInput), SchemaName, o.schema)
	if err != nil {
		if errors.Is(err, openai.ErrMalformedOutput) || errors.Is(err, openai.ErrRefused) {
			o.log.Warn("analysis oracle output unusable; using fallback", "filename", in.Filename, "error", err)
			return NewFallback(in, err.Error()), nil
		}
		return nil, err
	}
	fields, perr := Parse(obj)
	if perr != nil {
		o.log.Warn("analysis oracle output failed validation; using fallback", "filename", in.Filename, "error", perr)
		return NewFallback(in, perr.Error()), nil
	}
	return ParsedAnalysis{Data: fields}, nil
}

func buildUserPrompt(in Input, maxRunes int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Filename: %s\n\n", strings.TrimSpace(in.Filename))
	if v := strings.TrimSpace(in.VisualSummary); v != "" {
		fmt.Fprintf(&b, "Visual description:\n%s\n\n", v)
	}
	if len(in.Candidates) > 0 {
		fmt.Fprintf(&b, "Named entities found in the text: %s\n\n", strings.Join(dedupeStrings(in.Candidates), "; "))
	}
	text := truncateRunes(strings.TrimSpace(in.Text), maxRunes)
	if text == "" {
		text = "(no text was recognized)"
	}
	fmt.Fprintf(&b, "Document text:\n%s", text)
	return b.String()
}
