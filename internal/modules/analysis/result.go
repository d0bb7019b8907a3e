// Package analysis turns the analysis oracle's structured output into typed results.
package analysis

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Fields is the normalized analysis of one document.
type Fields struct {
	Summary            string   `json:"summary"`
	VisualAnalysis     string   `json:"visual_analysis"`
	ContentAnalysis    string   `json:"content_analysis"`
	ConfidenceScore    float64  `json:"confidence_score"`
	DocumentType       string   `json:"document_type"`
	Tone               string   `json:"tone"`
	CommunicationFocus string   `json:"communication_focus"`
	Year               *int     `json:"year"`
	Location           string   `json:"location"`
	ContextTags        []string `json:"context_tags"`
	Entities           []Entity `json:"entities"`
	DesignElements     []string `json:"design_elements"`
	Keywords           []string `json:"keywords"`
}

// Result is either ParsedAnalysis or FallbackAnalysis.
type Result interface {
	Fields() Fields
	isResult()
}

// ParsedAnalysis is a well-formed oracle answer.
type ParsedAnalysis struct {
	Data Fields
}

// FallbackAnalysis is substituted when the oracle answered with something unusable.
// Documents analyzed this way complete but are flagged low-confidence.
type FallbackAnalysis struct {
	Data   Fields
	Reason string
}

func (p ParsedAnalysis) Fields() Fields   { return p.Data }
func (f FallbackAnalysis) Fields() Fields { return f.Data }
func (ParsedAnalysis) isResult()          {}
func (FallbackAnalysis) isResult()        {}

// IsFallback reports whether r came from the conservative default path.
func IsFallback(r Result) bool {
	_, ok := r.(FallbackAnalysis)
	return ok
}

// Input is what the oracle sees for one document.
type Input struct {
	Filename      string
	Text          string
	VisualSummary string
	// Candidates are keyword hints derived during extraction (named entities).
	Candidates []string
}

const fallbackSummaryRunes = 280

// NewFallback builds the conservative default analysis for in.
func NewFallback(in Input, reason string) FallbackAnalysis {
	summary := truncateRunes(strings.Join(strings.Fields(in.Text), " "), fallbackSummaryRunes)
	if summary == "" {
		summary = "No text could be analyzed for " + strings.TrimSpace(in.Filename) + "."
	}
	return FallbackAnalysis{
		Reason: reason,
		Data: Fields{
			Summary:         summary,
			VisualAnalysis:  strings.TrimSpace(in.VisualSummary),
			ConfidenceScore: 0,
			DocumentType:    "unknown",
			Keywords:        dedupeStrings(in.Candidates),
		},
	}
}

// ToRow converts r into the persisted row for documentID. The row ID is left
// zero so the repository keeps the existing identity on reprocessing.
func ToRow(documentID uuid.UUID, r Result) *types.AnalysisResult {
	f := r.Fields()
	row := &types.AnalysisResult{
		DocumentID:         documentID,
		Summary:            f.Summary,
		VisualAnalysis:     f.VisualAnalysis,
		ContentAnalysis:    f.ContentAnalysis,
		ConfidenceScore:    f.ConfidenceScore,
		DocumentType:       f.DocumentType,
		Tone:               f.Tone,
		CommunicationFocus: f.CommunicationFocus,
		ContextTags:        jsonOf(f.ContextTags),
		Entities:           jsonOf(f.Entities),
		DesignElements:     jsonOf(f.DesignElements),
		Keywords:           jsonOf(f.Keywords),
	}
	if fb, ok := r.(FallbackAnalysis); ok {
		row.Fallback = true
		row.FallbackReason = fb.Reason
	}
	return row
}

// FromRow rebuilds the fields persisted on row. Year and location live on
// the document and are not restored.
func FromRow(row *types.AnalysisResult) Fields {
	if row == nil {
		return Fields{}
	}
	f := Fields{
		Summary:            row.Summary,
		VisualAnalysis:     row.VisualAnalysis,
		ContentAnalysis:    row.ContentAnalysis,
		ConfidenceScore:    row.ConfidenceScore,
		DocumentType:       row.DocumentType,
		Tone:               row.Tone,
		CommunicationFocus: row.CommunicationFocus,
	}
	_ = json.Unmarshal(row.ContextTags, &f.ContextTags)
	_ = json.Unmarshal(row.Entities, &f.Entities)
	_ = json.Unmarshal(row.DesignElements, &f.DesignElements)
	_ = json.Unmarshal(row.Keywords, &f.Keywords)
	return f
}

// EmbeddingText is the text embedded for a document's analysis vector.
func EmbeddingText(f Fields, maxRunes int) string {
	parts := []string{f.Summary, f.ContentAnalysis, strings.Join(f.Keywords, ", ")}
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p)
	}
	return truncateRunes(b.String(), maxRunes)
}

func jsonOf(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}

func dedupeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
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
