package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrMalformed = errors.New("analysis: malformed oracle output")

const maxKeywords = 25

type rawFields struct {
	Summary            *string  `json:"summary"`
	VisualAnalysis     string   `json:"visual_analysis"`
	ContentAnalysis    string   `json:"content_analysis"`
	ConfidenceScore    *float64 `json:"confidence_score"`
	DocumentType       string   `json:"document_type"`
	Tone               string   `json:"tone"`
	CommunicationFocus string   `json:"communication_focus"`
	Year               *float64 `json:"year"`
	Location           string   `json:"location"`
	ContextTags        []string `json:"context_tags"`
	Entities           []Entity `json:"entities"`
	DesignElements     []string `json:"design_elements"`
	Keywords           []string `json:"keywords"`
}

// Parse validates an already-decoded oracle object.
func Parse(obj map[string]any) (Fields, error) {
	if obj == nil {
		return Fields{}, fmt.Errorf("%w: empty object", ErrMalformed)
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ParseJSON(raw)
}

// ParseJSON decodes and normalizes an oracle answer.
func ParseJSON(raw []byte) (Fields, error) {
	var rf rawFields
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&rf); err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if rf.Summary == nil || strings.TrimSpace(*rf.Summary) == "" {
		return Fields{}, fmt.Errorf("%w: summary missing", ErrMalformed)
	}
	if rf.ConfidenceScore == nil || math.IsNaN(*rf.ConfidenceScore) {
		return Fields{}, fmt.Errorf("%w: confidence_score missing", ErrMalformed)
	}

	f := Fields{
		Summary:            strings.TrimSpace(*rf.Summary),
		VisualAnalysis:     strings.TrimSpace(rf.VisualAnalysis),
		ContentAnalysis:    strings.TrimSpace(rf.ContentAnalysis),
		ConfidenceScore:    clamp01(*rf.ConfidenceScore),
		DocumentType:       strings.ToLower(strings.TrimSpace(rf.DocumentType)),
		Tone:               strings.TrimSpace(rf.Tone),
		CommunicationFocus: strings.TrimSpace(rf.CommunicationFocus),
		Location:           strings.TrimSpace(rf.Location),
		ContextTags:        dedupeStrings(rf.ContextTags),
		DesignElements:     dedupeStrings(rf.DesignElements),
		Keywords:           dedupeStrings(rf.Keywords),
	}
	if rf.Year != nil {
		y := int(*rf.Year)
		if float64(y) == *rf.Year && y >= 1000 && y <= 2999 {
			f.Year = &y
		}
	}
	if len(f.Keywords) > maxKeywords {
		f.Keywords = f.Keywords[:maxKeywords]
	}
	for _, e := range rf.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		f.Entities = append(f.Entities, Entity{Name: name, Type: strings.ToLower(strings.TrimSpace(e.Type))})
	}
	return f, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
