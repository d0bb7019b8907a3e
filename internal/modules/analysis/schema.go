package analysis

const SchemaName = "document_analysis"

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

// Schema is the strict JSON schema the oracle must answer with.
func Schema() map[string]any {
	props := map[string]any{
		"summary":             map[string]any{"type": "string"},
		"visual_analysis":     map[string]any{"type": "string"},
		"content_analysis":    map[string]any{"type": "string"},
		"confidence_score":    map[string]any{"type": "number"},
		"document_type":       map[string]any{"type": "string"},
		"tone":                map[string]any{"type": "string"},
		"communication_focus": map[string]any{"type": "string"},
		"year":                map[string]any{"type": []any{"integer", "null"}},
		"location":            map[string]any{"type": "string"},
		"context_tags":        stringArray(),
		"entities": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []any{"name", "type"},
				"properties": map[string]any{
					"name": map[string]any{"type": "string"},
					"type": map[string]any{"type": "string"},
				},
			},
		},
		"design_elements": stringArray(),
		"keywords":        stringArray(),
	}
	required := make([]any, 0, len(props))
	for _, k := range schemaFieldOrder {
		required = append(required, k)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             required,
		"properties":           props,
	}
}

var schemaFieldOrder = []string{
	"summary", "visual_analysis", "content_analysis", "confidence_score", "document_type", "tone",
	"communication_focus", "year", "location", "context_tags", "entities", "design_elements", "keywords",
}

const systemPrompt = `You analyze scanned print documents (flyers, mailers, posters, brochures).
Return a single JSON object that matches the schema. Use only what the text and visual description support.
summary: two or three sentences. confidence_score: 0 to 1, how sure you are of the classification.
document_type: a short lowercase label such as flyer, mailer, poster, brochure, letter.
year: the four-digit year the document refers to, or null. location: city or region named, or empty.
keywords: up to 15 short noun phrases a researcher would search for, most specific first.`
