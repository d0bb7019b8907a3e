// Package extraction turns a stored document into per-page text plus a visual summary.
package extraction

import (
	"context"
	"errors"
	"strings"
)

var ErrUnsupportedType = errors.New("extraction: unsupported mime type")

type Page struct {
	Number     int
	Text       string
	Confidence float64
}

type Extraction struct {
	Pages         []Page
	VisualSummary string
}

// Text joins all page text with blank lines.
func (e *Extraction) Text() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, len(e.Pages))
	for _, p := range e.Pages {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// MeanConfidence averages page confidence over pages that reported one.
func (e *Extraction) MeanConfidence() float64 {
	if e == nil {
		return 0
	}
	var sum float64
	n := 0
	for _, p := range e.Pages {
		if p.Confidence > 0 {
			sum += p.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

type Extractor interface {
	Extract(ctx context.Context, handle string, mimeType string) (*Extraction, error)
}

var supportedTypes = map[string]bool{
	"application/pdf": true,
	"image/tiff":      true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
}

// Supported reports whether mimeType can be extracted.
func Supported(mimeType string) bool {
	return supportedTypes[normalizeMime(mimeType)]
}

// SupportedTypes lists the mime types Extract accepts.
func SupportedTypes() []string {
	return []string{"application/pdf", "image/tiff", "image/png", "image/jpeg", "image/gif", "image/webp"}
}

func normalizeMime(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.Index(m, ";"); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	if m == "image/jpg" {
		return "image/jpeg"
	}
	return m
}
