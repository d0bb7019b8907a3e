package gcp

import (
	"context"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

// DocumentAI runs OCR over PDFs (and multi-page TIFFs) with a Document AI processor.
type DocumentAI interface {
	ProcessBytes(ctx context.Context, data []byte, mimeType string) (*DocAIResult, error)
	Close() error
}

type DocAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
}

type DocAIPage struct {
	Number     int
	Text       string
	Confidence float64
}

type DocAIResult struct {
	Processor string
	MimeType  string
	Text      string
	Pages     []DocAIPage
}

// Only the fields the extractor reads are requested.
var docAIFieldMask = []string{"text", "pages.page_number", "pages.layout", "pages.paragraphs"}

type documentAI struct {
	log       *logger.Logger
	client    *documentai.DocumentProcessorClient
	processor string
}

func NewDocumentAI(ctx context.Context, log *logger.Logger, cfg DocAIConfig) (DocumentAI, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "us"
	}
	name := processorName(cfg.ProjectID, location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		return nil, fmt.Errorf("documentai: project and processor id are required")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog := log.With("service", "gcp.DocumentAI")
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", name)
	return &documentAI{log: slog, client: c, processor: name}, nil
}

func (s *documentAI) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *documentAI) ProcessBytes(ctx context.Context, data []byte, mimeType string) (*DocAIResult, error) {
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	if len(data) == 0 {
		return &DocAIResult{Processor: s.processor, MimeType: mimeType}, nil
	}
	resp, err := s.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: s.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mimeType},
		},
		FieldMask: &fieldmaskpb.FieldMask{Paths: docAIFieldMask},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	return buildDocAIResult(resp.GetDocument(), s.processor, mimeType), nil
}

func buildDocAIResult(doc *documentaipb.Document, processor, mimeType string) *DocAIResult {
	out := &DocAIResult{Processor: processor, MimeType: mimeType}
	if doc == nil {
		return out
	}
	out.Text = strings.TrimSpace(doc.GetText())

	for i, p := range doc.GetPages() {
		if p == nil {
			continue
		}
		num := int(p.GetPageNumber())
		if num <= 0 {
			num = i + 1
		}
		var b strings.Builder
		for _, para := range p.GetParagraphs() {
			t := strings.TrimSpace(textFromAnchor(doc.GetText(), para.GetLayout().GetTextAnchor()))
			if t == "" {
				continue
			}
			b.WriteString(t)
			b.WriteString("\n")
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			// Some processors populate only the page layout anchor.
			text = strings.TrimSpace(textFromAnchor(doc.GetText(), p.GetLayout().GetTextAnchor()))
		}
		out.Pages = append(out.Pages, DocAIPage{
			Number:     num,
			Text:       text,
			Confidence: float64(p.GetLayout().GetConfidence()),
		})
	}
	if len(out.Pages) == 0 && out.Text != "" {
		out.Pages = []DocAIPage{{Number: 1, Text: out.Text}}
	}
	return out
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func processorName(project, location, processorID, version string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if v := strings.TrimSpace(version); v != "" {
		return base + "/processorVersions/" + v
	}
	return base
}
