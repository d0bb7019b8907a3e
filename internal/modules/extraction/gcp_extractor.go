package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/docsearch-backend/internal/platform/gcp"
	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

// BlobReader is the read side of the blob store.
type BlobReader interface {
	Get(ctx context.Context, handle string) ([]byte, error)
}

// GCPExtractor reads PDFs and TIFFs with Document AI and single images with Vision.
type GCPExtractor struct {
	log          *logger.Logger
	blobs        BlobReader
	docAI        gcp.DocumentAI
	vision       gcp.Vision
	maxImageSide int
	minLabel     float64
}

func NewGCPExtractor(log *logger.Logger, blobs BlobReader, docAI gcp.DocumentAI, vision gcp.Vision, maxImageSide int) *GCPExtractor {
	if maxImageSide <= 0 {
		maxImageSide = 4096
	}
	return &GCPExtractor{
		log:          log.With("component", "GCPExtractor"),
		blobs:        blobs,
		docAI:        docAI,
		vision:       vision,
		maxImageSide: maxImageSide,
		minLabel:     0.6,
	}
}

func (x *GCPExtractor) Extract(ctx context.Context, handle string, mimeType string) (*Extraction, error) {
	mimeType = normalizeMime(mimeType)
	if !Supported(mimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	data, err := x.blobs.Get(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}

	if mimeType == "application/pdf" || mimeType == "image/tiff" {
		if x.docAI == nil {
			return nil, fmt.Errorf("%w: no document processor configured for %s", ErrUnsupportedType, mimeType)
		}
		res, err := x.docAI.ProcessBytes(ctx, data, mimeType)
		if err != nil {
			return nil, err
		}
		out := &Extraction{}
		for _, p := range res.Pages {
			out.Pages = append(out.Pages, Page{Number: p.Number, Text: p.Text, Confidence: p.Confidence})
		}
		x.log.Debug("document ai extraction", "handle", handle, "pages", len(out.Pages))
		return out, nil
	}

	if x.vision == nil {
		return nil, fmt.Errorf("%w: no image annotator configured", ErrUnsupportedType)
	}
	img, err := NormalizeImage(data, x.maxImageSide)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	res, err := x.vision.AnnotateImage(ctx, img)
	if err != nil {
		return nil, err
	}
	return &Extraction{
		Pages:         []Page{{Number: 1, Text: res.Text, Confidence: res.Confidence}},
		VisualSummary: visualSummary(res.Labels, x.minLabel),
	}, nil
}

func visualSummary(labels []gcp.VisionLabel, minScore float64) string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		if l.Score >= minScore {
			names = append(names, strings.ToLower(l.Description))
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "Visual elements: " + strings.Join(names, ", ") + "."
}
