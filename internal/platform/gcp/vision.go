package gcp

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/docsearch-backend/internal/platform/logger"
)

// Vision runs document text detection and label detection over a single image.
type Vision interface {
	AnnotateImage(ctx context.Context, img []byte) (*VisionResult, error)
	Close() error
}

type VisionLabel struct {
	Description string
	Score       float64
}

type VisionResult struct {
	Text       string
	Confidence float64
	Labels     []VisionLabel
}

type visionService struct {
	log       *logger.Logger
	client    *vision.ImageAnnotatorClient
	maxLabels int32
}

func NewVision(ctx context.Context, log *logger.Logger) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &visionService{log: log.With("service", "gcp.Vision"), client: c, maxLabels: 10}, nil
}

func (s *visionService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *visionService) AnnotateImage(ctx context.Context, img []byte) (*VisionResult, error) {
	if len(img) == 0 {
		return &VisionResult{}, nil
	}
	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
			{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: s.maxLabels},
		},
	}
	resp, err := s.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.GetResponses()) == 0 || resp.GetResponses()[0] == nil {
		return &VisionResult{}, nil
	}
	r0 := resp.GetResponses()[0]
	if msg := r0.GetError().GetMessage(); msg != "" {
		return nil, fmt.Errorf("vision annotate error: %s", msg)
	}

	out := &VisionResult{}
	if fta := r0.GetFullTextAnnotation(); fta != nil {
		out.Text = strings.TrimSpace(fta.GetText())
		out.Confidence = avgBlockConfidence(fta.GetPages())
	}
	for _, l := range r0.GetLabelAnnotations() {
		if l == nil || strings.TrimSpace(l.GetDescription()) == "" {
			continue
		}
		out.Labels = append(out.Labels, VisionLabel{Description: collapseWhitespace(l.GetDescription()), Score: float64(l.GetScore())})
	}
	return out, nil
}

func avgBlockConfidence(pages []*visionpb.Page) float64 {
	var sum float64
	n := 0
	for _, p := range pages {
		for _, b := range p.GetBlocks() {
			if b.GetConfidence() > 0 {
				sum += float64(b.GetConfidence())
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
