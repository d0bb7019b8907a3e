package gcp

import (
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
)

func anchor(start, end int64) *documentaipb.Document_TextAnchor {
	return &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{{StartIndex: start, EndIndex: end}},
	}
}

func TestBuildDocAIResultPages(t *testing.T) {
	full := "Vote for Smith\nTown hall Tuesday\nPage two"
	doc := &documentaipb.Document{
		Text: full,
		Pages: []*documentaipb.Document_Page{
			{
				PageNumber: 1,
				Layout:     &documentaipb.Document_Page_Layout{Confidence: 0.9},
				Paragraphs: []*documentaipb.Document_Page_Paragraph{
					{Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(0, 14)}},
					{Layout: &documentaipb.Document_Page_Layout{TextAnchor: anchor(15, 32)}},
				},
			},
			{
				PageNumber: 2,
				Layout:     &documentaipb.Document_Page_Layout{Confidence: 0.5, TextAnchor: anchor(33, 41)},
			},
		},
	}

	res := buildDocAIResult(doc, "projects/p/locations/us/processors/x", "application/pdf")
	if len(res.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(res.Pages))
	}
	if res.Pages[0].Text != "Vote for Smith\nTown hall Tuesday" {
		t.Fatalf("unexpected page 1 text %q", res.Pages[0].Text)
	}
	if res.Pages[1].Text != "Page two" || res.Pages[1].Number != 2 {
		t.Fatalf("unexpected page 2 %+v", res.Pages[1])
	}
	if res.Pages[0].Confidence < 0.89 || res.Pages[0].Confidence > 0.91 {
		t.Fatalf("unexpected confidence %v", res.Pages[0].Confidence)
	}
}

func TestTextFromAnchorClampsBounds(t *testing.T) {
	if got := textFromAnchor("abc", anchor(1, 99)); got != "bc" {
		t.Fatalf("expected clamp to end, got %q", got)
	}
	if got := textFromAnchor("abc", anchor(2, 1)); got != "" {
		t.Fatalf("expected empty for inverted range, got %q", got)
	}
}

func TestProcessorName(t *testing.T) {
	if got := processorName("p", "eu", "abc", ""); got != "projects/p/locations/eu/processors/abc" {
		t.Fatalf("unexpected name %s", got)
	}
	if got := processorName("p", "eu", "abc", "v2"); got != "projects/p/locations/eu/processors/abc/processorVersions/v2" {
		t.Fatalf("unexpected versioned name %s", got)
	}
	if processorName("", "eu", "abc", "") != "" {
		t.Fatalf("missing project should yield empty name")
	}
}

func TestAvgBlockConfidenceSkipsZero(t *testing.T) {
	pages := []*visionpb.Page{{Blocks: []*visionpb.Block{{Confidence: 0.8}, {Confidence: 0}, {Confidence: 0.6}}}}
	got := avgBlockConfidence(pages)
	if got < 0.69 || got > 0.71 {
		t.Fatalf("expected ~0.7, got %v", got)
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{"a/b.PDF": "application/pdf", "x.jpeg": "image/jpeg", "noext": "application/octet-stream"}
	for key, want := range cases {
		if got := ContentTypeForKey(key); got != want {
			t.Fatalf("ContentTypeForKey(%q)=%q want %q", key, got, want)
		}
	}
}
