package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yungbote/docsearch-backend/internal/platform/ctxutil"
)

func TestTraceContextNamesSpanByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	r := gin.New()
	r.Use(otelgin.Middleware("docsearch", otelgin.WithTracerProvider(tp)))
	r.Use(AttachTraceContext())
	var seen *ctxutil.TraceData
	r.GET("/documents/:id/status", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	docID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/documents/"+docID.String()+"/status", nil)
	req.Header.Set(headerRequestID, "upload-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /documents/:id/status" {
		t.Fatalf("span name = %q", span.Name())
	}
	attrs := map[string]string{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["docsearch.document_id"] != docID.String() || attrs["docsearch.request_id"] != "upload-42" {
		t.Fatalf("span attributes = %v", attrs)
	}
	if got := rec.Header().Get(headerTraceID); got != span.SpanContext().TraceID().String() {
		t.Fatalf("trace header %q does not match span trace %s", got, span.SpanContext().TraceID())
	}
	if seen == nil || seen.RequestID != "upload-42" {
		t.Fatalf("trace data = %+v", seen)
	}
}

func TestTraceContextReplacesUnsafeRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/search", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, raw := range []string{"bad id\nforged=1", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/search", nil)
		req.Header.Set(headerRequestID, raw)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		got := rec.Header().Get(headerRequestID)
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("request id %q was echoed as %q", raw, got)
		}
		if rec.Header().Get(headerTraceID) == "" {
			t.Fatalf("trace id missing")
		}
	}
}

type observation struct {
	method, route, status string
}

type fakeObserver struct {
	mu       sync.Mutex
	inflight int
	seen     []observation
}

func (f *fakeObserver) ApiInflightInc() { f.mu.Lock(); f.inflight++; f.mu.Unlock() }
func (f *fakeObserver) ApiInflightDec() { f.mu.Lock(); f.inflight--; f.mu.Unlock() }
func (f *fakeObserver) ObserveAPI(method, route, status string, dur time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, observation{method, route, status})
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &fakeObserver{}
	r := gin.New()
	r.Use(Metrics(obs, "/metrics"))
	r.GET("/documents/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/documents/" + uuid.NewString(), "/no/such/route", "/metrics"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	want := []observation{
		{http.MethodGet, "/documents/:id", "200"},
		{http.MethodGet, unmatchedRoute, "404"},
	}
	if len(obs.seen) != len(want) {
		t.Fatalf("observations = %+v", obs.seen)
	}
	for i := range want {
		if obs.seen[i] != want[i] {
			t.Fatalf("observation %d = %+v, want %+v", i, obs.seen[i], want[i])
		}
	}
	if obs.inflight != 0 {
		t.Fatalf("inflight = %d", obs.inflight)
	}
}
