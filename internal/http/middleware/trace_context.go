package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/docsearch-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"

	maxRequestIDLen = 128
)

// AttachTraceContext stamps every request with a request id and a trace id.
// The trace id comes from the active span when one exists, so it should run
// after the otel middleware. Once the handler returns, the span is renamed to
// "<METHOD> <route>" and tagged with the request and document ids.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := cleanRequestID(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		span := trace.SpanFromContext(c.Request.Context())
		traceID := ""
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		} else {
			traceID = cleanRequestID(c.GetHeader(headerTraceID))
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}
		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)

		c.Next()

		if !span.IsRecording() {
			return
		}
		span.SetName(SpanName(c.Request.Method, RouteLabel(c)))
		attrs := []attribute.KeyValue{attribute.String("docsearch.request_id", reqID)}
		if id := documentIDParam(c); id != "" {
			attrs = append(attrs, attribute.String("docsearch.document_id", id))
		}
		span.SetAttributes(attrs...)
	}
}

// SpanName is the span name for a request to route.
func SpanName(method, route string) string {
	return strings.ToUpper(method) + " " + route
}

// cleanRequestID keeps a client-supplied id only when it is short and made of
// characters that are safe to echo into headers and logs.
func cleanRequestID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxRequestIDLen {
		return ""
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return ""
		}
	}
	return raw
}

func documentIDParam(c *gin.Context) string {
	if !strings.HasPrefix(c.FullPath(), "/documents/:id") {
		return ""
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return ""
	}
	return id.String()
}
