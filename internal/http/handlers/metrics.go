package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/docsearch-backend/internal/observability"
)

// Metrics serves the Prometheus text exposition. A nil collector answers 404.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Status(404) }
	}
	return gin.WrapF(m.WriteHTTP)
}
