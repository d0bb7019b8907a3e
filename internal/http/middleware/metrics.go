package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests no route matched, so raw 404 paths never
// become label values.
const unmatchedRoute = "unmatched"

// APIObserver receives one observation per finished request.
type APIObserver interface {
	ApiInflightInc()
	ApiInflightDec()
	ObserveAPI(method, route, status string, dur time.Duration)
}

// Metrics records request counts, latency and in-flight gauges labelled by
// route template. Requests to the skip routes, such as the scrape endpoint and
// health checks, are not recorded.
func Metrics(obs APIObserver, skip ...string) gin.HandlerFunc {
	if obs == nil {
		return func(c *gin.Context) { c.Next() }
	}
	skipped := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		skipped[route] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := skipped[c.FullPath()]; ok {
			c.Next()
			return
		}
		start := time.Now()
		obs.ApiInflightInc()
		defer obs.ApiInflightDec()

		c.Next()

		obs.ObserveAPI(c.Request.Method, RouteLabel(c), strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// RouteLabel is the matched route template, or "unmatched".
func RouteLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}
