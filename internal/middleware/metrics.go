// Package middleware provides the Gin HTTP middleware of the directory service.
// Every component here is registered in internal/api/router.go ahead of the route
// handlers so that each request is covered regardless of the endpoint.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/org-directory/org-directory/internal/telemetry"
)

// MetricsMiddleware returns a Gin handler that records, for every request:
//   - http_requests_total{method, path, status}
//   - http_request_duration_seconds{method, path}
//
// The path label is the matched route template (e.g. /departments/:id/subtree) rather
// than the raw URL. Requests that match no route use "<no-route>" so that probing
// random paths does not inflate label cardinality.
//
// Register it after gin.Recovery() so that the status written by the recovery handler
// is the one recorded.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
