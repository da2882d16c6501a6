// Package telemetry provides application-level observability for the directory service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<ORGDIR_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Directory mutation outcomes, by entity and operation
//   - Directory entity counts (refreshed by the stats job)
//   - Rate limiter rejections
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /users/:id/roles/:role_id)
// rather than the raw request URL so numeric IDs never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Mutation outcome labels
const (
	OutcomeSuccess     = "success"
	OutcomeConflict    = "conflict"
	OutcomeReferential = "referential"
	OutcomeValidation  = "validation"
	OutcomeError       = "error"
)

// DirectoryMutationsTotal counts service-layer writes by entity (organization, department,
// user, role), operation (create, update, delete, assign_role, revoke_role) and outcome.
//
// Example PromQL queries:
//   - Conflict rate on user creation:  rate(directory_mutations_total{entity="user",operation="create",outcome="conflict"}[5m])
var DirectoryMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "directory_mutations_total",
		Help: "Total number of directory mutations, by entity, operation, and outcome.",
	},
	[]string{"entity", "operation", "outcome"},
)

// DirectoryEntities is the number of rows per entity, set by the directory stats job.
var DirectoryEntities = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "directory_entities",
		Help: "Current number of stored directory entities, by entity.",
	},
	[]string{"entity"},
)

// RateLimitRejectionsTotal counts requests refused by the rate limiter, by backend (memory, redis).
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by backend.",
	},
	[]string{"backend"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled by StartDBStatsCollector rather than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples sql.DB pool statistics every interval until ctx is cancelled
// or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
