package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Counter reports the number of stored entities of one kind
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// DirectoryStats is the body of GET /stats
type DirectoryStats struct {
	Organizations int64 `json:"organizations"`
	Departments   int64 `json:"departments"`
	Users         int64 `json:"users"`
	Roles         int64 `json:"roles"`
}

// StatsHandler serves entity totals for dashboards
type StatsHandler struct {
	orgs, depts, users, roles Counter
	logger                    *slog.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(orgs, depts, users, roles Counter) *StatsHandler {
	return &StatsHandler{
		orgs:   orgs,
		depts:  depts,
		users:  users,
		roles:  roles,
		logger: slog.Default().With("component", "stats.http"),
	}
}

// GetStatsHandler returns the number of organizations, departments, users and roles
// GET /stats
func (h *StatsHandler) GetStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var stats DirectoryStats
		for _, q := range []struct {
			counter Counter
			dst     *int64
		}{
			{h.orgs, &stats.Organizations},
			{h.depts, &stats.Departments},
			{h.users, &stats.Users},
			{h.roles, &stats.Roles},
		} {
			n, err := q.counter.Count(ctx)
			if err != nil {
				respondError(c, h.logger, err, "")
				return
			}
			*q.dst = n
		}

		c.JSON(http.StatusOK, stats)
	}
}
