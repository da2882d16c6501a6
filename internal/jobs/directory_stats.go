// Package jobs contains the background jobs started alongside the HTTP server.
package jobs

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/org-directory/org-directory/internal/safego"
	"github.com/org-directory/org-directory/internal/telemetry"
)

// sampleTimeout bounds a single Count call so a stalled query cannot hold up shutdown
const sampleTimeout = 10 * time.Second

// EntityCounter reports how many rows of one entity are stored.
type EntityCounter interface {
	Count(ctx context.Context) (int64, error)
}

// DirectoryStatsJob periodically samples entity counts into the directory_entities gauge.
type DirectoryStatsJob struct {
	counters map[string]EntityCounter
	interval time.Duration
	logger   *slog.Logger

	cancel   context.CancelFunc
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDirectoryStatsJob creates a job sampling each counter, keyed by entity label
// (organizations, departments, users, roles). A non-positive interval defaults to one minute.
func NewDirectoryStatsJob(counters map[string]EntityCounter, interval time.Duration) *DirectoryStatsJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DirectoryStatsJob{
		counters: counters,
		interval: interval,
		logger:   slog.Default().With("component", "jobs.directory_stats"),
		stopCh:   make(chan struct{}),
	}
}

// Start samples once immediately and then on every tick until ctx is cancelled
// or Stop is called. Stop also cancels a sample in flight.
func (j *DirectoryStatsJob) Start(ctx context.Context) {
	j.logger.Info("directory stats job started", "interval", j.interval)

	ctx, cancel := context.WithCancel(ctx)
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()

	j.wg.Add(1)
	safego.Go("jobs.directory_stats", func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.RunOnce(ctx)

		for {
			select {
			case <-ticker.C:
				j.RunOnce(ctx)
			case <-j.stopCh:
				j.logger.Info("directory stats job stopped")
				return
			case <-ctx.Done():
				j.logger.Info("directory stats job context cancelled")
				return
			}
		}
	})
}

// Stop signals the loop to exit and waits for it. Safe to call more than once.
func (j *DirectoryStatsJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.mu.Lock()
	if j.cancel != nil {
		j.cancel()
	}
	j.mu.Unlock()
	j.wg.Wait()
}

// RunOnce samples every counter. A failing counter leaves its gauge at the previous
// value and does not prevent the others from updating.
func (j *DirectoryStatsJob) RunOnce(ctx context.Context) {
	entities := make([]string, 0, len(j.counters))
	for entity := range j.counters {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	for _, entity := range entities {
		if ctx.Err() != nil {
			return
		}
		n, err := j.count(ctx, j.counters[entity])
		if err != nil {
			j.logger.Warn("failed to count entities", "entity", entity, "error", err)
			continue
		}
		telemetry.DirectoryEntities.WithLabelValues(entity).Set(float64(n))
	}
}

func (j *DirectoryStatsJob) count(ctx context.Context, c EntityCounter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, sampleTimeout)
	defer cancel()
	return c.Count(ctx)
}
