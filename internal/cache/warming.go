package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/activity-advisor-service/internal/models"
	"github.com/kjstillabower/activity-advisor-service/internal/observability"
)

// warmConcurrency bounds parallel upstream fetches during a warm run.
const warmConcurrency = 4

// SnapshotFetcher is implemented by the service layer to fetch (and cache) a snapshot.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type SnapshotFetcher interface {
	GetSnapshot(ctx context.Context, loc models.Location, date time.Time) (models.WeatherSnapshot, error)
}

// CacheWarmer warms the cache by prefetching today's snapshot for a list of locations.
type CacheWarmer struct {
	fetcher SnapshotFetcher
	logger  *zap.Logger
	clock   clockwork.Clock
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger. A nil clock uses the real clock.
func NewCacheWarmer(fetcher SnapshotFetcher, logger *zap.Logger, clock clockwork.Clock) *CacheWarmer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, clock: clock}
}

// Warm fetches each location concurrently through the fetcher. One failing location does
// not stop the others; all failures are joined into the returned error.
func (w *CacheWarmer) Warm(ctx context.Context, locations []models.Location) error {
	start := w.clock.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("locations", len(locations)))
	}

	today := start.UTC()
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for _, loc := range locations {
		loc := loc // per-iteration copy; module targets go1.21 loop semantics
		g.Go(func() error {
			if _, err := w.fetcher.GetSnapshot(gCtx, loc, today); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", loc.Key(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := w.clock.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("locations", len(locations)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic refreshes at the given interval until ctx is done. The first run happens
// one interval after the call; callers warm synchronously at startup.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, locations []models.Location, interval time.Duration) error {
	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
