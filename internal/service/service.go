package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/activity-advisor-service/internal/cache"
	"github.com/kjstillabower/activity-advisor-service/internal/client"
	"github.com/kjstillabower/activity-advisor-service/internal/models"
	"github.com/kjstillabower/activity-advisor-service/internal/observability"
)

// Options configures WeatherService.
type Options struct {
	TTL             time.Duration // fresh cache lifetime
	StaleTTL        time.Duration // maximum age for stale cache fallback (0 = disabled)
	CoalesceTimeout time.Duration // bound on a shared upstream fetch (0 = caller deadline only)
	FallbackOnError bool          // serve models.FallbackSnapshot when nothing else is available
	Clock           clockwork.Clock
}

// WeatherService orchestrates snapshot retrieval using the cache-aside pattern with
// coalesced upstream fetches, stale-cache and fallback degradation.
type WeatherService struct {
	client    client.WeatherClient
	cache     cache.Cache
	opts      Options
	coalescer *requestCoalescer
}

// NewWeatherService creates a WeatherService with the provided dependencies.
func NewWeatherService(c client.WeatherClient, ch cache.Cache, opts Options) *WeatherService {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &WeatherService{
		client:    c,
		cache:     ch,
		opts:      opts,
		coalescer: newRequestCoalescer(opts.CoalesceTimeout),
	}
}

// CacheKey identifies a snapshot by rounded location and calendar date.
func CacheKey(loc models.Location, date time.Time) string {
	return loc.Key() + "|" + date.Format(time.DateOnly)
}

// GetSnapshot returns the weather for loc on date. Order of preference: fresh cache,
// upstream, stale cache, built-in fallback. The returned snapshot's Source says which one served.
func (s *WeatherService) GetSnapshot(ctx context.Context, loc models.Location, date time.Time) (models.WeatherSnapshot, error) {
	key := CacheKey(loc, date)
	start := s.opts.Clock.Now()
	logger := observability.LoggerFromContext(ctx)

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues("snapshot").Inc()
		if logger != nil {
			logger.Debug("cache hit", zap.String("key", key))
		}
		return cached.WithSource(models.SourceCache), nil
	}
	observability.CacheMissesTotal.WithLabelValues("snapshot").Inc()

	if logger != nil {
		logger.Debug("cache miss, fetching upstream", zap.String("key", key))
	}

	data, shared, upstreamErr := s.coalescer.GetOrDo(ctx, key, func(fetchCtx context.Context) (models.WeatherSnapshot, error) {
		snap, err := s.client.GetForecast(fetchCtx, loc, date)
		if err != nil {
			return models.WeatherSnapshot{}, err
		}
		s.store(fetchCtx, key, snap, logger)
		return snap, nil
	})
	if shared {
		observability.CoalescedRequestsTotal.Inc()
	}
	if upstreamErr != nil {
		return s.degrade(ctx, key, upstreamErr, logger)
	}

	if logger != nil {
		logger.Debug("snapshot served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", s.opts.Clock.Since(start)))
	}
	return data.WithSource(models.SourceLive), nil
}

func (s *WeatherService) store(ctx context.Context, key string, snap models.WeatherSnapshot, logger *zap.Logger) {
	setStart := time.Now()
	if err := s.cache.Set(ctx, key, snap, s.opts.TTL); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		if logger != nil {
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
}

// degrade serves stale cache or the fallback snapshot after an upstream failure.
// A caller that cancelled gets its context error back.
func (s *WeatherService) degrade(ctx context.Context, key string, upstreamErr error, logger *zap.Logger) (models.WeatherSnapshot, error) {
	if errors.Is(upstreamErr, context.Canceled) && ctx.Err() != nil {
		return models.WeatherSnapshot{}, ctx.Err()
	}

	if s.opts.StaleTTL > 0 {
		entry, ok, err := s.cache.GetStale(ctx, key, s.opts.StaleTTL)
		if err == nil && ok {
			age := entry.Age(s.opts.Clock.Now())
			observability.StaleCacheServesTotal.Inc()
			if logger != nil {
				logger.Info("serving stale cache", zap.String("key", key), zap.Duration("age", age), zap.Error(upstreamErr))
			}
			return entry.Value.WithSource(models.SourceStale), nil
		}
	}

	if s.opts.FallbackOnError {
		observability.FallbackServesTotal.Inc()
		if logger != nil {
			logger.Warn("serving fallback snapshot", zap.String("key", key), zap.String("category", string(client.CategorizeError(upstreamErr))), zap.Error(upstreamErr))
		}
		return models.FallbackSnapshot(s.opts.Clock.Now()), nil
	}

	return models.WeatherSnapshot{}, fmt.Errorf("fetch weather for %s: %w", key, upstreamErr)
}

// ValidateAPIKey checks the upstream credentials. Used by health checks.
func (s *WeatherService) ValidateAPIKey(ctx context.Context) error {
	return s.client.ValidateAPIKey(ctx)
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
