package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/activity-advisor-service/internal/activity"
	"github.com/kjstillabower/activity-advisor-service/internal/cache"
	"github.com/kjstillabower/activity-advisor-service/internal/circuitbreaker"
	"github.com/kjstillabower/activity-advisor-service/internal/client"
	"github.com/kjstillabower/activity-advisor-service/internal/config"
	httphandler "github.com/kjstillabower/activity-advisor-service/internal/http"
	"github.com/kjstillabower/activity-advisor-service/internal/lifecycle"
	"github.com/kjstillabower/activity-advisor-service/internal/observability"
	"github.com/kjstillabower/activity-advisor-service/internal/rating"
	"github.com/kjstillabower/activity-advisor-service/internal/recommend"
	"github.com/kjstillabower/activity-advisor-service/internal/service"
	"github.com/kjstillabower/activity-advisor-service/internal/traffic"
)

const (
	breakerComponent     = "weather_api"
	warmTimeout          = 30 * time.Second
	inFlightPollInterval = 50 * time.Millisecond
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	if cb := newCircuitBreaker(cfg); cb != nil {
		weatherClient = weatherClient.WithCircuitBreaker(cb)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	cacheSvc, memcached, err := newCache(cfg)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))

	weatherService := service.NewWeatherService(weatherClient, cacheSvc, service.Options{
		TTL:             cfg.CacheTTL,
		StaleTTL:        cfg.StaleCacheTTL,
		CoalesceTimeout: cfg.CoalesceTimeout,
		FallbackOnError: cfg.FallbackOnError,
	})

	recommender, err := newRecommender(cfg, weatherService)
	if err != nil {
		logger.Fatal("recommender", zap.Error(err))
	}

	observability.SetTrackedActivities(cfg.TrackedActivities)
	observability.RegisterTrafficGauges(
		func() int { return traffic.RequestCount(cfg.OverloadWindow) },
		func() int { return traffic.DenialCount(cfg.OverloadWindow) },
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recovery := lifecycle.NewRecovery(lifecycle.RecoveryConfig{
		Initial:     cfg.DegradedRetryInitial,
		Max:         cfg.DegradedRetryMax,
		Validate:    weatherService.ValidateAPIKey,
		OnRecovered: traffic.Reset,
		OnExhausted: func() {
			logger.Error("degraded recovery exhausted; shutting down")
			lifecycle.SetShuttingDown(true)
			stop()
		},
		Logger: logger,
	})
	recovery.Start(ctx)

	monitor := lifecycle.NewMonitor(traffic.Default(), nil, healthThresholds(cfg), weatherService.ValidateAPIKey, recovery.Notify)

	warmCache(ctx, cfg, weatherService, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	var cachePing func() error
	if memcached != nil {
		cachePing = memcached.Ping
	}
	handler := httphandler.NewHandler(recommender, monitor, logger, cachePing)
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightPollInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	var closers []io.Closer
	if memcached != nil {
		closers = append(closers, memcached)
	}
	logger.Info("shutdown complete")
	if err := observability.Shutdown(logger, closers...); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
}

// newCircuitBreaker returns nil when the breaker is disabled.
func newCircuitBreaker(cfg *config.Config) *circuitbreaker.CircuitBreaker {
	if !cfg.CircuitBreakerEnabled {
		return nil
	}
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        breakerComponent,
		IsSuccessful:     func(err error) bool { return !client.CountsAgainstBreaker(err) },
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(breakerComponent, observability.CircuitBreakerStateValue(to.String()))
		},
	})
	observability.SetCircuitBreakerStateGauge(breakerComponent, observability.CircuitBreakerStateValue(cb.State().String()))
	return cb
}

// newCache builds the configured backend. The memcached handle is returned separately for ping and close.
func newCache(cfg *config.Config) (cache.Cache, *cache.MemcachedCache, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleCacheTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("memcached: %w", err)
		}
		return mc, mc, nil
	default:
		return cache.NewInMemoryCache(nil, cfg.StaleCacheTTL).WithMaxEntries(cfg.CacheMaxEntries), nil, nil
	}
}

func newRecommender(cfg *config.Config, weather recommend.WeatherProvider) (*recommend.Service, error) {
	classifier, err := rating.NewClassifier(cfg.RatingThresholds)
	if err != nil {
		return nil, err
	}
	return recommend.NewService(
		weather,
		activity.NewEngine(nil),
		classifier,
		recommend.NewAssembler(cfg.AlternativesMinScore),
		recommend.Options{SuggestFromCatalog: cfg.SuggestFromCatalog},
	), nil
}

func healthThresholds(cfg *config.Config) lifecycle.Thresholds {
	return lifecycle.Thresholds{
		RateLimitRPS:           cfg.RateLimitRPS,
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
	}
}

// warmCache prefetches the configured locations once, then keeps them warm in the background.
func warmCache(ctx context.Context, cfg *config.Config, fetcher cache.SnapshotFetcher, logger *zap.Logger) {
	if len(cfg.WarmLocations) == 0 {
		return
	}
	warmer := cache.NewCacheWarmer(fetcher, logger, nil)
	warmCtx, cancel := context.WithTimeout(ctx, warmTimeout)
	if err := warmer.Warm(warmCtx, cfg.WarmLocations); err != nil {
		logger.Warn("cache warming failed", zap.Error(err))
	}
	cancel()
	if cfg.WarmInterval <= 0 {
		return
	}
	go func() {
		if err := warmer.WarmPeriodic(ctx, cfg.WarmLocations, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("periodic cache warming stopped", zap.Error(err))
		}
	}()
}
