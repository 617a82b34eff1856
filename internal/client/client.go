package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/activity-advisor-service/internal/circuitbreaker"
	"github.com/kjstillabower/activity-advisor-service/internal/models"
	"github.com/kjstillabower/activity-advisor-service/internal/observability"
)

// WeatherClient fetches a normalized forecast snapshot for a point and date.
type WeatherClient interface {
	GetForecast(ctx context.Context, loc models.Location, date time.Time) (models.WeatherSnapshot, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrNoForecast       = errors.New("no forecast available")
)

const (
	mmPerInch          = 25.4
	snowToLiquidRatio  = 10 // snow.3h is liquid equivalent; scoring wants depth
	metersPerMile      = 1609.34
	defaultVisibilityM = 10000
)

// Coordinates used to probe the API key; any valid point works.
var probeLocation = models.Location{Latitude: 51.51, Longitude: -0.13}

type OpenWeatherClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, apiURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewOpenWeatherClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if retryAttempts < 1 {
		retryAttempts = 1
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		apiURL:         apiURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// WithCircuitBreaker routes every upstream attempt through cb.
func (c *OpenWeatherClient) WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) *OpenWeatherClient {
	c.breaker = cb
	return c
}

// forecastResponse is the subset of the 5 day / 3 hour forecast payload we use.
type forecastResponse struct {
	List []forecastEntry `json:"list"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
}

type forecastEntry struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Visibility *float64 `json:"visibility"`
	Pop        float64  `json:"pop"`
	Snow       struct {
		ThreeHours float64 `json:"3h"`
	} `json:"snow"`
}

// GetForecast returns the forecast entry closest to noon UTC on date, normalized to a snapshot.
// Retryable failures are retried with exponential backoff and jitter.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, loc models.Location, date time.Time) (models.WeatherSnapshot, error) {
	snap, err := c.getForecastWithRetry(ctx, loc, date)
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
	}
	return snap, err
}

func (c *OpenWeatherClient) getForecastWithRetry(ctx context.Context, loc models.Location, date time.Time) (models.WeatherSnapshot, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.WeatherSnapshot{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.callWithBreaker(ctx, loc, date)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return models.WeatherSnapshot{}, err
		}
	}

	return models.WeatherSnapshot{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) callWithBreaker(ctx context.Context, loc models.Location, date time.Time) (models.WeatherSnapshot, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, loc, date)
	}
	var snap models.WeatherSnapshot
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		snap, callErr = c.callAPI(ctx, loc, date)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return models.WeatherSnapshot{}, fmt.Errorf("%w: %w", ErrUpstreamFailure, err)
	}
	return snap, err
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, loc models.Location, date time.Time) (models.WeatherSnapshot, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, loc)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.WeatherSnapshot{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.WeatherSnapshot{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.WeatherSnapshot{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return models.WeatherSnapshot{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp forecastResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("parse response: %w", err)
	}

	return mapForecast(apiResp, date)
}

// IsRetryable reports whether err is worth another attempt: rate limiting, 5xx and timeouts.
// A caller cancelling its context is not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CountsAgainstBreaker reports whether err signals an unhealthy upstream.
// Bad input and auth errors do not trip the circuit.
func CountsAgainstBreaker(err error) bool {
	return IsRetryable(err)
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, loc models.Location) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
	params.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	params.Set("appid", c.apiKey)
	params.Set("units", "imperial")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenWeatherClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: invalid API key", ErrInvalidAPIKey)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrLocationNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected upstream response: HTTP %d", resp.StatusCode)
	}

	return nil
}

// mapForecast picks the entry nearest noon UTC on date. Dates past the horizon get the
// last entry, dates before it the first; either way the snapshot is marked OutsideHorizon.
func mapForecast(apiResp forecastResponse, date time.Time) (models.WeatherSnapshot, error) {
	if len(apiResp.List) == 0 {
		return models.WeatherSnapshot{}, ErrNoForecast
	}

	y, m, d := date.Date()
	target := time.Date(y, m, d, 12, 0, 0, 0, time.UTC).Unix()
	best := apiResp.List[0]
	for _, e := range apiResp.List[1:] {
		if abs64(e.Dt-target) < abs64(best.Dt-target) {
			best = e
		}
	}

	description := ""
	if len(best.Weather) > 0 {
		description = best.Weather[0].Main
		if best.Weather[0].Description != "" {
			description = best.Weather[0].Description
		}
	}

	observed := time.Unix(best.Dt, 0).UTC()
	oy, om, od := observed.Date()

	visibility := float64(defaultVisibilityM)
	if best.Visibility != nil {
		visibility = *best.Visibility
	}

	return models.WeatherSnapshot{
		Temperature:    best.Main.Temp,
		Precipitation:  best.Pop * 100,
		Snowfall:       best.Snow.ThreeHours * snowToLiquidRatio / mmPerInch,
		WindSpeed:      best.Wind.Speed,
		Visibility:     visibility / metersPerMile,
		Humidity:       best.Main.Humidity,
		CloudCover:     best.Clouds.All,
		Description:    description,
		LocationName:   apiResp.City.Name,
		ObservedAt:     observed,
		Source:         models.SourceLive,
		OutsideHorizon: oy != y || om != m || od != d,
	}, nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues a single lightweight request and reports ErrInvalidAPIKey on 401.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, probeLocation)
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}
	q := req.URL.Query()
	q.Set("cnt", "1")
	req.URL.RawQuery = q.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
