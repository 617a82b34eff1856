package client

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/activity-advisor-service/internal/circuitbreaker"
	"github.com/kjstillabower/activity-advisor-service/internal/models"
	"github.com/kjstillabower/activity-advisor-service/internal/observability"
)

const testKey = "test-api-key-12345"

var (
	seattle = models.Location{Latitude: 47.6062, Longitude: -122.3321}
	july4   = time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)
)

// july4At returns the unix time of hour:00 UTC on july4.
func july4At(hour int) int64 {
	return july4.Add(time.Duration(hour) * time.Hour).Unix()
}

func entry(dt int64, temp, pop float64) map[string]interface{} {
	return map[string]interface{}{
		"dt":         dt,
		"main":       map[string]interface{}{"temp": temp, "humidity": 55},
		"weather":    []map[string]interface{}{{"main": "Clouds", "description": "scattered clouds"}},
		"clouds":     map[string]interface{}{"all": 40},
		"wind":       map[string]interface{}{"speed": 7.5},
		"visibility": 16093.4,
		"pop":        pop,
	}
}

func forecastServer(t *testing.T, body interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, url string, attempts int) *OpenWeatherClient {
	t.Helper()
	c, err := NewOpenWeatherClientWithRetry(testKey, url, 2*time.Second, attempts, time.Millisecond, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("NewOpenWeatherClientWithRetry() error = %v", err)
	}
	return c
}

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{name: "empty API key", apiKey: "", wantErr: ErrInvalidAPIKey},
		{name: "too short API key", apiKey: "short", wantErr: ErrInvalidAPIKey},
		{name: "valid API key", apiKey: "valid-api-key-12345", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenWeatherClient(tt.apiKey, "https://api.test.com", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if client != nil {
					t.Errorf("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil || client == nil {
				t.Fatalf("NewOpenWeatherClient() = %v, %v; want client", client, err)
			}
		})
	}
}

func TestOpenWeatherClient_GetForecast_Success(t *testing.T) {
	noon := entry(july4At(12), 68, 0.25)
	noon["snow"] = map[string]interface{}{"3h": 15.24}
	body := map[string]interface{}{
		"list": []interface{}{entry(july4At(9), 60, 0.5), noon, entry(july4At(15), 75, 0)},
		"city": map[string]interface{}{"name": "Seattle"},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if q.Get("lat") != "47.6062" || q.Get("lon") != "-122.3321" {
			t.Errorf("expected coordinates in query, got %s", r.URL.RawQuery)
		}
		if q.Get("appid") != testKey {
			t.Errorf("expected API key in query")
		}
		if q.Get("units") != "imperial" {
			t.Errorf("expected units=imperial in query")
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL, 1).GetForecast(context.Background(), seattle, july4)
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}

	if got.Temperature != 68 {
		t.Errorf("Temperature = %v, want 68 (noon entry)", got.Temperature)
	}
	if got.Precipitation != 25 {
		t.Errorf("Precipitation = %v, want 25", got.Precipitation)
	}
	if math.Abs(got.Snowfall-6) > 1e-9 {
		t.Errorf("Snowfall = %v, want 6 inches of snow from 15.24 mm liquid", got.Snowfall)
	}
	if math.Abs(got.Visibility-10) > 1e-6 {
		t.Errorf("Visibility = %v, want ~10 miles", got.Visibility)
	}
	if got.WindSpeed != 7.5 || got.Humidity != 55 || got.CloudCover != 40 {
		t.Errorf("wind/humidity/clouds = %v/%v/%v", got.WindSpeed, got.Humidity, got.CloudCover)
	}
	if got.Description != "scattered clouds" || got.LocationName != "Seattle" {
		t.Errorf("Description/LocationName = %q/%q", got.Description, got.LocationName)
	}
	if got.Source != models.SourceLive {
		t.Errorf("Source = %q, want %q", got.Source, models.SourceLive)
	}
	if !got.ObservedAt.Equal(time.Unix(july4At(12), 0)) {
		t.Errorf("ObservedAt = %v, want noon", got.ObservedAt)
	}
}

func TestMapForecast(t *testing.T) {
	early := forecastEntry{Dt: july4At(0)}
	early.Main.Temp = 50
	late := forecastEntry{Dt: july4At(21)}
	late.Main.Temp = 80
	resp := forecastResponse{List: []forecastEntry{early, late}}

	t.Run("past horizon uses last entry", func(t *testing.T) {
		got, err := mapForecast(resp, july4.AddDate(0, 0, 10))
		if err != nil || got.Temperature != 80 {
			t.Errorf("mapForecast() = %v, %v; want last entry", got.Temperature, err)
		}
		if !got.OutsideHorizon {
			t.Error("OutsideHorizon = false, want true for a date past the forecast")
		}
	})

	t.Run("before horizon uses first entry", func(t *testing.T) {
		got, err := mapForecast(resp, july4.AddDate(0, 0, -3))
		if err != nil || got.Temperature != 50 {
			t.Errorf("mapForecast() = %v, %v; want first entry", got.Temperature, err)
		}
		if !got.OutsideHorizon {
			t.Error("OutsideHorizon = false, want true for a date before the forecast")
		}
	})

	t.Run("covered date is inside horizon", func(t *testing.T) {
		got, _ := mapForecast(resp, july4)
		if got.OutsideHorizon {
			t.Error("OutsideHorizon = true, want false when the date has entries")
		}
	})

	t.Run("missing fields get defaults", func(t *testing.T) {
		got, _ := mapForecast(resp, july4)
		if math.Abs(got.Visibility-defaultVisibilityM/metersPerMile) > 1e-9 {
			t.Errorf("Visibility = %v, want default", got.Visibility)
		}
		if got.Snowfall != 0 || got.Precipitation != 0 {
			t.Errorf("Snowfall/Precipitation = %v/%v, want 0", got.Snowfall, got.Precipitation)
		}
	})

	t.Run("empty list", func(t *testing.T) {
		if _, err := mapForecast(forecastResponse{}, july4); !errors.Is(err, ErrNoForecast) {
			t.Errorf("mapForecast() error = %v, want ErrNoForecast", err)
		}
	})
}

func TestOpenWeatherClient_GetForecast_ErrorHandling(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey},
		{"not found", http.StatusNotFound, ErrLocationNotFound},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"internal server error", http.StatusInternalServerError, ErrUpstreamFailure},
		{"bad gateway", http.StatusBadGateway, ErrUpstreamFailure},
		{"service unavailable", http.StatusServiceUnavailable, ErrUpstreamFailure},
		{"gateway timeout", http.StatusGatewayTimeout, ErrUpstreamFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL, 1).GetForecast(context.Background(), seattle, july4)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetForecast() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenWeatherClient_GetForecast_RetryLogic(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"list": []interface{}{entry(july4At(12), 70, 0)}})
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL, 3).GetForecast(context.Background(), seattle, july4)
	if err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	if got.Temperature != 70 {
		t.Errorf("Temperature = %v, want 70", got.Temperature)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestOpenWeatherClient_GetForecast_NoRetryOnNonRetryableError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 3).GetForecast(context.Background(), seattle, july4)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("GetForecast() error = %v, want ErrInvalidAPIKey", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", calls.Load())
	}
}

func TestOpenWeatherClient_GetForecast_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 2).GetForecast(context.Background(), seattle, july4)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("GetForecast() error = %v, want ErrUpstreamFailure", err)
	}
}

func TestOpenWeatherClient_GetForecast_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, server.URL, 3).GetForecast(ctx, seattle, july4)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetForecast() error = %v, want context.Canceled", err)
	}
}

func TestOpenWeatherClient_GetForecast_CorrelationID(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Get("X-Correlation-ID")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"list": []interface{}{entry(july4At(12), 70, 0)}})
	}))
	defer server.Close()

	ctx := observability.WithCorrelationID(context.Background(), "test-correlation-id-123")
	if _, err := newTestClient(t, server.URL, 1).GetForecast(ctx, seattle, july4); err != nil {
		t.Fatalf("GetForecast() error = %v", err)
	}
	if captured != "test-correlation-id-123" {
		t.Errorf("X-Correlation-ID header = %q, want %q", captured, "test-correlation-id-123")
	}
}

func TestOpenWeatherClient_GetForecast_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 1).GetForecast(context.Background(), seattle, july4)
	if CategorizeError(err) != ErrorCategoryParsing {
		t.Errorf("GetForecast() error = %v, want parsing error", err)
	}
}

func TestOpenWeatherClient_GetForecast_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Hour, IsSuccessful: func(err error) bool {
		return !CountsAgainstBreaker(err)
	}})
	c := newTestClient(t, server.URL, 1).WithCircuitBreaker(cb)

	for i := 0; i < 2; i++ {
		_, _ = c.GetForecast(context.Background(), seattle, july4)
	}
	before := calls.Load()

	_, err := c.GetForecast(context.Background(), seattle, july4)
	if !errors.Is(err, circuitbreaker.ErrOpen) || !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("GetForecast() error = %v, want open circuit upstream failure", err)
	}
	if calls.Load() != before {
		t.Errorf("open circuit should not reach upstream")
	}
}

func TestOpenWeatherClient_calculateBackoff(t *testing.T) {
	c, _ := NewOpenWeatherClientWithRetry(testKey, "http://x", time.Second, 5, 100*time.Millisecond, 300*time.Millisecond)
	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{6, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		got := c.calculateBackoff(tt.attempt)
		maxDelay := tt.base + tt.base/10
		if got < tt.base || got > maxDelay {
			t.Errorf("calculateBackoff(%d) = %v, want in [%v, %v]", tt.attempt, got, tt.base, maxDelay)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", ErrRateLimited, true},
		{"upstream", ErrUpstreamFailure, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"not found", ErrLocationNotFound, false},
		{"invalid key", ErrInvalidAPIKey, false},
		{"circuit open", circuitbreaker.ErrOpen, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOpenWeatherClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
		wantIs     error
	}{
		{"valid", http.StatusOK, false, nil},
		{"invalid", http.StatusUnauthorized, true, ErrInvalidAPIKey},
		{"server error", http.StatusInternalServerError, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("cnt") != "1" {
					t.Errorf("validation request should ask for a single entry")
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			err := newTestClient(t, server.URL, 1).ValidateAPIKey(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAPIKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("ValidateAPIKey() error = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestOpenWeatherClient_GetForecast_InvalidURL(t *testing.T) {
	c := newTestClient(t, "://bad-url", 1)
	if _, err := c.GetForecast(context.Background(), seattle, july4); err == nil {
		t.Error("GetForecast() with invalid URL should fail")
	}
}
