package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/activity-advisor-service/internal/circuitbreaker"
	"github.com/kjstillabower/activity-advisor-service/internal/observability"
)

func TestCategorizeError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want ErrorCategory
	}{
		"nil":                        {nil, ""},
		"deadline":                   {fmt.Errorf("request timeout: %w", context.DeadlineExceeded), ErrorCategoryTimeout},
		"canceled":                   {context.Canceled, ErrorCategoryTimeout},
		"wrapped invalid key":        {fmt.Errorf("auth: %w", ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		"location not found":         {ErrLocationNotFound, ErrorCategoryLocationNotFound},
		"empty forecast":             {fmt.Errorf("weather: %w", ErrNoForecast), ErrorCategoryNoForecast},
		"rate limited after retries": {fmt.Errorf("exhausted retries: %w", ErrRateLimited), ErrorCategoryRateLimited},
		"open circuit beats 5xx":     {fmt.Errorf("%w: %w", ErrUpstreamFailure, circuitbreaker.ErrOpen), ErrorCategoryCircuitOpen},
		"5xx":                        {fmt.Errorf("%w: HTTP 502", ErrUpstreamFailure), ErrorCategoryUpstream5xx},
		"connection refused":         {errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		"bad json":                   {errors.New("parse response: unexpected EOF"), ErrorCategoryParsing},
		"anything else":              {errors.New("teapot"), ErrorCategoryUnknown},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeError(tt.err))
		})
	}
}

func TestGetForecast_CountsFailuresByCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	counter := observability.WeatherAPIErrorsTotal.WithLabelValues(string(ErrorCategoryLocationNotFound))
	before := testutil.ToFloat64(counter)

	_, err := newTestClient(t, srv.URL, 1).GetForecast(context.Background(), seattle, july4)
	require.ErrorIs(t, err, ErrLocationNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(counter)-before)
}
