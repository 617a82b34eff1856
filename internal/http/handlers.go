package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/activity-advisor-service/internal/activity"
	"github.com/kjstillabower/activity-advisor-service/internal/lifecycle"
	"github.com/kjstillabower/activity-advisor-service/internal/models"
	"github.com/kjstillabower/activity-advisor-service/internal/observability"
	"github.com/kjstillabower/activity-advisor-service/internal/recommend"
	"github.com/kjstillabower/activity-advisor-service/internal/traffic"
	"github.com/kjstillabower/activity-advisor-service/internal/validation"
)

// maxBodyBytes caps POST /recommend bodies.
const maxBodyBytes = 64 << 10

// Recommender produces recommendations; *recommend.Service in production.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (models.RecommendationResponse, error)
	Catalog() []activity.Activity
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	recommender      Recommender
	validator        *validation.Validator
	monitor          *lifecycle.Monitor
	cachePing        func() error
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev lifecycle.Status
}

// NewHandler returns a new Handler. cachePing, when set, is reported as the cache check on /health.
func NewHandler(recommender Recommender, monitor *lifecycle.Monitor, logger *zap.Logger, cachePing func() error) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		recommender: recommender,
		validator:   validation.New(),
		monitor:     monitor,
		cachePing:   cachePing,
		logger:      logger,
	}
}

// PostRecommend handles POST /recommend.
func (h *Handler) PostRecommend(w http.ResponseWriter, r *http.Request) {
	var body validation.RecommendRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be a JSON object")
		return
	}
	in, err := h.validator.Recommend(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", clientMessage(err))
		return
	}

	resp, err := h.recommender.Recommend(r.Context(), recommend.Request{
		Location:   in.Location,
		Date:       in.Date,
		Activities: in.Activities,
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidArgument) {
			writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", clientMessage(err))
			return
		}
		traffic.RecordError()
		writeServiceError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, resp)
}

// clientMessage drops sentinel prefixes so 400 bodies read "date must be YYYY-MM-DD".
func clientMessage(err error) string {
	msg := err.Error()
	for _, prefix := range []error{validation.ErrInvalidRequest, models.ErrInvalidArgument} {
		msg = strings.TrimPrefix(msg, prefix.Error()+": ")
	}
	return msg
}

// OptionsRecommend answers CORS preflight for /recommend. Headers come from CORSMiddleware.
func (h *Handler) OptionsRecommend(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type activityInfo struct {
	ID    string `json:"id"`
	Emoji string `json:"emoji"`
}

// GetActivities handles GET /activities: the built-in catalog with display glyphs.
func (h *Handler) GetActivities(w http.ResponseWriter, r *http.Request) {
	catalog := h.recommender.Catalog()
	out := make([]activityInfo, 0, len(catalog))
	for _, a := range catalog {
		out = append(out, activityInfo{ID: a.ID, Emoji: a.Emoji()})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activities":   out,
		"defaultEmoji": activity.Activity{}.Emoji(),
	})
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.monitor.Evaluate(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", string(prev)),
			zap.String("current_status", string(result.Status)),
			zap.String("reason", result.Reason))
	}
	h.healthStatusPrev = result.Status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.Status == lifecycle.StatusDegraded {
		checks["weatherApi"] = "unhealthy"
	}
	if h.cachePing != nil {
		if h.cachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}

	statusCode := http.StatusOK
	if !result.Available() {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]interface{}{
		"status":    result.Status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"uptime":    h.monitor.Uptime().Truncate(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// writeServiceError writes a 503 for weather that could not be obtained from any source.
// Logs the underlying error at DEBUG level if logger is available in request context.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	if logger := observability.LoggerFromContext(r.Context()); logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
