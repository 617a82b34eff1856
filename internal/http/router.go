package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/activity-advisor-service/internal/observability"
)

// RouterConfig holds the per-route policies applied to /recommend.
type RouterConfig struct {
	RequestTimeout time.Duration
	Limiter        *rate.Limiter // nil disables rate limiting
}

// NewRouter wires routes and middleware. CORS wraps the mux so 404 and 405 replies carry
// the headers too. Responses are gzip-compressed when the client accepts it.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/activities", h.GetActivities).Methods(http.MethodGet)
	router.HandleFunc("/recommend", h.OptionsRecommend).Methods(http.MethodOptions)

	recommendRouter := router.Path("/recommend").Methods(http.MethodPost).Subrouter()
	recommendRouter.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		recommendRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	recommendRouter.NewRoute().HandlerFunc(h.PostRecommend)

	return gzhttp.GzipHandler(CORSMiddleware(router))
}
