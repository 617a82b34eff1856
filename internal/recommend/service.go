package recommend

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/activity-advisor-service/internal/activity"
	"github.com/kjstillabower/activity-advisor-service/internal/models"
	"github.com/kjstillabower/activity-advisor-service/internal/observability"
	"github.com/kjstillabower/activity-advisor-service/internal/rating"
)

// ErrNoActivities is returned when a request names no activity to evaluate.
var ErrNoActivities = fmt.Errorf("%w: at least one activity is required", models.ErrInvalidArgument)

// WeatherProvider supplies the snapshot for a location and date.
type WeatherProvider interface {
	GetSnapshot(ctx context.Context, loc models.Location, date time.Time) (models.WeatherSnapshot, error)
}

// Request is one recommendation query.
type Request struct {
	Location   models.Location
	Date       time.Time
	Activities []string
}

// Options tune how recommendations are assembled.
type Options struct {
	// SuggestFromCatalog also scores built-in activities the caller did not ask for,
	// so they can appear as alternatives.
	SuggestFromCatalog bool
}

// Service turns a request into a RecommendationResponse: fetch weather, score, classify, assemble.
type Service struct {
	weather    WeatherProvider
	engine     *activity.Engine
	classifier *rating.Classifier
	assembler  *Assembler
	opts       Options
}

// NewService creates a Service from its collaborators.
func NewService(weather WeatherProvider, engine *activity.Engine, classifier *rating.Classifier, assembler *Assembler, opts Options) *Service {
	return &Service{
		weather:    weather,
		engine:     engine,
		classifier: classifier,
		assembler:  assembler,
		opts:       opts,
	}
}

// Recommend evaluates req. Requests without activities fail with ErrNoActivities before any I/O.
func (s *Service) Recommend(ctx context.Context, req Request) (models.RecommendationResponse, error) {
	requested := activity.ParseAll(req.Activities)
	if len(requested) == 0 {
		return models.RecommendationResponse{}, ErrNoActivities
	}
	logger := observability.LoggerFromContext(ctx)

	snap, err := s.weather.GetSnapshot(ctx, req.Location, req.Date)
	if err != nil {
		return models.RecommendationResponse{}, fmt.Errorf("weather for %s: %w", req.Location.Key(), err)
	}
	if snap.OutsideHorizon && logger != nil {
		logger.Warn("forecast does not cover requested date",
			zap.String("location", req.Location.Key()),
			zap.String("date", req.Date.Format(time.DateOnly)),
			zap.Time("observed_at", snap.ObservedAt),
		)
	}

	recs := s.engine.Score(requested, snap)
	payload, err := s.classifier.Classify(recs)
	if err != nil {
		return models.RecommendationResponse{}, err
	}

	candidates := recs
	if s.opts.SuggestFromCatalog {
		candidates = append(slices.Clip(recs), s.engine.Score(s.unrequested(requested), snap)...)
	}

	resp := s.assembler.Assemble(req.Location, req.Date, snap, payload, candidates)
	observability.RecordRecommendation(payload.Style.CSSClass, recs)
	if logger != nil {
		logger.Debug("recommendation served",
			zap.String("location", req.Location.Key()),
			zap.String("activity", payload.Primary.Activity),
			zap.Int("score", payload.Primary.Score),
			zap.String("rating", payload.Rating.Label()),
			zap.String("source", snap.Source),
			zap.Int("alternatives", len(resp.Recommendation.Alternatives)),
		)
	}
	return resp, nil
}

// Catalog lists the built-in activities callers can request.
func (s *Service) Catalog() []activity.Activity {
	return s.engine.Catalog()
}

func (s *Service) unrequested(requested []activity.Activity) []activity.Activity {
	seen := make(map[string]struct{}, len(requested))
	for _, a := range requested {
		seen[a.ID] = struct{}{}
	}
	var out []activity.Activity
	for _, a := range s.engine.Catalog() {
		if _, ok := seen[a.ID]; !ok {
			out = append(out, a)
		}
	}
	return out
}
