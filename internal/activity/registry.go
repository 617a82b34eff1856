package activity

import (
	"sync"

	"github.com/kjstillabower/activity-advisor-service/internal/models"
)

// NeutralScore is the score given to activities without a registered evaluator.
const NeutralScore = 50

// Evaluator scores one activity against a snapshot. Implementations must be pure.
type Evaluator interface {
	Evaluate(activityID string, snap models.WeatherSnapshot) models.ActivityRecommendation
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(activityID string, snap models.WeatherSnapshot) models.ActivityRecommendation

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(activityID string, snap models.WeatherSnapshot) models.ActivityRecommendation {
	return f(activityID, snap)
}

// neutralEvaluator scores anything at NeutralScore with nothing to say.
var neutralEvaluator = EvaluatorFunc(func(activityID string, _ models.WeatherSnapshot) models.ActivityRecommendation {
	return models.ActivityRecommendation{
		Activity: activityID,
		Score:    NeutralScore,
		Reasons:  []string{},
		Warnings: []string{},
	}
})

// Registry maps activity kinds to evaluators. Populate it at startup; reads are safe
// from any number of goroutines.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[Kind]Evaluator
}

// NewRegistry returns an empty registry. Every lookup falls back to the neutral evaluator.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[Kind]Evaluator)}
}

// NewDefaultRegistry returns a registry with the built-in activity evaluators.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindHiking, EvaluatorFunc(evaluateHiking))
	r.Register(KindSkiing, EvaluatorFunc(evaluateSkiing))
	r.Register(KindCamping, EvaluatorFunc(evaluateCamping))
	r.Register(KindCycling, EvaluatorFunc(evaluateCycling))
	return r
}

// Register sets the evaluator for kind, replacing any previous one.
// KindUnknown cannot be registered; it always uses the neutral fallback.
func (r *Registry) Register(kind Kind, e Evaluator) {
	if kind == KindUnknown || e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[kind] = e
}

// Get returns the evaluator registered for a, or false when there is none.
func (r *Registry) Get(a Activity) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[a.Kind]
	return e, ok
}

// Lookup is Get with the neutral fallback applied. It never returns nil.
func (r *Registry) Lookup(a Activity) Evaluator {
	if e, ok := r.Get(a); ok {
		return e
	}
	return neutralEvaluator
}

// Kinds returns the registered kinds in built-in display order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.evaluators))
	for _, k := range builtinOrder {
		if _, ok := r.evaluators[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
