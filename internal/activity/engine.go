package activity

import "github.com/kjstillabower/activity-advisor-service/internal/models"

// Engine applies registered evaluators to a snapshot. It holds no mutable state.
type Engine struct {
	registry *Registry
}

// NewEngine returns an Engine backed by registry. A nil registry uses the built-ins.
func NewEngine(registry *Registry) *Engine {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	return &Engine{registry: registry}
}

// Score evaluates each distinct activity once, in first-requested order.
// Unknown activities get the neutral fallback; Score never fails.
func (e *Engine) Score(activities []Activity, snap models.WeatherSnapshot) []models.ActivityRecommendation {
	out := make([]models.ActivityRecommendation, 0, len(activities))
	seen := make(map[string]struct{}, len(activities))
	for _, a := range activities {
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, e.registry.Lookup(a).Evaluate(a.ID, snap))
	}
	return out
}

// Catalog returns the activities that have a registered evaluator.
func (e *Engine) Catalog() []Activity {
	kinds := e.registry.Kinds()
	out := make([]Activity, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, Activity{Kind: k, ID: k.String()})
	}
	return out
}

// ByActivity indexes recommendations by activity id.
func ByActivity(recs []models.ActivityRecommendation) map[string]models.ActivityRecommendation {
	m := make(map[string]models.ActivityRecommendation, len(recs))
	for _, r := range recs {
		m[r.Activity] = r
	}
	return m
}
