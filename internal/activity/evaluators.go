package activity

import "github.com/kjstillabower/activity-advisor-service/internal/models"

const baseScore = 100

// scorecard accumulates rule outcomes. Rules apply in the order they are called,
// which fixes the order of reasons and warnings.
type scorecard struct {
	score    int
	reasons  []string
	warnings []string
}

func newScorecard() *scorecard {
	return &scorecard{score: baseScore, reasons: []string{}, warnings: []string{}}
}

func (c *scorecard) reason(msg string) {
	c.reasons = append(c.reasons, msg)
}

func (c *scorecard) bonus(points int, msg string) {
	c.score += points
	c.reasons = append(c.reasons, msg)
}

func (c *scorecard) penalty(points int, msg string) {
	c.score -= points
	c.warnings = append(c.warnings, msg)
}

func (c *scorecard) result(activityID string) models.ActivityRecommendation {
	return models.ActivityRecommendation{
		Activity: activityID,
		Score:    clamp(c.score, 0, 100),
		Reasons:  c.reasons,
		Warnings: c.warnings,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func between(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

func evaluateHiking(id string, w models.WeatherSnapshot) models.ActivityRecommendation {
	c := newScorecard()

	switch {
	case between(w.Temperature, 50, 75):
		c.reason("Perfect temperature for hiking")
	case w.Temperature < 40:
		c.penalty(20, "Cold weather - dress warmly")
	case w.Temperature > 85:
		c.penalty(15, "Hot weather - bring extra water")
	}

	if w.Precipitation > 50 {
		c.penalty(30, "High chance of rain")
	}

	if w.WindSpeed > 20 {
		c.penalty(15, "Strong winds expected")
	}

	if w.Visibility > 5 {
		c.reason("Excellent visibility")
	} else {
		c.penalty(10, "Reduced visibility")
	}

	return c.result(id)
}

func evaluateSkiing(id string, w models.WeatherSnapshot) models.ActivityRecommendation {
	c := newScorecard()

	switch {
	case between(w.Temperature, 15, 32):
		c.bonus(10, "Perfect skiing temperature")
	case w.Temperature > 35:
		c.penalty(40, "Too warm - snow may be slushy")
	case w.Temperature < 0:
		c.penalty(20, "Extremely cold - dress in layers")
	}

	switch {
	case w.Snowfall >= 6:
		c.bonus(15, "Fresh powder!")
	case w.Snowfall >= 2:
		c.reason("Recent snowfall")
	default:
		c.penalty(10, "Little fresh snow")
	}

	if w.WindSpeed > 25 {
		c.penalty(25, "High winds - lifts may be closed")
	}

	if w.Visibility < 3 {
		c.penalty(30, "Poor visibility - whiteout conditions possible")
	}

	return c.result(id)
}

func evaluateCamping(id string, w models.WeatherSnapshot) models.ActivityRecommendation {
	c := newScorecard()

	switch {
	case between(w.Temperature, 55, 75):
		c.reason("Comfortable camping weather")
	case w.Temperature < 40:
		c.penalty(25, "Cold nights - bring warm sleeping bag")
	}

	if w.Precipitation > 40 {
		c.penalty(35, "Rain expected - ensure waterproof gear")
	}

	if w.WindSpeed > 15 {
		c.penalty(20, "Windy - secure tent properly")
	}

	return c.result(id)
}

func evaluateCycling(id string, w models.WeatherSnapshot) models.ActivityRecommendation {
	c := newScorecard()

	switch {
	case between(w.Temperature, 60, 80):
		c.reason("Great cycling weather")
	case w.Temperature > 90:
		c.penalty(20, "Very hot - stay hydrated")
	}

	if w.Precipitation > 30 {
		c.penalty(40, "Wet roads - reduced traction")
	}

	if w.WindSpeed > 15 {
		c.penalty(15, "Strong headwinds possible")
	}

	return c.result(id)
}
