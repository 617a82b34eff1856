package rating

import (
	"errors"
	"fmt"

	"github.com/kjstillabower/activity-advisor-service/internal/models"
)

// ErrNoRecommendations is returned by Classify when given nothing to classify.
var ErrNoRecommendations = fmt.Errorf("%w: no recommendations to classify", models.ErrInvalidArgument)

// Thresholds are the minimum scores (inclusive) for each rating above NotIdeal.
type Thresholds struct {
	Ideal    int
	Moderate int
	Caution  int
}

// DefaultThresholds: >=80 Ideal, 55-79 Moderate, 30-54 Caution, <30 Not Ideal.
func DefaultThresholds() Thresholds {
	return Thresholds{Ideal: 80, Moderate: 55, Caution: 30}
}

// Validate checks thresholds are within (0,100] and strictly descending.
func (t Thresholds) Validate() error {
	if t.Ideal > 100 || t.Caution <= 0 {
		return errors.New("rating thresholds must be within 1..100")
	}
	if !(t.Ideal > t.Moderate && t.Moderate > t.Caution) {
		return fmt.Errorf("rating thresholds must be descending: ideal %d > moderate %d > caution %d", t.Ideal, t.Moderate, t.Caution)
	}
	return nil
}

// Payload is the classification of the representative recommendation.
type Payload struct {
	Primary models.ActivityRecommendation
	Rating  Rating
	Style   Style
}

// Classifier maps scores to ratings. It is immutable after construction and safe for concurrent use.
type Classifier struct {
	thresholds   Thresholds
	presentation Presentation
}

// NewClassifier validates thresholds and returns a Classifier using the standard presentation table.
func NewClassifier(t Thresholds) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{thresholds: t, presentation: NewPresentation()}, nil
}

// Thresholds returns the configured thresholds.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Presentation returns the style table owned by the classifier.
func (c *Classifier) Presentation() Presentation {
	return c.presentation
}

// RatingFor maps a score to a rating.
func (c *Classifier) RatingFor(score int) Rating {
	switch {
	case score >= c.thresholds.Ideal:
		return Ideal
	case score >= c.thresholds.Moderate:
		return Moderate
	case score >= c.thresholds.Caution:
		return Caution
	default:
		return NotIdeal
	}
}

// Classify picks the representative recommendation and rates it.
// With several recommendations the lowest score wins (worst case); ties keep input order.
func (c *Classifier) Classify(recs []models.ActivityRecommendation) (Payload, error) {
	if len(recs) == 0 {
		return Payload{}, ErrNoRecommendations
	}
	primary := Representative(recs)
	r := c.RatingFor(primary.Score)
	return Payload{Primary: primary, Rating: r, Style: c.presentation.Style(r)}, nil
}

// Representative returns the lowest-scoring recommendation, first one on ties.
// recs must be non-empty.
func Representative(recs []models.ActivityRecommendation) models.ActivityRecommendation {
	primary := recs[0]
	for _, rec := range recs[1:] {
		if rec.Score < primary.Score {
			primary = rec
		}
	}
	return primary
}
