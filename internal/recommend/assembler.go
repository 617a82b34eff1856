package recommend

import (
	"sort"
	"strings"
	"time"

	"github.com/kjstillabower/activity-advisor-service/internal/models"
	"github.com/kjstillabower/activity-advisor-service/internal/rating"
)

// DefaultAlternativeMinScore is the lowest score an activity needs to be offered as an alternative.
const DefaultAlternativeMinScore = 60

// Assembler builds the response payload from a classified recommendation.
type Assembler struct {
	minAlternativeScore int
}

// NewAssembler returns an Assembler. A non-positive minAlternativeScore uses DefaultAlternativeMinScore.
func NewAssembler(minAlternativeScore int) *Assembler {
	if minAlternativeScore <= 0 {
		minAlternativeScore = DefaultAlternativeMinScore
	}
	return &Assembler{minAlternativeScore: minAlternativeScore}
}

// Assemble builds a RecommendationResponse for payload. candidates holds every scored
// activity (primary included) and is only read.
func (a *Assembler) Assemble(loc models.Location, date time.Time, weather models.WeatherSnapshot, payload rating.Payload, candidates []models.ActivityRecommendation) models.RecommendationResponse {
	primary := payload.Primary
	label := payload.Rating.Label()

	scores := make([]models.ActivityScore, 0, len(candidates))
	for _, c := range candidates {
		scores = append(scores, models.ActivityScore{Activity: c.Activity, Score: c.Score})
	}

	return models.RecommendationResponse{
		Location: loc,
		Date:     date.Format(time.DateOnly),
		Weather:  weather,
		Recommendation: models.Recommendation{
			Activity:     primary.Activity,
			Score:        primary.Score,
			Rating:       label,
			OneLiner:     OneLiner(label, primary),
			Why:          cloneStrings(primary.Reasons),
			Warnings:     cloneStrings(primary.Warnings),
			Alternatives: a.Alternatives(primary.Activity, candidates),
			Icon:         payload.Style.Emoji,
			IconName:     payload.Style.IconName,
			CSSClass:     payload.Style.CSSClass,
			Scores:       scores,
		},
	}
}

// Alternatives returns the activities other than primary scoring at least the
// configured minimum, best first. Equal scores keep candidate order.
func (a *Assembler) Alternatives(primary string, candidates []models.ActivityRecommendation) []string {
	picked := make([]models.ActivityRecommendation, 0, len(candidates))
	for _, c := range candidates {
		if c.Activity == primary || c.Score < a.minAlternativeScore {
			continue
		}
		picked = append(picked, c)
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Score > picked[j].Score })

	out := make([]string, 0, len(picked))
	for _, c := range picked {
		out = append(out, c.Activity)
	}
	return out
}

// OneLiner summarizes a recommendation in one sentence, led by its top reason.
func OneLiner(label string, rec models.ActivityRecommendation) string {
	if len(rec.Reasons) > 0 {
		reason := strings.TrimRight(rec.Reasons[0], ".!")
		return label + " for " + rec.Activity + ": " + reason + "."
	}
	return label + " for " + rec.Activity + " based on the current forecast."
}

// cloneStrings copies s, returning an empty non-nil slice for nil input so JSON renders [].
func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
