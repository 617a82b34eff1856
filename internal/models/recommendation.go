package models

// ActivityRecommendation is the outcome of evaluating one activity against a snapshot.
// Reasons and Warnings keep evaluation order; Score is always within [0,100].
type ActivityRecommendation struct {
	Activity string   `json:"activity"`
	Score    int      `json:"score"`
	Reasons  []string `json:"reasons"`
	Warnings []string `json:"warnings"`
}

// ActivityScore is the compact per-activity line included in responses.
type ActivityScore struct {
	Activity string `json:"activity"`
	Score    int    `json:"score"`
}

// Recommendation is the rating payload rendered by the display layer.
type Recommendation struct {
	Activity     string          `json:"activity"`
	Score        int             `json:"score"`
	Rating       string          `json:"rating"`
	OneLiner     string          `json:"one_liner"`
	Why          []string        `json:"why"`
	Warnings     []string        `json:"warnings"`
	Alternatives []string        `json:"alternatives"`
	Icon         string          `json:"icon"`
	IconName     string          `json:"icon_name"`
	CSSClass     string          `json:"css_class"`
	Scores       []ActivityScore `json:"scores"`
}

// RecommendationResponse is built once per request and not modified afterwards.
type RecommendationResponse struct {
	Location       Location        `json:"location"`
	Date           string          `json:"date"`
	Weather        WeatherSnapshot `json:"weather"`
	Recommendation Recommendation  `json:"recommendation"`
}
