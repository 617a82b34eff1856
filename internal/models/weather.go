package models

import (
	"fmt"
	"math"
	"time"
)

// Snapshot sources reported to clients.
const (
	SourceLive     = "live"
	SourceCache    = "cache"
	SourceStale    = "stale"
	SourceFallback = "fallback"
)

// Location is a point on the map. Only echoed back in responses and used as a cache key.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Key returns the location rounded to two decimals (~1km), used to share cache entries between nearby requests.
func (l Location) Key() string {
	return fmt.Sprintf("%.2f,%.2f", round2(l.Latitude), round2(l.Longitude))
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // avoid "-0.00"
	}
	return r
}

// WeatherSnapshot is normalized weather for one place and time.
// Units: temperature °F, precipitation is probability in percent (0-100), snowfall inches,
// wind mph, visibility miles, humidity and cloud cover percent.
// All scoring fields are always populated; the weather client defaults missing upstream values.
type WeatherSnapshot struct {
	Temperature   float64 `json:"temperature"`
	Precipitation float64 `json:"precipitation"`
	Snowfall      float64 `json:"snowfall"`
	WindSpeed     float64 `json:"wind_speed"`
	Visibility    float64 `json:"visibility"`
	Humidity      float64 `json:"humidity"`
	CloudCover    float64 `json:"cloud_cover"`

	Description  string    `json:"description,omitempty"`
	LocationName string    `json:"location_name,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
	Source       string    `json:"source,omitempty"`

	// OutsideHorizon is set when the forecast has no entry on the requested date and
	// the nearest one (first or last) was used instead.
	OutsideHorizon bool `json:"outside_horizon,omitempty"`
}

// WithSource returns a copy of s tagged with the given source.
func (s WeatherSnapshot) WithSource(source string) WeatherSnapshot {
	s.Source = source
	return s
}

// FallbackSnapshot is served when upstream is unavailable and fallback is enabled.
// Mild, clear conditions; clients can tell it apart by Source.
func FallbackSnapshot(at time.Time) WeatherSnapshot {
	return WeatherSnapshot{
		Temperature:   72,
		Precipitation: 0,
		Snowfall:      0,
		WindSpeed:     3,
		Visibility:    6.2,
		Humidity:      50,
		CloudCover:    20,
		Description:   "clear sky",
		LocationName:  "Unknown",
		ObservedAt:    at,
		Source:        SourceFallback,
	}
}
