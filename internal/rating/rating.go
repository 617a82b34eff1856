// Package rating turns activity scores into a human-facing rating with presentation metadata.
package rating

import "strings"

// Rating is the suitability category derived from a score.
type Rating int

// The classifier only ever produces these four. Unknown is returned by Parse for labels it cannot map.
const (
	Unknown Rating = iota
	Ideal
	Moderate
	Caution
	NotIdeal
)

var labels = map[Rating]string{
	Ideal:    "Ideal",
	Moderate: "Moderate",
	Caution:  "Caution",
	NotIdeal: "Not Ideal",
}

// Label returns the display label.
func (r Rating) Label() string {
	if l, ok := labels[r]; ok {
		return l
	}
	return "Unknown"
}

func (r Rating) String() string {
	return r.Label()
}

// synonyms maps normalized labels seen in older clients onto the canonical set.
var synonyms = map[string]Rating{
	"IDEAL":            Ideal,
	"MODERATE":         Moderate,
	"CAUTION":          Caution,
	"EXERCISE_CAUTION": Caution,
	"NOT_IDEAL":        NotIdeal,
	"NO_GO":            NotIdeal,
	"NOGO":             NotIdeal,
}

// Parse maps a free-form label ("Not Ideal", "exercise caution", "No-Go") to a Rating.
func Parse(label string) Rating {
	norm := strings.ToUpper(strings.TrimSpace(label))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	if r, ok := synonyms[norm]; ok {
		return r
	}
	return Unknown
}
