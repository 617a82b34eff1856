// Package activity scores outdoor activities against a weather snapshot.
//
// Activities form a closed set of Kinds. Identifiers the engine does not know
// (e.g. sent by a newer client) parse to KindUnknown and are scored by the
// neutral fallback evaluator instead of failing.
package activity

import "strings"

// Kind identifies a built-in activity.
type Kind int

const (
	KindUnknown Kind = iota
	KindHiking
	KindSkiing
	KindCamping
	KindCycling
)

var kindNames = map[Kind]string{
	KindHiking:  "hiking",
	KindSkiing:  "skiing",
	KindCamping: "camping",
	KindCycling: "cycling",
}

// builtinOrder is the display order for catalogs.
var builtinOrder = []Kind{KindHiking, KindSkiing, KindCamping, KindCycling}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Activity is a parsed activity identifier. For KindUnknown, ID carries the
// normalized identifier supplied by the client so it can be echoed back.
type Activity struct {
	Kind Kind
	ID   string
}

// Parse normalizes id (trim, lower-case) and resolves it to a Kind.
func Parse(id string) Activity {
	norm := strings.ToLower(strings.TrimSpace(id))
	for k, name := range kindNames {
		if name == norm {
			return Activity{Kind: k, ID: norm}
		}
	}
	return Activity{Kind: KindUnknown, ID: norm}
}

// ParseAll parses ids, dropping blanks and duplicates while keeping first-seen order.
func ParseAll(ids []string) []Activity {
	out := make([]Activity, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		a := Parse(id)
		if a.ID == "" {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Known reports whether a is one of the built-in activities.
func (a Activity) Known() bool {
	return a.Kind != KindUnknown
}

func (a Activity) String() string {
	return a.ID
}

// Builtins returns the built-in activities in display order.
func Builtins() []Activity {
	out := make([]Activity, 0, len(builtinOrder))
	for _, k := range builtinOrder {
		out = append(out, Activity{Kind: k, ID: k.String()})
	}
	return out
}

var activityEmojis = map[Kind]string{
	KindHiking:  "🥾",
	KindSkiing:  "⛷️",
	KindCamping: "⛺",
	KindCycling: "🚴",
}

// Emoji returns the display glyph for a; unknown activities get a generic arrow.
func (a Activity) Emoji() string {
	if e, ok := activityEmojis[a.Kind]; ok {
		return e
	}
	return "➡️"
}
