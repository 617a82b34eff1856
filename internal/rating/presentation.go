package rating

import "strings"

// Style is the presentation metadata for one rating.
type Style struct {
	Emoji    string
	IconName string
	CSSClass string
}

// Fallback style for labels that do not map to a rating.
var unknownStyle = Style{Emoji: "📊", IconName: "info", CSSClass: "unknown"}

// Presentation is an immutable rating→style table. Build it once with NewPresentation.
type Presentation struct {
	styles map[Rating]Style
}

// NewPresentation returns the standard table.
func NewPresentation() Presentation {
	return Presentation{styles: map[Rating]Style{
		Ideal:    {Emoji: "✅", IconName: "check-circle", CSSClass: "ideal"},
		Moderate: {Emoji: "⚠️", IconName: "alert-triangle", CSSClass: "moderate"},
		Caution:  {Emoji: "⚠️", IconName: "alert-triangle", CSSClass: "caution"},
		NotIdeal: {Emoji: "❌", IconName: "x-circle", CSSClass: "not-ideal"},
	}}
}

// Style returns the style for r, or the generic info style when r has none.
func (p Presentation) Style(r Rating) Style {
	if s, ok := p.styles[r]; ok {
		return s
	}
	return unknownStyle
}

// Lookup resolves a free-form label to a style. Unmapped labels get the generic
// info style with a class derived from the label.
func (p Presentation) Lookup(label string) Style {
	if r := Parse(label); r != Unknown {
		return p.Style(r)
	}
	s := unknownStyle
	if cls := cssClass(label); cls != "" {
		s.CSSClass = cls
	}
	return s
}

// cssClass lower-cases label and joins words with hyphens.
func cssClass(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), "-")
}
