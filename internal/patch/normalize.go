package patch

import "strings"

// Normalizer maps typographic punctuation to its ASCII equivalent so that
// text copied through editors or chat clients still compares equal
type Normalizer struct {
	r *strings.Replacer
}

// NewNormalizer creates a Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{
		r: strings.NewReplacer(
			// single quotes
			"\u2018", "'", "\u2019", "'", "\u201A", "'", "\u201B", "'",
			// double quotes
			"\u201C", `"`, "\u201D", `"`, "\u201E", `"`, "\u201F", `"`,
			// hyphen, non-breaking hyphen, figure dash, en dash, em dash, horizontal bar
			"\u2010", "-", "\u2011", "-", "\u2012", "-", "\u2013", "-", "\u2014", "-", "\u2015", "-",
			// ellipsis
			"\u2026", "...",
			// no-break space
			"\u00A0", " ",
		),
	}
}

// Normalize returns s with typographic punctuation replaced
func (n *Normalizer) Normalize(s string) string {
	return n.r.Replace(s)
}
