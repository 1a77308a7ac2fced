package patch

import (
	"strings"
	"unicode"
)

// MatchPass identifies which comparison strategy located a pattern
type MatchPass int

const (
	NoMatch MatchPass = iota
	MatchExact
	MatchTrimRight
	MatchTrim
	MatchNormalized
)

func (p MatchPass) String() string {
	switch p {
	case MatchExact:
		return "exact"
	case MatchTrimRight:
		return "rstrip"
	case MatchTrim:
		return "strip"
	case MatchNormalized:
		return "normalized"
	default:
		return "none"
	}
}

// Locator finds where a sequence of expected lines sits in a file.
// A Locator is safe for concurrent use.
type Locator struct {
	normalizer *Normalizer
}

// NewLocator creates a Locator
func NewLocator() *Locator {
	return &Locator{normalizer: NewNormalizer()}
}

// Find returns the index of the first line of pattern in lines at or after start,
// or -1 when no pass matches
func (l *Locator) Find(lines, pattern []string, start int, eof bool) int {
	idx, _ := l.FindMatch(lines, pattern, start, eof)
	return idx
}

// FindMatch is Find that also reports the pass that matched.
// Passes go from strict to loose: exact, trailing whitespace ignored,
// surrounding whitespace ignored, then Unicode punctuation normalized.
func (l *Locator) FindMatch(lines, pattern []string, start int, eof bool) (int, MatchPass) {
	if len(pattern) == 0 {
		return -1, NoMatch
	}
	if start < 0 {
		start = 0
	}

	passes := []struct {
		pass  MatchPass
		equal func(a, b string) bool
	}{
		{MatchExact, func(a, b string) bool { return a == b }},
		{MatchTrimRight, func(a, b string) bool { return trimRight(a) == trimRight(b) }},
		{MatchTrim, func(a, b string) bool { return strings.TrimSpace(a) == strings.TrimSpace(b) }},
		{MatchNormalized, func(a, b string) bool {
			return l.normalizer.Normalize(strings.TrimSpace(a)) == l.normalizer.Normalize(strings.TrimSpace(b))
		}},
	}

	for _, p := range passes {
		if idx := seek(lines, pattern, start, eof, p.equal); idx >= 0 {
			return idx, p.pass
		}
	}
	return -1, NoMatch
}

// seek runs one pass. With eof set the end-of-file offset is tried before
// the forward scan.
func seek(lines, pattern []string, start int, eof bool, equal func(a, b string) bool) int {
	last := len(lines) - len(pattern)
	if eof && last >= start && matchesAt(lines, pattern, last, equal) {
		return last
	}
	for i := start; i <= last; i++ {
		if matchesAt(lines, pattern, i, equal) {
			return i
		}
	}
	return -1
}

func matchesAt(lines, pattern []string, at int, equal func(a, b string) bool) bool {
	for j, p := range pattern {
		if !equal(lines[at+j], p) {
			return false
		}
	}
	return true
}

func trimRight(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
