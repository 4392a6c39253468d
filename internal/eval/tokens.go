package eval

import (
	"regexp"
	"strings"
)

var (
	nonAlphaNumRe = regexp.MustCompile(`[^a-z0-9]+`)
	spacesRe      = regexp.MustCompile(`\s+`)
)

// tokenize lowercases, strips punctuation, and splits on whitespace.
// All text metrics share this normalization so their scores compare.
func tokenize(text string) []string {
	text = nonAlphaNumRe.ReplaceAllString(strings.ToLower(text), " ")
	parts := spacesRe.Split(strings.TrimSpace(text), -1)
	tokens := make([]string, 0, len(parts))
	for _, t := range parts {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// tokenSet returns the distinct tokens of text.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokenize(text) {
		set[t] = true
	}
	return set
}

// overlapRatio reports what fraction of want's distinct tokens appear
// in have.
func overlapRatio(want, have map[string]bool) float64 {
	if len(want) == 0 {
		return 0
	}
	hit := 0
	for t := range want {
		if have[t] {
			hit++
		}
	}
	return float64(hit) / float64(len(want))
}

// clamp01 bounds v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
