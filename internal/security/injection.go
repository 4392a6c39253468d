// Package security screens externally supplied text before it enters
// the retrieval corpus. Ingested knowledge is later spliced verbatim
// into generation prompts, so it is the main injection vector.
package security

import (
	"regexp"
	"strings"
	"unicode"
)

// Finding reports the outcome of screening one piece of text.
type Finding struct {
	Clean    bool
	Patterns []string // matched pattern expressions, empty when clean
}

// Screen detects common prompt-injection phrasings in text destined
// for the context window. Pattern matching is best-effort: it catches
// the obvious attempts, not a determined adversary.
//
// Screen is safe for concurrent use.
type Screen struct {
	patterns []*regexp.Regexp
}

var defaultPatterns = []string{
	// Instruction override
	`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(previous|above|prior)\s+(instructions?|prompts?|rules?|context)`,

	// Persona replacement
	`(?i)^(pretend|act|behave|imagine)\s+(you\s+are|to\s+be|as\s+if|like)`,
	`(?i)^you\s+are\s+now\s+a`,
	`(?i)^from\s+now\s+on,?\s+you\s+(are|will|must)`,

	// Injected directives
	`(?i)^\s*(important|critical|urgent|system)\s*:\s*`,
	`(?i)^new\s+(instruction|task|rule)\s*:`,
	`(?i)^admin\s*(mode|override|command)\s*:`,

	// Escaping the context frame
	`(?i)</?(system|instruction|prompt)>`,
	`(?i)\]\s*\[\s*(system|assistant|instruction)`,

	// Safety bypass
	`(?i)do\s+anything\s+now`,
	`(?i)jailbreak`,
	`(?i)bypass\s+(safety|filter|restrictions?)`,
}

// NewScreen builds a Screen with the default pattern set.
func NewScreen() *Screen {
	compiled := make([]*regexp.Regexp, 0, len(defaultPatterns))
	for _, p := range defaultPatterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return &Screen{patterns: compiled}
}

// Check screens text and reports every matched pattern.
func (s *Screen) Check(text string) Finding {
	normalized := normalize(text)
	var matched []string
	for _, re := range s.patterns {
		if re.MatchString(normalized) {
			matched = append(matched, re.String())
		}
	}
	return Finding{Clean: len(matched) == 0, Patterns: matched}
}

// Clean reports whether text passed screening.
func (s *Screen) Clean(text string) bool {
	return s.Check(text).Clean
}

// normalize strips zero-width and combining characters that would
// otherwise split a pattern, and collapses whitespace runs.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
