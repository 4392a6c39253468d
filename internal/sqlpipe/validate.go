package sqlpipe

import (
	"regexp"
	"strings"
)

// Validator runs static checks over a generated query. It is stateless
// and safe for concurrent use.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Write/DDL verbs that a read-only analytics query must never contain.
var forbiddenVerbs = []string{
	"insert", "update", "delete", "drop", "alter", "truncate",
	"create", "grant", "revoke", "copy", "vacuum",
}

var (
	// Stacked statements: anything after a non-trailing semicolon.
	stackedStmtRe = regexp.MustCompile(`;\s*\S`)

	// Classic tautology injection shapes.
	tautologyRe = regexp.MustCompile(`(?i)\b(or|and)\s+'?\w*'?\s*=\s*'?\w*'?\s*(--|$|;)`)

	limitRe = regexp.MustCompile(`(?i)\blimit\s+(\d+)`)
)

// Validate classifies findings by kind and severity. An empty query or
// one that does not read data is a critical syntax finding.
func (v *Validator) Validate(query string) ValidationResult {
	var res ValidationResult

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindSyntax, Severity: SeverityCritical, Message: "empty query",
		})
		res.IsValid = false
		return res
	}

	lower := strings.ToLower(trimmed)

	// Syntax: statement shape and balance.
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		res.Errors = append(res.Errors, ValidationError{
			Kind:     KindSyntax,
			Severity: SeverityCritical,
			Message:  "query must start with SELECT or WITH",
		})
	}
	if !balanced(trimmed, '(', ')') {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindSyntax, Severity: SeverityHigh, Message: "unbalanced parentheses",
		})
	}
	if strings.Count(trimmed, "'")%2 != 0 {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindSyntax, Severity: SeverityHigh, Message: "unbalanced string literal quotes",
		})
	}

	// Security: write verbs, stacked statements, comments, tautologies.
	for _, verb := range forbiddenVerbs {
		if containsWord(lower, verb) {
			res.Errors = append(res.Errors, ValidationError{
				Kind:     KindSecurity,
				Severity: SeverityCritical,
				Message:  "forbidden statement verb: " + strings.ToUpper(verb),
			})
		}
	}
	if stackedStmtRe.MatchString(trimmed) {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindSecurity, Severity: SeverityCritical, Message: "stacked statements are not allowed",
		})
	}
	if strings.Contains(trimmed, "--") || strings.Contains(trimmed, "/*") {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindSecurity, Severity: SeverityHigh, Message: "comment sequences are not allowed in generated queries",
		})
	}
	if tautologyRe.MatchString(trimmed) {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindSecurity, Severity: SeverityHigh, Message: "tautological predicate",
		})
	}

	// Dialect: MySQL-isms that PostgreSQL rejects.
	if strings.Contains(trimmed, "`") {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindDialect, Severity: SeverityMedium, Message: "backtick identifier quoting is not PostgreSQL",
		})
	}
	if m := limitRe.FindStringSubmatch(lower); m == nil {
		// Performance advisory only; the executor enforces a ceiling anyway.
		res.Warnings = append(res.Warnings, ValidationWarning{
			Kind: KindPerformance, Message: "no LIMIT clause; executor row ceiling applies",
		})
	}
	if strings.Contains(lower, "select *") {
		res.Warnings = append(res.Warnings, ValidationWarning{
			Kind: KindPerformance, Message: "SELECT * retrieves all columns",
		})
	}
	if strings.Contains(lower, "cross join") {
		res.Errors = append(res.Errors, ValidationError{
			Kind: KindPerformance, Severity: SeverityMedium, Message: "CROSS JOIN may produce a cartesian product",
		})
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// containsWord reports whether lower contains word bounded by
// non-identifier characters, so "updated_at" does not trip "update".
func containsWord(lower, word string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isIdentChar(lower[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(lower) || !isIdentChar(lower[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(word)
	}
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func balanced(s string, opening, closing rune) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case opening:
			depth++
		case closing:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
