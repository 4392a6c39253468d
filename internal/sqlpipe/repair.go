package sqlpipe

import (
	"regexp"
	"strings"
)

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingSemiRe = regexp.MustCompile(`;\s*$`)
)

// Repair applies mechanical fixes to a query that failed validation and
// returns the repaired query plus the actions taken. Every repaired
// query is re-validated before execution, including low-confidence
// repairs, so Repair itself never judges safety.
func Repair(query string, findings []ValidationError) (string, []RepairAction) {
	var actions []RepairAction
	repaired := query

	for _, f := range findings {
		switch {
		case f.Kind == KindSecurity && strings.Contains(f.Message, "comment"):
			next := blockCommentRe.ReplaceAllString(repaired, " ")
			next = lineCommentRe.ReplaceAllString(next, "")
			if next != repaired {
				actions = append(actions, RepairAction{
					Type:        "strip_comments",
					Original:    repaired,
					Replacement: next,
					Confidence:  ConfidenceHigh,
				})
				repaired = next
			}

		case f.Kind == KindSecurity && strings.Contains(f.Message, "stacked"):
			// Keep only the first statement.
			if idx := strings.Index(repaired, ";"); idx >= 0 {
				next := strings.TrimSpace(repaired[:idx])
				actions = append(actions, RepairAction{
					Type:        "drop_stacked_statements",
					Original:    repaired,
					Replacement: next,
					Confidence:  ConfidenceMedium,
				})
				repaired = next
			}

		case f.Kind == KindDialect && strings.Contains(f.Message, "backtick"):
			next := strings.ReplaceAll(repaired, "`", `"`)
			actions = append(actions, RepairAction{
				Type:        "backticks_to_double_quotes",
				Original:    repaired,
				Replacement: next,
				Confidence:  ConfidenceHigh,
			})
			repaired = next

		case f.Kind == KindSyntax && strings.Contains(f.Message, "string literal"):
			// Closing an open literal is a guess; mark it low confidence
			// and let re-validation decide.
			next := repaired + "'"
			actions = append(actions, RepairAction{
				Type:        "close_string_literal",
				Original:    repaired,
				Replacement: next,
				Confidence:  ConfidenceLow,
			})
			repaired = next

		case f.Kind == KindPerformance && strings.Contains(f.Message, "CROSS JOIN"):
			next := regexp.MustCompile(`(?i)\bcross join\b`).ReplaceAllString(repaired, "JOIN")
			actions = append(actions, RepairAction{
				Type:        "cross_join_to_join",
				Original:    repaired,
				Replacement: next,
				Confidence:  ConfidenceLow,
			})
			repaired = next
		}
	}

	// Trailing semicolons are harmless to users but break LIMIT
	// injection in the executor, so always strip them.
	if trailingSemiRe.MatchString(repaired) {
		next := trailingSemiRe.ReplaceAllString(repaired, "")
		actions = append(actions, RepairAction{
			Type:        "strip_trailing_semicolon",
			Original:    repaired,
			Replacement: next,
			Confidence:  ConfidenceHigh,
		})
		repaired = next
	}

	return strings.TrimSpace(repaired), actions
}
