package sqlpipe

import "errors"

// ErrUnsafeQuery classifies a pipeline outcome where validation still
// found critical or high findings after the repair budget was spent.
// Run never returns it; HTTP layers use it to label the taxonomy.
var ErrUnsafeQuery = errors.New("sql query unsafe after max repair attempts")

// ErrorKind classifies a validation finding.
type ErrorKind string

// Validation finding kinds.
const (
	KindSyntax      ErrorKind = "syntax"
	KindDialect     ErrorKind = "dialect"
	KindSecurity    ErrorKind = "security"
	KindPerformance ErrorKind = "performance"
)

// Severity ranks a validation finding.
type Severity string

// Severities, highest first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ValidationError is a finding that may block execution.
type ValidationError struct {
	Kind     ErrorKind `json:"kind"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// ValidationWarning is an advisory finding that never blocks execution.
type ValidationWarning struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ValidationResult is the outcome of static query checks.
type ValidationResult struct {
	IsValid  bool                `json:"is_valid"`
	Errors   []ValidationError   `json:"errors,omitempty"`
	Warnings []ValidationWarning `json:"warnings,omitempty"`
}

// Blocking reports whether any finding forbids execution.
// A query with any critical or high error is never executed.
func (r ValidationResult) Blocking() bool {
	for _, e := range r.Errors {
		if e.Severity == SeverityCritical || e.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Confidence grades how certain a mechanical repair is.
type Confidence string

// Repair confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// RepairAction is one mechanical, confidence-scored edit applied to an
// invalid generated query before re-validation.
type RepairAction struct {
	Type        string     `json:"type"`
	Original    string     `json:"original"`
	Replacement string     `json:"replacement"`
	Confidence  Confidence `json:"confidence"`
}

// Attempt records one generate/validate/repair cycle. Attempt N+1 only
// occurs when attempt N failed validation and N < MaxAttempts.
type Attempt struct {
	Number     int              `json:"number"`
	Query      string           `json:"query"`
	Validation ValidationResult `json:"validation"`
	Repairs    []RepairAction   `json:"repairs,omitempty"`
}

// ExecutionResult is the terminal outcome of a pipeline run.
type ExecutionResult struct {
	Success              bool              `json:"success"`
	Query                string            `json:"query,omitempty"`
	Columns              []string          `json:"columns,omitempty"`
	Rows                 [][]any           `json:"rows,omitempty"`
	RowCount             int               `json:"row_count"`
	Truncated            bool              `json:"truncated"`
	FallbackUsed         bool              `json:"fallback_used"`
	RegenerationAttempts int               `json:"regeneration_attempts"`
	Errors               []ValidationError `json:"errors,omitempty"`
	ExecError            string            `json:"exec_error,omitempty"`
}
