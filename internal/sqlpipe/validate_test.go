package sqlpipe

import "testing"

func findKind(errs []ValidationError, kind ErrorKind) *ValidationError {
	for i := range errs {
		if errs[i].Kind == kind {
			return &errs[i]
		}
	}
	return nil
}

func TestValidate_CleanQuery(t *testing.T) {
	v := NewValidator()
	res := v.Validate("SELECT id, name FROM users WHERE active = true LIMIT 10")
	if !res.IsValid {
		t.Fatalf("IsValid = false, errors = %v", res.Errors)
	}
	if res.Blocking() {
		t.Error("Blocking() = true for clean query")
	}
}

func TestValidate_EmptyQuery(t *testing.T) {
	res := NewValidator().Validate("   ")
	if res.IsValid {
		t.Fatal("IsValid = true for empty query")
	}
	e := findKind(res.Errors, KindSyntax)
	if e == nil || e.Severity != SeverityCritical {
		t.Errorf("expected critical syntax error, got %v", res.Errors)
	}
}

func TestValidate_ForbiddenVerbs(t *testing.T) {
	tests := []string{
		"DROP TABLE users",
		"DELETE FROM users",
		"INSERT INTO users VALUES (1)",
		"UPDATE users SET name = 'x'",
		"TRUNCATE users",
	}
	for _, q := range tests {
		res := NewValidator().Validate(q)
		e := findKind(res.Errors, KindSecurity)
		if e == nil || e.Severity != SeverityCritical {
			t.Errorf("Validate(%q): expected critical security error, got %v", q, res.Errors)
		}
		if !res.Blocking() {
			t.Errorf("Validate(%q): Blocking() = false", q)
		}
	}
}

func TestValidate_VerbInsideIdentifierAllowed(t *testing.T) {
	// "updated_at" must not trip the UPDATE check.
	res := NewValidator().Validate("SELECT updated_at, created_at FROM users LIMIT 5")
	if e := findKind(res.Errors, KindSecurity); e != nil {
		t.Errorf("false positive on identifier: %v", e)
	}
}

func TestValidate_StackedStatements(t *testing.T) {
	res := NewValidator().Validate("SELECT 1; SELECT 2")
	e := findKind(res.Errors, KindSecurity)
	if e == nil || e.Severity != SeverityCritical {
		t.Errorf("expected critical security error for stacked statements, got %v", res.Errors)
	}
}

func TestValidate_Comments(t *testing.T) {
	res := NewValidator().Validate("SELECT id FROM users -- all of them")
	e := findKind(res.Errors, KindSecurity)
	if e == nil || e.Severity != SeverityHigh {
		t.Errorf("expected high security error for comment, got %v", res.Errors)
	}
}

func TestValidate_BacktickDialect(t *testing.T) {
	res := NewValidator().Validate("SELECT `name` FROM users LIMIT 5")
	e := findKind(res.Errors, KindDialect)
	if e == nil || e.Severity != SeverityMedium {
		t.Errorf("expected medium dialect error, got %v", res.Errors)
	}
	if res.Blocking() {
		t.Error("medium dialect finding must not block execution")
	}
}

func TestValidate_UnbalancedParens(t *testing.T) {
	res := NewValidator().Validate("SELECT count(* FROM users")
	e := findKind(res.Errors, KindSyntax)
	if e == nil || e.Severity != SeverityHigh {
		t.Errorf("expected high syntax error, got %v", res.Errors)
	}
}

func TestValidate_MissingLimitWarnsOnly(t *testing.T) {
	res := NewValidator().Validate("SELECT id FROM users")
	if len(res.Warnings) == 0 {
		t.Error("expected performance warning for missing LIMIT")
	}
	if findKind(res.Errors, KindPerformance) != nil {
		t.Error("missing LIMIT must be a warning, not an error")
	}
}

func TestRepair_Backticks(t *testing.T) {
	findings := NewValidator().Validate("SELECT `a` FROM t LIMIT 1").Errors
	repaired, actions := Repair("SELECT `a` FROM t LIMIT 1", findings)
	if repaired != `SELECT "a" FROM t LIMIT 1` {
		t.Errorf("repaired = %q", repaired)
	}
	if len(actions) != 1 || actions[0].Confidence != ConfidenceHigh {
		t.Errorf("actions = %v", actions)
	}
}

func TestRepair_StripComments(t *testing.T) {
	q := "SELECT id FROM t /* hint */ LIMIT 1 -- trailing"
	repaired, actions := Repair(q, NewValidator().Validate(q).Errors)
	if res := NewValidator().Validate(repaired); findKind(res.Errors, KindSecurity) != nil {
		t.Errorf("comments survived repair: %q", repaired)
	}
	if len(actions) == 0 {
		t.Error("no repair actions recorded")
	}
}

func TestRepair_LowConfidenceStillRecorded(t *testing.T) {
	q := "SELECT 'oops FROM t LIMIT 1"
	_, actions := Repair(q, NewValidator().Validate(q).Errors)
	var low bool
	for _, a := range actions {
		if a.Confidence == ConfidenceLow {
			low = true
		}
	}
	if !low {
		t.Error("expected a low-confidence repair for open string literal")
	}
}

func TestApplyRowLimit(t *testing.T) {
	tests := []struct {
		query string
		max   int
		want  string
	}{
		{"SELECT id FROM t", 100, "SELECT id FROM t LIMIT 100"},
		{"SELECT id FROM t LIMIT 10", 100, "SELECT id FROM t LIMIT 10"},
		{"SELECT id FROM t LIMIT 5000", 100, "SELECT id FROM t LIMIT 100"},
		{"select id from t limit 5000", 100, "select id from t limit 100"},
	}
	for _, tt := range tests {
		if got := applyRowLimit(tt.query, tt.max); got != tt.want {
			t.Errorf("applyRowLimit(%q, %d) = %q, want %q", tt.query, tt.max, got, tt.want)
		}
	}
}
