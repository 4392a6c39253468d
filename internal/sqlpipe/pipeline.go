package sqlpipe

import (
	"context"
	"log/slog"
	"strings"
)

// Config contains the pipeline's construction parameters.
type Config struct {
	Generator   Generator // nil = always use DefaultQuery
	Executor    Executor  // required
	Logger      *slog.Logger
	Prompt      string // system prompt forwarded to the generator
	MaxAttempts int    // generate/repair cycles; default 3
	RowLimit    int    // executor row ceiling; default 100
}

// Pipeline drives the generate → validate → repair → retry state
// machine for one data question at a time.
//
// Pipeline is stateless across requests and safe for concurrent use.
type Pipeline struct {
	gen         Generator
	validator   *Validator
	exec        Executor
	prompt      string
	maxAttempts int
	rowLimit    int
	logger      *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	rowLimit := cfg.RowLimit
	if rowLimit <= 0 {
		rowLimit = 100
	}
	return &Pipeline{
		gen:         cfg.Generator,
		validator:   NewValidator(),
		exec:        cfg.Executor,
		prompt:      cfg.Prompt,
		maxAttempts: maxAttempts,
		rowLimit:    rowLimit,
		logger:      logger,
	}
}

// Run answers a data question. It always returns a result: generator
// unavailability falls back to the default query, and exhausting the
// attempt budget yields Success=false with the final findings and the
// attempt count, never an error.
func (p *Pipeline) Run(ctx context.Context, question string) ExecutionResult {
	var attempts []Attempt
	var lastErrors []ValidationError

	for number := 1; number <= p.maxAttempts; number++ {
		query, fallback := p.generate(ctx, question, attempts, lastErrors)

		attempt := Attempt{Number: number, Query: query}
		attempt.Validation = p.validator.Validate(query)

		if !attempt.Validation.IsValid {
			repaired, actions := Repair(query, attempt.Validation.Errors)
			if len(actions) > 0 {
				// Every repair is re-validated before execution,
				// including low-confidence ones.
				attempt.Repairs = actions
				attempt.Query = repaired
				attempt.Validation = p.validator.Validate(repaired)
			}
		}

		attempts = append(attempts, attempt)
		lastErrors = attempt.Validation.Errors

		if attempt.Validation.Blocking() {
			p.logger.Debug("attempt blocked by validation",
				"attempt", number,
				"errors", len(attempt.Validation.Errors))
			continue
		}

		return p.execute(ctx, attempt, fallback, number)
	}

	p.logger.Warn("sql pipeline exhausted attempts",
		"attempts", p.maxAttempts,
		"final_errors", len(lastErrors))

	return ExecutionResult{
		Success:              false,
		RegenerationAttempts: len(attempts),
		Errors:               lastErrors,
	}
}

// generate produces the attempt's candidate query. Generator absence,
// failure, or an empty result all fall back to DefaultQuery.
func (p *Pipeline) generate(ctx context.Context, question string, attempts []Attempt, lastErrors []ValidationError) (query string, fallback bool) {
	if p.gen == nil {
		return DefaultQuery, true
	}

	generated, err := p.gen.Generate(ctx, GenerateRequest{
		Prompt:           p.prompt,
		UserQuestion:     question,
		PreviousAttempts: attempts,
		ValidationErrors: lastErrors,
	})
	if err != nil {
		p.logger.Warn("sql generator unavailable, using default query", "error", err)
		return DefaultQuery, true
	}
	if strings.TrimSpace(generated) == "" {
		return DefaultQuery, true
	}
	return generated, false
}

func (p *Pipeline) execute(ctx context.Context, attempt Attempt, fallback bool, number int) ExecutionResult {
	bounded := applyRowLimit(attempt.Query, p.rowLimit)

	columns, rows, err := p.exec.Query(ctx, bounded)
	if err != nil {
		p.logger.Warn("sql execution failed", "attempt", number, "error", err)
		return ExecutionResult{
			Success:              false,
			Query:                bounded,
			FallbackUsed:         fallback,
			RegenerationAttempts: number,
			ExecError:            err.Error(),
		}
	}

	truncated := len(rows) >= p.rowLimit
	p.logger.Debug("sql executed",
		"attempt", number,
		"rows", len(rows),
		"truncated", truncated,
		"fallback", fallback)

	return ExecutionResult{
		Success:              true,
		Query:                bounded,
		Columns:              columns,
		Rows:                 rows,
		RowCount:             len(rows),
		Truncated:            truncated,
		FallbackUsed:         fallback,
		RegenerationAttempts: number,
	}
}
