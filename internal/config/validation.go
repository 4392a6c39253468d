package config

import "fmt"

// Validate checks all configuration values and fails fast with a sentinel
// error wrapped with detail. Called by Load; exposed for tests and for
// callers that build a Config by hand.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name must not be empty", ErrInvalidModelName)
	}
	if c.JudgeModel == "" {
		return fmt.Errorf("%w: judge_model must not be empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f not in [0, 2]", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 128000 {
		return fmt.Errorf("%w: %d not in [1, 128000]", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: postgres_host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d not in [1, 65535]", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: %d not in [1, 50]", ErrInvalidTopK, c.TopK)
	}
	if c.RerankThreshold < 0 || c.RerankThreshold > 1 {
		return fmt.Errorf("%w: %.2f not in [0, 1]", ErrInvalidThreshold, c.RerankThreshold)
	}
	if c.ContextBudget < 1000 || c.ContextBudget > 1000000 {
		return fmt.Errorf("%w: %d not in [1000, 1000000]", ErrInvalidContextBudget, c.ContextBudget)
	}

	if c.SQLMaxAttempts < 1 || c.SQLMaxAttempts > 10 {
		return fmt.Errorf("%w: %d not in [1, 10]", ErrInvalidMaxAttempts, c.SQLMaxAttempts)
	}
	if c.SQLRowLimit < 1 || c.SQLRowLimit > 10000 {
		return fmt.Errorf("%w: %d not in [1, 10000]", ErrInvalidRowLimit, c.SQLRowLimit)
	}

	// Markers must be a distinct, non-empty pair; the stream parser cannot
	// recognize a region otherwise.
	if c.ReasoningOpen == "" || c.ReasoningClose == "" || c.ReasoningOpen == c.ReasoningClose {
		return fmt.Errorf("%w: open=%q close=%q", ErrInvalidReasoningMarkers, c.ReasoningOpen, c.ReasoningClose)
	}

	return nil
}
