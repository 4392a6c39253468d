package eval

import (
	"context"
	"time"
)

// Retry policy for external calls (generation, judge). A timeout counts
// as a transient failure like any other error.
const (
	maxExternalAttempts = 3
	defaultBaseDelay    = 500 * time.Millisecond
)

// withRetry runs fn up to maxExternalAttempts times with linear-growth
// backoff (baseDelay × attempt). It returns the last error when all
// attempts fail, and stops early when ctx is done.
func withRetry(ctx context.Context, baseDelay time.Duration, fn func() error) error {
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}

	var lastErr error
	for attempt := 1; attempt <= maxExternalAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == maxExternalAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}
