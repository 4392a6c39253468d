package sqlpipe

import "context"

// DefaultQuery is the deterministic fallback used when the generator is
// unavailable or declines to produce a query. It is read-only, cheap,
// and valid on any PostgreSQL database.
const DefaultQuery = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`

// GenerateRequest carries everything a generator may use: the system
// prompt, the user's question, and the failure context from earlier
// attempts so the model can avoid repeating mistakes.
type GenerateRequest struct {
	Prompt           string
	UserQuestion     string
	PreviousAttempts []Attempt
	ValidationErrors []ValidationError
}

// Generator is the NL→SQL strategy supplied at pipeline construction.
// Returning an empty query (with nil error) signals "use the default
// query"; it is never an error. Implementations live outside this
// package (an LLM provider adapter, a rule table, a test stub).
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}
