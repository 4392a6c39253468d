// Package sqlpipe turns a natural-language data question into a safe,
// executable SQL query through a generate → validate → repair → retry
// loop.
//
// The generator is a strategy passed at construction time; when it is
// unavailable or declines, a deterministic default query is used so the
// request never fails solely because the generator is down. Validation
// findings are classified by kind and severity; any critical or high
// finding blocks execution. Mechanical repairs are re-validated before
// execution regardless of their confidence. Exhausting the attempt
// budget produces an unsuccessful ExecutionResult, never an error
// surfaced past this package.
package sqlpipe
