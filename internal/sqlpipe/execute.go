package sqlpipe

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sagekit/sage/internal/postgres"
)

// Executor runs a validated query and returns its result set. The
// pipeline owns safety; executors only run what they are given.
type Executor interface {
	Query(ctx context.Context, sql string) (columns []string, rows [][]any, err error)
}

// PgxExecutor executes queries against a pgx pool or transaction.
type PgxExecutor struct {
	db postgres.DBTX
}

// NewPgxExecutor creates a PgxExecutor.
func NewPgxExecutor(db postgres.DBTX) *PgxExecutor {
	return &PgxExecutor{db: db}
}

// Query implements Executor.
func (e *PgxExecutor) Query(ctx context.Context, sql string) ([]string, [][]any, error) {
	rows, err := e.db.Query(ctx, sql)
	if err != nil {
		return nil, nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var out [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, values)
	}
	return columns, out, rows.Err()
}

// applyRowLimit rewrites query so it returns at most maxRows,
// independent of what the generated query asks for. An existing LIMIT
// above the ceiling is lowered; a missing LIMIT is appended.
func applyRowLimit(query string, maxRows int) string {
	if maxRows <= 0 {
		return query
	}

	if m := limitRe.FindStringSubmatchIndex(query); m != nil {
		// m[2]:m[3] is the numeric capture.
		requested, err := strconv.Atoi(query[m[2]:m[3]])
		if err == nil && requested <= maxRows {
			return query
		}
		return query[:m[2]] + strconv.Itoa(maxRows) + query[m[3]:]
	}

	return query + " LIMIT " + strconv.Itoa(maxRows)
}
