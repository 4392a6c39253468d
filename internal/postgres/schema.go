package postgres

import (
	"context"
	"fmt"
	"strings"
)

const describeSchemaSQL = `SELECT table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = 'public'
	ORDER BY table_name, ordinal_position`

// DescribeSchema renders the public tables as one "table(col type, ...)"
// line each, suitable for inclusion in a query-generation prompt.
func (q *Queries) DescribeSchema(ctx context.Context) (string, error) {
	rows, err := q.db.Query(ctx, describeSchemaSQL)
	if err != nil {
		return "", fmt.Errorf("describing schema: %w", err)
	}
	defer rows.Close()

	var (
		sb      strings.Builder
		current string
		cols    []string
	)
	flush := func() {
		if current == "" {
			return
		}
		fmt.Fprintf(&sb, "%s(%s)\n", current, strings.Join(cols, ", "))
	}
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return "", fmt.Errorf("scanning schema row: %w", err)
		}
		if table != current {
			flush()
			current = table
			cols = cols[:0]
		}
		cols = append(cols, column+" "+dataType)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading schema rows: %w", err)
	}
	flush()
	return sb.String(), nil
}
