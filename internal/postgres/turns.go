package postgres

import (
	"context"
	"time"
)

// AppendTurnParams are the arguments for AppendTurn.
type AppendTurnParams struct {
	Namespace string
	Speaker   string
	Content   string
}

// TurnRow is one stored conversation turn.
// Seq is the logical timestamp: assigned by the database, monotonically
// increasing, never reused, so ordering within a namespace is total even
// when wall clocks collide.
type TurnRow struct {
	Seq       int64
	Namespace string
	Speaker   string
	Content   string
	CreatedAt time.Time
}

const appendTurnSQL = `INSERT INTO conversation_turns (namespace, speaker, content)
	VALUES ($1, $2, $3)
	RETURNING seq`

// AppendTurn appends a turn and returns its assigned logical timestamp.
// The row is durable when this call returns; there is no write buffering.
func (q *Queries) AppendTurn(ctx context.Context, arg AppendTurnParams) (int64, error) {
	var seq int64
	err := q.db.QueryRow(ctx, appendTurnSQL, arg.Namespace, arg.Speaker, arg.Content).Scan(&seq)
	return seq, err
}

const recentTurnsSQL = `SELECT seq, namespace, speaker, content, created_at
	FROM conversation_turns
	WHERE namespace = $1
	ORDER BY seq DESC
	LIMIT $2`

// RecentTurns returns up to limit turns for a namespace, newest first.
func (q *Queries) RecentTurns(ctx context.Context, namespace string, limit int32) ([]TurnRow, error) {
	rows, err := q.db.Query(ctx, recentTurnsSQL, namespace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TurnRow
	for rows.Next() {
		var r TurnRow
		if err := rows.Scan(&r.Seq, &r.Namespace, &r.Speaker, &r.Content, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const countTurnsSQL = `SELECT COUNT(*) FROM conversation_turns WHERE namespace = $1`

// CountTurns counts turns in a namespace.
func (q *Queries) CountTurns(ctx context.Context, namespace string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countTurnsSQL, namespace).Scan(&n)
	return n, err
}
