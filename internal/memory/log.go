package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sagekit/sage/internal/postgres"
)

// TurnQuerier defines the database operations the conversation log
// needs. Interfaces are defined by the consumer, not the provider, so
// tests can substitute a mock.
type TurnQuerier interface {
	AppendTurn(ctx context.Context, arg postgres.AppendTurnParams) (int64, error)
	RecentTurns(ctx context.Context, namespace string, limit int32) ([]postgres.TurnRow, error)
	CountTurns(ctx context.Context, namespace string) (int64, error)
}

// Log is the time-ordered, namespaced, append-only conversation log.
//
// Log is safe for concurrent use by multiple goroutines.
type Log struct {
	querier TurnQuerier
	logger  *slog.Logger
}

// NewLog creates a conversation log over the given querier.
func NewLog(querier TurnQuerier, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{querier: querier, logger: logger}
}

// Append durably appends one turn and returns its logical timestamp.
// A backing-store fault surfaces as ErrStorageUnavailable; the caller
// decides whether that write was loss-tolerable.
func (l *Log) Append(ctx context.Context, ns Namespace, speaker Speaker, text string) (int64, error) {
	seq, err := l.querier.AppendTurn(ctx, postgres.AppendTurnParams{
		Namespace: ns.Key(),
		Speaker:   string(speaker),
		Content:   text,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: append turn: %v", ErrStorageUnavailable, err)
	}

	l.logger.Debug("appended turn", "namespace", ns.Key(), "speaker", speaker, "seq", seq)
	return seq, nil
}

// Recent returns the most recent limit turns in chronological order
// (the store hands them back newest first; we reverse).
func (l *Log) Recent(ctx context.Context, ns Namespace, limit int32) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := l.querier.RecentTurns(ctx, ns.Key(), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: read recent turns: %v", ErrStorageUnavailable, err)
	}

	// Reverse newest-first into chronological order.
	turns := make([]Turn, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = Turn{
			Speaker:   Speaker(row.Speaker),
			Text:      row.Content,
			Seq:       row.Seq,
			Timestamp: row.CreatedAt,
		}
	}
	return turns, nil
}

// Seed writes initial lines into an empty namespace. First write wins:
// if the namespace already has entries the call is a no-op, so seeding
// is idempotent across restarts.
func (l *Log) Seed(ctx context.Context, ns Namespace, lines []string) error {
	count, err := l.querier.CountTurns(ctx, ns.Key())
	if err != nil {
		return fmt.Errorf("%w: count turns: %v", ErrStorageUnavailable, err)
	}
	if count > 0 {
		l.logger.Debug("seed skipped, namespace not empty", "namespace", ns.Key(), "existing", count)
		return nil
	}

	for _, line := range lines {
		if _, err := l.Append(ctx, ns, SpeakerSystem, line); err != nil {
			return err
		}
	}
	l.logger.Debug("seeded namespace", "namespace", ns.Key(), "lines", len(lines))
	return nil
}
