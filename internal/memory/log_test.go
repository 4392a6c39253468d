package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sagekit/sage/internal/log"
	"github.com/sagekit/sage/internal/postgres"
)

// mockTurnQuerier is an in-memory TurnQuerier with configurable faults.
type mockTurnQuerier struct {
	turns map[string][]postgres.TurnRow
	seq   int64

	appendErr error
	recentErr error
	countErr  error

	appendCalls int
}

func newMockTurnQuerier() *mockTurnQuerier {
	return &mockTurnQuerier{turns: make(map[string][]postgres.TurnRow)}
}

func (m *mockTurnQuerier) AppendTurn(_ context.Context, arg postgres.AppendTurnParams) (int64, error) {
	m.appendCalls++
	if m.appendErr != nil {
		return 0, m.appendErr
	}
	m.seq++
	m.turns[arg.Namespace] = append(m.turns[arg.Namespace], postgres.TurnRow{
		Seq:       m.seq,
		Namespace: arg.Namespace,
		Speaker:   arg.Speaker,
		Content:   arg.Content,
		CreatedAt: time.Now(),
	})
	return m.seq, nil
}

func (m *mockTurnQuerier) RecentTurns(_ context.Context, namespace string, limit int32) ([]postgres.TurnRow, error) {
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	all := m.turns[namespace]
	// newest first, like the real query
	out := make([]postgres.TurnRow, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < int(limit); i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *mockTurnQuerier) CountTurns(_ context.Context, namespace string) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return int64(len(m.turns[namespace])), nil
}

func TestLog_RecentChronologicalOrder(t *testing.T) {
	q := newMockTurnQuerier()
	l := NewLog(q, log.NewNop())
	ns := ChatNamespace("alice")

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := l.Append(context.Background(), ns, SpeakerUser, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("Append() = %v", err)
		}
	}

	turns, err := l.Recent(context.Background(), ns, n)
	if err != nil {
		t.Fatalf("Recent() = %v", err)
	}
	if len(turns) != n {
		t.Fatalf("got %d turns, want %d", len(turns), n)
	}
	for i, turn := range turns {
		want := fmt.Sprintf("turn %d", i)
		if turn.Text != want {
			t.Errorf("turns[%d].Text = %q, want %q (chronological, most-recent-last)", i, turn.Text, want)
		}
		if i > 0 && turns[i].Seq <= turns[i-1].Seq {
			t.Errorf("seq not increasing at index %d", i)
		}
	}
}

func TestLog_RecentHonorsLimit(t *testing.T) {
	q := newMockTurnQuerier()
	l := NewLog(q, log.NewNop())
	ns := ChatNamespace("bob")

	for i := 0; i < 10; i++ {
		if _, err := l.Append(context.Background(), ns, SpeakerUser, fmt.Sprintf("turn %d", i)); err != nil {
			t.Fatalf("Append() = %v", err)
		}
	}

	turns, err := l.Recent(context.Background(), ns, 3)
	if err != nil {
		t.Fatalf("Recent() = %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	// The three most recent, still chronological.
	if turns[0].Text != "turn 7" || turns[2].Text != "turn 9" {
		t.Errorf("unexpected window: first=%q last=%q", turns[0].Text, turns[2].Text)
	}
}

func TestLog_SeedIdempotent(t *testing.T) {
	q := newMockTurnQuerier()
	l := NewLog(q, log.NewNop())
	ns := Namespace{Subject: "support", Model: "gpt-4o-mini", User: "carol"}

	lines := []string{"hello", "welcome back"}
	if err := l.Seed(context.Background(), ns, lines); err != nil {
		t.Fatalf("Seed() = %v", err)
	}
	if got := len(q.turns[ns.Key()]); got != 2 {
		t.Fatalf("after first seed: %d turns, want 2", got)
	}

	// Re-running seed on a populated namespace leaves the log unchanged.
	if err := l.Seed(context.Background(), ns, []string{"different", "content", "entirely"}); err != nil {
		t.Fatalf("second Seed() = %v", err)
	}
	if got := len(q.turns[ns.Key()]); got != 2 {
		t.Errorf("after second seed: %d turns, want 2 (first write wins)", got)
	}
	if q.turns[ns.Key()][0].Content != "hello" {
		t.Errorf("seed content overwritten: %q", q.turns[ns.Key()][0].Content)
	}
}

func TestLog_StorageFaultWrapped(t *testing.T) {
	q := newMockTurnQuerier()
	q.appendErr = errors.New("connection refused")
	l := NewLog(q, log.NewNop())

	_, err := l.Append(context.Background(), ChatNamespace("dave"), SpeakerSystem, "answer")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Append() = %v, want ErrStorageUnavailable", err)
	}

	q2 := newMockTurnQuerier()
	q2.recentErr = errors.New("connection reset")
	l2 := NewLog(q2, log.NewNop())
	if _, err := l2.Recent(context.Background(), ChatNamespace("dave"), 5); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Recent() = %v, want ErrStorageUnavailable", err)
	}
}

func TestNamespace_Key(t *testing.T) {
	ns := Namespace{Subject: "support", Model: "gpt-4o", User: "alice"}
	if ns.Key() != "support:gpt-4o:alice" {
		t.Errorf("Key() = %q", ns.Key())
	}

	withSession := Namespace{Subject: "support", Model: "gpt-4o", User: "alice", Session: "s1"}
	if withSession.Key() != "support:gpt-4o:alice:s1" {
		t.Errorf("Key() = %q", withSession.Key())
	}
}
