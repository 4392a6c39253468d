package rerank

import (
	"context"
	"errors"
	"testing"

	"github.com/sagekit/sage/internal/log"
)

func fixedScores(scores []float64) Scorer {
	return ScorerFunc(func(_ context.Context, _ string, _ []string) ([]float64, error) {
		return scores, nil
	})
}

func TestRerank_SortsDescending(t *testing.T) {
	r := New(fixedScores([]float64{0.2, 0.9, 0.5}), log.NewNop())

	out := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 0)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	wantOrder := []string{"b", "c", "a"}
	for i, want := range wantOrder {
		if out[i].Text != want {
			t.Errorf("out[%d].Text = %q, want %q", i, out[i].Text, want)
		}
		if out[i].NewRank != i {
			t.Errorf("out[%d].NewRank = %d, want %d", i, out[i].NewRank, i)
		}
	}
	if out[0].OriginalRank != 1 {
		t.Errorf("out[0].OriginalRank = %d, want 1", out[0].OriginalRank)
	}
}

func TestRerank_ThresholdFilters(t *testing.T) {
	r := New(fixedScores([]float64{0.2, 0.9, 0.5}), log.NewNop())

	out := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 0.4)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Text != "b" || out[1].Text != "c" {
		t.Errorf("order = [%q %q]", out[0].Text, out[1].Text)
	}
}

func TestRerank_TiesAreStable(t *testing.T) {
	r := New(fixedScores([]float64{0.5, 0.5, 0.5, 0.8}), log.NewNop())

	out := r.Rerank(context.Background(), "q", []string{"a", "b", "c", "d"}, 0)
	wantOrder := []string{"d", "a", "b", "c"}
	for i, want := range wantOrder {
		if out[i].Text != want {
			t.Errorf("out[%d].Text = %q, want %q (ties keep original order)", i, out[i].Text, want)
		}
	}
}

func TestRerank_OutputIsFilteredPermutation(t *testing.T) {
	scores := []float64{0.1, 0.7, 0.3, 0.7, 0.05}
	candidates := []string{"a", "b", "c", "d", "e"}
	r := New(fixedScores(scores), log.NewNop())

	out := r.Rerank(context.Background(), "q", candidates, 0.2)

	seen := make(map[string]int)
	for _, ranked := range out {
		seen[ranked.Text]++
		if *ranked.Score < 0.2 {
			t.Errorf("candidate %q below threshold survived", ranked.Text)
		}
		if candidates[ranked.OriginalRank] != ranked.Text {
			t.Errorf("OriginalRank %d does not point at %q", ranked.OriginalRank, ranked.Text)
		}
	}
	for _, want := range []string{"b", "c", "d"} {
		if seen[want] != 1 {
			t.Errorf("candidate %q appears %d times, want 1", want, seen[want])
		}
	}
}

func TestRerank_EmptyInput(t *testing.T) {
	r := New(fixedScores(nil), log.NewNop())
	out := r.Rerank(context.Background(), "q", nil, 0.5)
	if len(out) != 0 {
		t.Errorf("rerank(q, [], t) = %v, want []", out)
	}
}

func TestRerank_ScorerFailureDegrades(t *testing.T) {
	scorer := ScorerFunc(func(_ context.Context, _ string, _ []string) ([]float64, error) {
		return nil, errors.New("scorer down")
	})
	r := New(scorer, log.NewNop())

	out := r.Rerank(context.Background(), "q", []string{"a", "b"}, 0.9)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 (no filtering without scores)", len(out))
	}
	for i, ranked := range out {
		if ranked.Score != nil {
			t.Errorf("out[%d].Score = %v, want nil", i, *ranked.Score)
		}
		if ranked.Text != []string{"a", "b"}[i] {
			t.Errorf("original order not preserved at %d", i)
		}
	}
}

func TestRerank_WrongCardinalityDegrades(t *testing.T) {
	r := New(fixedScores([]float64{0.5}), log.NewNop())

	out := r.Rerank(context.Background(), "q", []string{"a", "b"}, 0)
	if len(out) != 2 || out[0].Score != nil {
		t.Error("wrong-cardinality scorer output must degrade to original order")
	}
}
