// Package rerank reorders retrieved passages by a secondary relevance
// signal after the initial similarity search.
//
// Rerank is a pure function of its inputs: no hidden state, so it is
// independently testable. The scoring capability is external; when it
// fails, candidates come back in original order with nil scores rather
// than failing the request.
package rerank

import (
	"context"
	"log/slog"
	"sort"
)

// Scorer rates each candidate's relevance to the query in [0, 1].
// The returned slice must be the same length as candidates.
type Scorer interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, query string, candidates []string) ([]float64, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	return f(ctx, query, candidates)
}

// Ranked is one reranked candidate. Score is nil when the scorer was
// unavailable and the original order was preserved.
type Ranked struct {
	Text         string
	Score        *float64
	OriginalRank int
	NewRank      int
}

// Reranker reorders candidates using an external Scorer.
type Reranker struct {
	scorer Scorer
	logger *slog.Logger
}

// New creates a Reranker.
func New(scorer Scorer, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, logger: logger}
}

// Rerank scores candidates against the query, drops those below
// threshold, and sorts the rest by descending score. The sort is
// stable: candidates with equal scores keep their original order.
//
// Scorer failure degrades to the original order with nil scores and no
// threshold filtering, so retrieval never fails the request.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []string, threshold float64) []Ranked {
	if len(candidates) == 0 {
		return []Ranked{}
	}

	scores, err := r.scorer.Score(ctx, query, candidates)
	if err != nil || len(scores) != len(candidates) {
		if err != nil {
			r.logger.Warn("scorer unavailable, preserving original order", "error", err)
		} else {
			r.logger.Warn("scorer returned wrong cardinality, preserving original order",
				"scores", len(scores), "candidates", len(candidates))
		}
		out := make([]Ranked, len(candidates))
		for i, text := range candidates {
			out[i] = Ranked{Text: text, OriginalRank: i, NewRank: i}
		}
		return out
	}

	kept := make([]Ranked, 0, len(candidates))
	for i, text := range candidates {
		if scores[i] < threshold {
			continue
		}
		score := scores[i]
		kept = append(kept, Ranked{Text: text, Score: &score, OriginalRank: i})
	}

	sort.SliceStable(kept, func(a, b int) bool {
		return *kept[a].Score > *kept[b].Score
	})
	for i := range kept {
		kept[i].NewRank = i
	}
	return kept
}
