package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const scorerSystemPrompt = `You rate how relevant each passage is to a query.
Reply with only a JSON array of numbers between 0.0 and 1.0, one per
passage, in the same order. Example: [0.9, 0.1, 0.45]`

// ScorerAdapter rates passage relevance with an external model. It
// satisfies rerank.Scorer.
type ScorerAdapter struct {
	client *Client
	model  string
}

// Scorer returns a relevance scorer bound to one model.
func (c *Client) Scorer(model string) *ScorerAdapter {
	return &ScorerAdapter{client: c, model: model}
}

// Score rates each candidate's relevance to the query in [0, 1]. The
// reranker checks cardinality and degrades on mismatch, so a confused
// model costs ordering quality, not availability.
func (s *ScorerAdapter) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\nPassages:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, c)
	}

	reply, err := s.client.complete(ctx, s.model, scorerSystemPrompt, sb.String(), 0)
	if err != nil {
		return nil, fmt.Errorf("scorer call: %w", err)
	}

	var scores []float64
	if err := json.Unmarshal([]byte(extractJSON(reply)), &scores); err != nil {
		return nil, fmt.Errorf("parsing scorer reply %q: %w", reply, err)
	}
	return scores, nil
}
