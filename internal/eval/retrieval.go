package eval

import (
	"math"
	"sort"

	"github.com/sagekit/sage/internal/memory"
)

// relevanceOverlap is the token-overlap fraction above which a
// retrieved passage counts as matching a known-relevant context
// passage.
const relevanceOverlap = 0.5

// RetrievalMetrics scores retrieved passages against the known-relevant
// context of a test case. All fields are in [0, 1].
type RetrievalMetrics struct {
	PrecisionAtK   float64 `json:"precision_at_k"`
	RecallAtK      float64 `json:"recall_at_k"`
	MRR            float64 `json:"mrr"`
	NDCGAtK        float64 `json:"ndcg_at_k"`
	MeanSimilarity float64 `json:"mean_similarity"`
	TokenCoverage  float64 `json:"token_coverage"`
}

// Composite folds the six metrics into one [0, 100] score.
func (m RetrievalMetrics) Composite() float64 {
	sum := m.PrecisionAtK + m.RecallAtK + m.MRR + m.NDCGAtK + m.MeanSimilarity + m.TokenCoverage
	return sum / 6 * 100
}

// scoreRetrieval computes retrieval metrics for one test case.
// Relevance is binary: a retrieved passage is relevant when it covers
// more than relevanceOverlap of some context passage's tokens.
func scoreRetrieval(retrieved []memory.Match, context []string) RetrievalMetrics {
	var m RetrievalMetrics
	if len(retrieved) == 0 || len(context) == 0 {
		return m
	}

	contextSets := make([]map[string]bool, len(context))
	for i, c := range context {
		contextSets[i] = tokenSet(c)
	}

	relevant := make([]bool, len(retrieved))
	contextHit := make([]bool, len(context))
	var gains []float64
	for i, match := range retrieved {
		passage := tokenSet(match.Text)
		for j, ctxSet := range contextSets {
			if overlapRatio(ctxSet, passage) >= relevanceOverlap {
				relevant[i] = true
				contextHit[j] = true
			}
		}
		if relevant[i] {
			gains = append(gains, 1)
		} else {
			gains = append(gains, 0)
		}
	}

	relevantCount := 0
	for i, rel := range relevant {
		if rel {
			relevantCount++
			if m.MRR == 0 {
				m.MRR = 1 / float64(i+1)
			}
		}
	}
	m.PrecisionAtK = float64(relevantCount) / float64(len(retrieved))

	hitCount := 0
	for _, hit := range contextHit {
		if hit {
			hitCount++
		}
	}
	m.RecallAtK = float64(hitCount) / float64(len(context))

	m.NDCGAtK = ndcg(gains)

	var simSum float64
	retrievedUnion := make(map[string]bool)
	for _, match := range retrieved {
		simSum += clamp01(match.Similarity)
		for t := range tokenSet(match.Text) {
			retrievedUnion[t] = true
		}
	}
	m.MeanSimilarity = simSum / float64(len(retrieved))

	contextUnion := make(map[string]bool)
	for _, set := range contextSets {
		for t := range set {
			contextUnion[t] = true
		}
	}
	m.TokenCoverage = overlapRatio(contextUnion, retrievedUnion)
	return m
}

// ndcg computes normalized discounted cumulative gain for a ranked list
// of binary gains.
func ndcg(gains []float64) float64 {
	dcg := dcgOf(gains)

	ideal := make([]float64, len(gains))
	copy(ideal, gains)
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	idcg := dcgOf(ideal)
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func dcgOf(gains []float64) float64 {
	var dcg float64
	for i, g := range gains {
		dcg += g / math.Log2(float64(i)+2)
	}
	return dcg
}
