package eval

import "strings"

// AugmentationMetrics scores how the generated answer uses the
// retrieved content. All fields are in [0, 1].
type AugmentationMetrics struct {
	// Coverage is the fraction of answer tokens grounded in retrieval.
	Coverage float64 `json:"coverage"`
	// Faithfulness is the fraction of answer sentences with majority
	// token support in the retrieved content.
	Faithfulness float64 `json:"faithfulness"`
	// CompressionRatio measures how much the answer condenses the
	// retrieved content; 1 means maximal condensation.
	CompressionRatio float64 `json:"compression_ratio"`
	// UniqueTokenRatio penalizes repetitive answers.
	UniqueTokenRatio float64 `json:"unique_token_ratio"`
}

// Composite folds the four metrics into one [0, 100] score.
func (m AugmentationMetrics) Composite() float64 {
	sum := m.Coverage + m.Faithfulness + m.CompressionRatio + m.UniqueTokenRatio
	return sum / 4 * 100
}

// scoreAugmentation computes augmentation metrics for one answer
// against the passages that were actually retrieved.
func scoreAugmentation(answer string, retrieved []string) AugmentationMetrics {
	var m AugmentationMetrics
	answerTokens := tokenize(answer)
	if len(answerTokens) == 0 {
		return m
	}

	sourceSet := make(map[string]bool)
	sourceLen := 0
	for _, passage := range retrieved {
		tokens := tokenize(passage)
		sourceLen += len(tokens)
		for _, t := range tokens {
			sourceSet[t] = true
		}
	}

	if len(sourceSet) > 0 {
		grounded := 0
		for _, t := range answerTokens {
			if sourceSet[t] {
				grounded++
			}
		}
		m.Coverage = float64(grounded) / float64(len(answerTokens))

		sentences := splitSentences(answer)
		supported := 0
		for _, s := range sentences {
			if overlapRatio(tokenSet(s), sourceSet) > 0.5 {
				supported++
			}
		}
		if len(sentences) > 0 {
			m.Faithfulness = float64(supported) / float64(len(sentences))
		}

		if sourceLen > 0 {
			m.CompressionRatio = clamp01(1 - float64(len(answerTokens))/float64(sourceLen))
		}
	}

	unique := make(map[string]bool, len(answerTokens))
	for _, t := range answerTokens {
		unique[t] = true
	}
	m.UniqueTokenRatio = float64(len(unique)) / float64(len(answerTokens))
	return m
}

// splitSentences breaks text on terminal punctuation. Good enough for
// scoring; linguistic edge cases only dilute an already fuzzy metric.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(text[start:i]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
