package eval

import (
	"math"
	"regexp"
	"strings"
)

// GenerationMetrics scores the generated answer against the ground
// truth. ROUGE and BLEU fields are in [0, 1]; Exactness is in [0, 1]
// and only meaningful when Exactable is true.
type GenerationMetrics struct {
	RougeLPrecision float64 `json:"rouge_l_precision"`
	RougeLRecall    float64 `json:"rouge_l_recall"`
	RougeLF1        float64 `json:"rouge_l_f1"`
	BLEU4           float64 `json:"bleu_4"`
	Exactable       bool    `json:"exactable"`
	Exactness       float64 `json:"exactness"`
}

// Composite folds the metrics into one [0, 100] score. When the ground
// truth is numeric or boolean, exactness carries half the weight:
// fluent prose around a wrong number is still a wrong answer.
func (m GenerationMetrics) Composite() float64 {
	textual := 0.6*m.RougeLF1 + 0.4*m.BLEU4
	if m.Exactable {
		return (0.5*textual + 0.5*m.Exactness) * 100
	}
	return textual * 100
}

// scoreGeneration computes generation metrics for one answer.
func scoreGeneration(answer, groundTruth string) GenerationMetrics {
	refTokens := tokenize(groundTruth)
	candTokens := tokenize(answer)

	var m GenerationMetrics
	m.RougeLPrecision, m.RougeLRecall, m.RougeLF1 = rougeL(refTokens, candTokens)
	m.BLEU4 = bleu4(refTokens, candTokens)
	m.Exactable, m.Exactness = exactness(answer, groundTruth)
	return m
}

// rougeL computes ROUGE-L precision, recall, and F1 from the longest
// common subsequence of the token sequences.
func rougeL(ref, cand []string) (precision, recall, f1 float64) {
	if len(ref) == 0 || len(cand) == 0 {
		return 0, 0, 0
	}
	lcs := float64(lcsLength(ref, cand))
	precision = lcs / float64(len(cand))
	recall = lcs / float64(len(ref))
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

// lcsLength computes the longest-common-subsequence length with two
// rolling rows instead of the full table.
func lcsLength(ref, cand []string) int {
	prev := make([]int, len(cand)+1)
	curr := make([]int, len(cand)+1)
	for i := 1; i <= len(ref); i++ {
		curr[0] = 0
		for j := 1; j <= len(cand); j++ {
			switch {
			case ref[i-1] == cand[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(cand)]
}

// bleu4 computes BLEU with up to 4-gram modified precision and the
// standard brevity penalty.
func bleu4(ref, cand []string) float64 {
	if len(cand) == 0 || len(ref) == 0 {
		return 0
	}

	var logSum float64
	for n := 1; n <= 4; n++ {
		p := modifiedPrecision(ref, cand, n)
		if p == 0 {
			// Smoothing: an absent higher-order match should shrink
			// the score, not zero it for short answers.
			p = 1 / (2 * float64(len(cand)+n))
		}
		logSum += math.Log(p)
	}
	score := math.Exp(logSum / 4)

	if len(cand) < len(ref) {
		score *= math.Exp(1 - float64(len(ref))/float64(len(cand)))
	}
	return clamp01(score)
}

func modifiedPrecision(ref, cand []string, n int) float64 {
	candGrams := ngramCounts(cand, n)
	if len(candGrams) == 0 {
		return 0
	}
	refGrams := ngramCounts(ref, n)

	clipped, total := 0, 0
	for gram, count := range candGrams {
		total += count
		if refCount := refGrams[gram]; refCount < count {
			clipped += refCount
		} else {
			clipped += count
		}
	}
	return float64(clipped) / float64(total)
}

func ngramCounts(tokens []string, n int) map[string]int {
	if len(tokens) < n {
		return nil
	}
	counts := make(map[string]int, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], "\x00")]++
	}
	return counts
}

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

var booleanWords = map[string]bool{
	"yes": true, "no": false,
	"true": true, "false": false,
}

// exactness checks numeric and boolean ground truths literally.
// Returns (false, 0) when the ground truth is neither.
func exactness(answer, groundTruth string) (bool, float64) {
	truth := strings.TrimSpace(groundTruth)

	if val, ok := booleanWords[strings.ToLower(truth)]; ok {
		for _, t := range tokenize(answer) {
			if got, ok := booleanWords[t]; ok {
				if got == val {
					return true, 1
				}
				return true, 0
			}
		}
		return true, 0
	}

	truthNums := numberRe.FindAllString(truth, -1)
	if len(truthNums) == 0 || len(tokenize(truth)) > 2*len(truthNums) {
		// Prose with incidental digits is not a numeric ground truth.
		return false, 0
	}
	answerNums := make(map[string]bool)
	for _, n := range numberRe.FindAllString(answer, -1) {
		answerNums[normalizeNumber(n)] = true
	}
	hit := 0
	for _, n := range truthNums {
		if answerNums[normalizeNumber(n)] {
			hit++
		}
	}
	return true, float64(hit) / float64(len(truthNums))
}

// normalizeNumber strips an insignificant trailing ".0" so "42" and
// "42.0" compare equal.
func normalizeNumber(s string) string {
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
