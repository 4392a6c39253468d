package eval

import (
	"context"
	"log/slog"
	"sync"
)

// Judge weights for the authoritative overall score.
const (
	weightRelevance    = 0.40
	weightClarity      = 0.20
	weightCoherence    = 0.15
	weightCompleteness = 0.25
)

// DefaultJudgeTolerance is how far the judge's self-reported overall
// may drift from the weighted computation before it is flagged.
const DefaultJudgeTolerance = 5.0

// JudgeRequest asks an external judge model to rate one answer.
type JudgeRequest struct {
	Question string
	Answer   string
	Expected string
}

// JudgeScores are the judge's raw ratings, each 0-100. Overall is the
// judge's own figure and is advisory; see WeightedOverall.
type JudgeScores struct {
	Relevance    float64 `json:"relevance"`
	Clarity      float64 `json:"clarity"`
	Coherence    float64 `json:"coherence"`
	Completeness float64 `json:"completeness"`
	Overall      float64 `json:"overall_score"`
}

// WeightedOverall computes the authoritative overall score from the
// four sub-scores. The judge's own overall is only a cross-check.
func (s JudgeScores) WeightedOverall() float64 {
	return weightRelevance*s.Relevance +
		weightClarity*s.Clarity +
		weightCoherence*s.Coherence +
		weightCompleteness*s.Completeness
}

// Diverges reports whether the judge's self-reported overall differs
// from the weighted computation by more than tolerance.
func (s JudgeScores) Diverges(tolerance float64) bool {
	diff := s.Overall - s.WeightedOverall()
	if diff < 0 {
		diff = -diff
	}
	return diff > tolerance
}

// Judge is the external scoring model.
type Judge interface {
	Score(ctx context.Context, req JudgeRequest) (JudgeScores, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, req JudgeRequest) (JudgeScores, error)

// Score implements Judge.
func (f JudgeFunc) Score(ctx context.Context, req JudgeRequest) (JudgeScores, error) {
	return f(ctx, req)
}

// judgeKey memoizes by the exact triple; any change re-scores.
type judgeKey struct {
	question string
	answer   string
	expected string
}

// memoJudge caches judge calls for the lifetime of one run. It must
// not outlive the run: reuse across runs would leak stale scores.
type memoJudge struct {
	judge  Judge
	logger *slog.Logger

	mu    sync.Mutex
	cache map[judgeKey]JudgeScores
}

func newMemoJudge(judge Judge, logger *slog.Logger) *memoJudge {
	return &memoJudge{
		judge:  judge,
		logger: logger,
		cache:  make(map[judgeKey]JudgeScores),
	}
}

// Score returns the memoized result when the triple was already
// judged, otherwise calls through and stores the outcome. Errors are
// never cached.
func (m *memoJudge) Score(ctx context.Context, req JudgeRequest) (JudgeScores, error) {
	key := judgeKey{question: req.Question, answer: req.Answer, expected: req.Expected}

	m.mu.Lock()
	if scores, ok := m.cache[key]; ok {
		m.mu.Unlock()
		m.logger.Debug("judge cache hit", "test_question", req.Question)
		return scores, nil
	}
	m.mu.Unlock()

	scores, err := m.judge.Score(ctx, req)
	if err != nil {
		return JudgeScores{}, err
	}

	m.mu.Lock()
	m.cache[key] = scores
	m.mu.Unlock()
	return scores, nil
}
