package eval

import (
	"errors"
	"time"
)

// ErrNoValidResults is the terminal run-level error when every test
// case failed.
var ErrNoValidResults = errors.New("evaluation produced no valid results")

// ErrEmptyQuestion marks a dataset item that cannot be evaluated.
var ErrEmptyQuestion = errors.New("empty question")

// Difficulty grades a dataset item.
type Difficulty string

// Difficulty levels.
const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// DataPoint is one read-only test case. Context holds the passages a
// perfect retrieval would surface for the question.
type DataPoint struct {
	ID          string     `json:"id"`
	Question    string     `json:"question"`
	Context     []string   `json:"context"`
	GroundTruth string     `json:"ground_truth"`
	Category    string     `json:"category"`
	Difficulty  Difficulty `json:"difficulty"`
}

// ScoreBundle carries all per-result scores, each in [0, 100].
//
// Overall is always the weighted function of the four judge sub-scores
// (0.40 relevance + 0.20 clarity/accuracy + 0.15 coherence +
// 0.25 completeness); it is computed, never set independently.
type ScoreBundle struct {
	Retrieval    float64 `json:"retrieval"`
	Augmentation float64 `json:"augmentation"`
	Generation   float64 `json:"generation"`
	Overall      float64 `json:"overall"`
	Relevance    float64 `json:"relevance"`
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Coherence    float64 `json:"coherence"`
}

// Result is one (model, test case) outcome. Immutable once created.
// Err is non-empty for items excluded from aggregate averages.
type Result struct {
	Model         string        `json:"model"`
	TestCaseID    string        `json:"test_case_id"`
	Question      string        `json:"question"`
	Answer        string        `json:"answer"`
	Scores        ScoreBundle   `json:"scores"`
	RetrievedDocs []string      `json:"retrieved_docs,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Err           string        `json:"error,omitempty"`
}

// Valid reports whether the result counts toward aggregate averages.
func (r Result) Valid() bool {
	return r.Err == ""
}

// ModelSummary is the per-model aggregate over valid results.
type ModelSummary struct {
	Model       string      `json:"model"`
	Averages    ScoreBundle `json:"averages"`
	ValidCount  int         `json:"valid_count"`
	ErrorCount  int         `json:"error_count"`
	SuccessRate float64     `json:"success_rate"`
}

// Summary is the aggregate of a finished run.
type Summary struct {
	RunID         string         `json:"run_id"`
	TotalTests    int            `json:"total_tests"`
	ValidCount    int            `json:"valid_count"`
	SuccessRate   float64        `json:"success_rate"`
	AvgScore      float64        `json:"avg_score"`
	PerModel      []ModelSummary `json:"per_model"`
	Errors        []string       `json:"errors,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
}

// Progress is the per-test-case event payload.
type Progress struct {
	Processed int     `json:"processed"`
	Valid     int     `json:"valid"`
	Errors    int     `json:"errors"`
	Percent   float64 `json:"percent"`
	Latest    *Result `json:"latest,omitempty"`
}

// EventKind discriminates run events.
type EventKind string

// Event kinds, in stream order: zero or more progress events, then
// exactly one done or error.
const (
	EventProgress EventKind = "progress"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// Event is one entry in a run's ordered event stream.
type Event struct {
	Kind     EventKind `json:"kind"`
	Progress *Progress `json:"progress,omitempty"`
	Summary  *Summary  `json:"summary,omitempty"`
	Err      string    `json:"error,omitempty"`
}
