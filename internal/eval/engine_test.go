package eval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sagekit/sage/internal/assemble"
	"github.com/sagekit/sage/internal/log"
	"github.com/sagekit/sage/internal/memory"
	"github.com/sagekit/sage/internal/postgres"
	"github.com/sagekit/sage/internal/stream"
)

// The production types must satisfy the engine seams, not just the
// fakes below.
var (
	_ ContextBuilder = (*assemble.Assembler)(nil)
	_ Generator      = (*stream.Coordinator)(nil)
	_ RunStore       = (*postgres.Queries)(nil)
)

func echoGenerator() Generator {
	return generatorFunc(func(_ context.Context, req stream.Request) (string, error) {
		return "answer for: " + req.Prompt, nil
	})
}

type generatorFunc func(ctx context.Context, req stream.Request) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req stream.Request, _ memory.Namespace, _ func(string) error) (string, error) {
	return f(ctx, req)
}

func perfectJudge(calls *int) Judge {
	return JudgeFunc(func(_ context.Context, _ JudgeRequest) (JudgeScores, error) {
		if calls != nil {
			*calls++
		}
		return JudgeScores{Relevance: 80, Clarity: 70, Coherence: 60, Completeness: 90, Overall: 77.5}, nil
	})
}

func dataset(n int) []DataPoint {
	points := make([]DataPoint, n)
	for i := range points {
		points[i] = DataPoint{
			ID:          fmt.Sprintf("case-%d", i),
			Question:    fmt.Sprintf("question %d", i),
			GroundTruth: fmt.Sprintf("truth %d", i),
			Difficulty:  DifficultyEasy,
		}
	}
	return points
}

func newTestEngine(t *testing.T, judge Judge) *Engine {
	t.Helper()
	e, err := New(Config{
		Generator: echoGenerator(),
		Judge:     judge,
		Logger:    log.NewNop(),
		BaseDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestRun_EmptyQuestionCountsAsError(t *testing.T) {
	points := dataset(10)
	points[3].Question = ""

	e := newTestEngine(t, perfectJudge(nil))
	summary, err := e.Run(context.Background(), RunConfig{
		Models:  []string{"model-a"},
		Dataset: points,
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.TotalTests != 10 {
		t.Errorf("TotalTests = %d, want 10", summary.TotalTests)
	}
	if summary.ValidCount != 9 {
		t.Errorf("ValidCount = %d, want 9", summary.ValidCount)
	}
	if summary.SuccessRate != 90.0 {
		t.Errorf("SuccessRate = %v, want 90.0", summary.SuccessRate)
	}
	if len(summary.Errors) < 1 {
		t.Error("Errors empty, want the empty-question entry")
	}
}

func TestRun_JudgeMemoizedPerTriple(t *testing.T) {
	var judgeCalls int
	// Two dataset items with the same question and ground truth produce
	// the same (query, response, expected) triple.
	points := []DataPoint{
		{ID: "a", Question: "same question", GroundTruth: "same truth"},
		{ID: "b", Question: "same question", GroundTruth: "same truth"},
	}

	e := newTestEngine(t, perfectJudge(&judgeCalls))
	if _, err := e.Run(context.Background(), RunConfig{
		Models:  []string{"model-a"},
		Dataset: points,
	}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if judgeCalls != 1 {
		t.Errorf("judge called %d times, want 1 (memoized within run)", judgeCalls)
	}
}

func TestRun_MemoDoesNotLeakAcrossRuns(t *testing.T) {
	var judgeCalls int
	points := dataset(1)
	e := newTestEngine(t, perfectJudge(&judgeCalls))

	cfg := RunConfig{Models: []string{"m"}, Dataset: points}
	if _, err := e.Run(context.Background(), cfg, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background(), cfg, nil); err != nil {
		t.Fatal(err)
	}
	if judgeCalls != 2 {
		t.Errorf("judge called %d times across two runs, want 2 (cache is run-scoped)", judgeCalls)
	}
}

func TestRun_OverallIsWeightedComputation(t *testing.T) {
	e := newTestEngine(t, perfectJudge(nil))
	var results []Result
	_, err := e.Run(context.Background(), RunConfig{
		Models:  []string{"m"},
		Dataset: dataset(3),
	}, func(ev Event) {
		if ev.Kind == EventProgress && ev.Progress.Latest != nil {
			results = append(results, *ev.Progress.Latest)
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, r := range results {
		want := 0.40*r.Scores.Relevance + 0.20*r.Scores.Accuracy +
			0.15*r.Scores.Coherence + 0.25*r.Scores.Completeness
		if !almostEqual(r.Scores.Overall, want) {
			t.Errorf("Overall = %v, recomputed = %v", r.Scores.Overall, want)
		}
	}
}

func TestRun_AllErrorsIsTerminal(t *testing.T) {
	failing := JudgeFunc(func(_ context.Context, _ JudgeRequest) (JudgeScores, error) {
		return JudgeScores{}, errors.New("judge offline")
	})
	e := newTestEngine(t, failing)

	var terminal Event
	_, err := e.Run(context.Background(), RunConfig{
		Models:  []string{"m"},
		Dataset: dataset(2),
	}, func(ev Event) { terminal = ev })

	if !errors.Is(err, ErrNoValidResults) {
		t.Fatalf("err = %v, want ErrNoValidResults", err)
	}
	if terminal.Kind != EventError {
		t.Errorf("last event = %q, want error", terminal.Kind)
	}
}

func TestRun_EventStreamShape(t *testing.T) {
	e := newTestEngine(t, perfectJudge(nil))
	var events []Event
	_, err := e.Run(context.Background(), RunConfig{
		Models:  []string{"m1", "m2"},
		Dataset: dataset(3),
	}, func(ev Event) { events = append(events, ev) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(events) != 7 {
		t.Fatalf("events = %d, want 6 progress + 1 done", len(events))
	}
	for i, ev := range events[:6] {
		if ev.Kind != EventProgress {
			t.Errorf("event %d kind = %q, want progress", i, ev.Kind)
		}
		if ev.Progress.Processed != i+1 {
			t.Errorf("event %d processed = %d, want %d", i, ev.Progress.Processed, i+1)
		}
	}
	last := events[6]
	if last.Kind != EventDone || last.Summary == nil {
		t.Errorf("terminal event = %+v, want done with summary", last)
	}
	if got := events[5].Progress.Percent; got != 100 {
		t.Errorf("final progress percent = %v, want 100", got)
	}
}

func TestRun_GeneratorRetriesThenSucceeds(t *testing.T) {
	var attempts int
	gen := generatorFunc(func(_ context.Context, _ stream.Request) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "recovered answer", nil
	})

	e, err := New(Config{
		Generator: gen,
		Judge:     perfectJudge(nil),
		Logger:    log.NewNop(),
		BaseDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	summary, err := e.Run(context.Background(), RunConfig{
		Models:  []string{"m"},
		Dataset: dataset(1),
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ValidCount != 1 {
		t.Errorf("ValidCount = %d, want 1 after retry recovery", summary.ValidCount)
	}
	if attempts != 3 {
		t.Errorf("generator attempts = %d, want 3", attempts)
	}
}

func TestRun_GeneratorExhaustionRecordsError(t *testing.T) {
	gen := generatorFunc(func(_ context.Context, _ stream.Request) (string, error) {
		return "", errors.New("always down")
	})
	e, err := New(Config{
		Generator: gen,
		Judge:     perfectJudge(nil),
		Logger:    log.NewNop(),
		BaseDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	points := dataset(2)
	// One item answered by a working path would keep the run valid, but
	// here every generation fails, so the run is terminal.
	_, runErr := e.Run(context.Background(), RunConfig{Models: []string{"m"}, Dataset: points}, nil)
	if !errors.Is(runErr, ErrNoValidResults) {
		t.Fatalf("err = %v, want ErrNoValidResults", runErr)
	}
}

func TestRun_UsesAssembledContext(t *testing.T) {
	builder := contextBuilderFunc(func(_ context.Context, req assemble.Request) *assemble.Bundle {
		return &assemble.Bundle{
			DocumentPassages: []memory.Match{{Text: "retrieved passage for " + req.Question, Similarity: 0.9}},
		}
	})
	e, err := New(Config{
		Assembler: builder,
		Generator: echoGenerator(),
		Judge:     perfectJudge(nil),
		Logger:    log.NewNop(),
		BaseDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	var results []Result
	_, runErr := e.Run(context.Background(), RunConfig{
		Models:  []string{"m"},
		Dataset: dataset(1),
	}, func(ev Event) {
		if ev.Kind == EventProgress {
			results = append(results, *ev.Progress.Latest)
		}
	})
	if runErr != nil {
		t.Fatal(runErr)
	}
	if len(results) != 1 || len(results[0].RetrievedDocs) != 1 {
		t.Fatalf("retrieved docs not recorded: %+v", results)
	}
}

type contextBuilderFunc func(ctx context.Context, req assemble.Request) *assemble.Bundle

func (f contextBuilderFunc) Assemble(ctx context.Context, req assemble.Request) *assemble.Bundle {
	return f(ctx, req)
}

func TestRun_NoModelsIsError(t *testing.T) {
	e := newTestEngine(t, perfectJudge(nil))
	if _, err := e.Run(context.Background(), RunConfig{Dataset: dataset(1)}, nil); err == nil {
		t.Error("expected error for run without models")
	}
}

func TestRun_TopKReachesAssembler(t *testing.T) {
	var seen []int
	builder := contextBuilderFunc(func(_ context.Context, req assemble.Request) *assemble.Bundle {
		seen = append(seen, req.TopK)
		return &assemble.Bundle{}
	})

	e, err := New(Config{
		Assembler: builder,
		Generator: echoGenerator(),
		Judge:     perfectJudge(nil),
		Logger:    log.NewNop(),
		BaseDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := e.Run(context.Background(), RunConfig{
		Models:  []string{"model-a"},
		Dataset: dataset(2),
		TopK:    7,
	}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("assembler called %d times, want 2", len(seen))
	}
	for i, k := range seen {
		if k != 7 {
			t.Errorf("item %d: assembled with TopK %d, want 7", i, k)
		}
	}
}
