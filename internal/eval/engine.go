// Package eval runs model evaluations over a dataset: for each
// (model, test case) pair it assembles context, generates an answer,
// and scores it with retrieval, augmentation, and generation metrics
// plus an external judge model.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sagekit/sage/internal/assemble"
	"github.com/sagekit/sage/internal/memory"
	"github.com/sagekit/sage/internal/postgres"
	"github.com/sagekit/sage/internal/stream"
)

// ContextBuilder assembles retrieval context for a question.
// *assemble.Assembler satisfies it.
type ContextBuilder interface {
	Assemble(ctx context.Context, req assemble.Request) *assemble.Bundle
}

// Generator produces one complete answer. A *stream.Coordinator built
// without a persister satisfies it: evaluation answers are scored, not
// added to anyone's transcript.
type Generator interface {
	Generate(ctx context.Context, req stream.Request, ns memory.Namespace, onDelta func(string) error) (string, error)
}

// RunStore persists run headers and per-result rows incrementally so a
// crashed run keeps its partial results. *postgres.Queries satisfies it.
type RunStore interface {
	CreateEvalRun(ctx context.Context, arg postgres.CreateEvalRunParams) error
	AppendEvalResult(ctx context.Context, arg postgres.AppendEvalResultParams) error
	FinalizeEvalRun(ctx context.Context, arg postgres.FinalizeEvalRunParams) error
}

// RunConfig describes one evaluation run.
type RunConfig struct {
	// RunID may be pre-assigned by callers that need to announce the
	// run before results exist; zero generates one.
	RunID            uuid.UUID   `json:"-"`
	Models           []string    `json:"models"`
	Dataset          []DataPoint `json:"-"`
	JudgeModel       string      `json:"judge_model"`
	TopK             int         `json:"top_k"`
	Temperature      float32     `json:"temperature"`
	MaxTokens        int         `json:"max_tokens"`
	UseKnowledgeBase bool        `json:"use_knowledge_base"`
}

// Config wires an Engine. Store is optional; the rest are required.
type Config struct {
	Assembler ContextBuilder
	Generator Generator
	Judge     Judge
	Store     RunStore
	Logger    *slog.Logger

	// BaseDelay scales retry backoff; zero uses the default.
	BaseDelay time.Duration
	// JudgeTolerance is the permitted divergence between the judge's
	// self-reported overall and the weighted computation.
	JudgeTolerance float64
}

// Engine executes evaluation runs sequentially, model-major, to bound
// load on the shared external services and keep judge caching simple.
type Engine struct {
	assembler ContextBuilder
	generator Generator
	judge     Judge
	store     RunStore
	logger    *slog.Logger
	baseDelay time.Duration
	tolerance float64
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("eval: generator is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("eval: judge is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.JudgeTolerance <= 0 {
		cfg.JudgeTolerance = DefaultJudgeTolerance
	}
	return &Engine{
		assembler: cfg.Assembler,
		generator: cfg.Generator,
		judge:     cfg.Judge,
		store:     cfg.Store,
		logger:    cfg.Logger,
		baseDelay: cfg.BaseDelay,
		tolerance: cfg.JudgeTolerance,
	}, nil
}

// Run evaluates every (model, test case) pair. After each test case an
// EventProgress is emitted; the stream ends with exactly one EventDone
// or EventError. emit may be nil for synchronous callers.
//
// A run where zero items succeed is a terminal error; individual item
// failures only land in Summary.Errors while the run continues.
func (e *Engine) Run(ctx context.Context, cfg RunConfig, emit func(Event)) (*Summary, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	if len(cfg.Models) == 0 || len(cfg.Dataset) == 0 {
		err := fmt.Errorf("eval: run needs at least one model and one dataset item")
		emit(Event{Kind: EventError, Err: err.Error()})
		return nil, err
	}

	runID := cfg.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	total := len(cfg.Models) * len(cfg.Dataset)
	started := time.Now()
	e.persistRunStart(ctx, runID, cfg, total)

	// One memoized judge per run; cross-run reuse would serve stale
	// scores for re-judged answers.
	memo := newMemoJudge(e.judge, e.logger)

	var (
		results   []Result
		processed int
		valid     int
		errored   int
	)
	for _, model := range cfg.Models {
		for _, dp := range cfg.Dataset {
			result := e.evaluate(ctx, model, dp, cfg, memo)
			results = append(results, result)
			processed++
			if result.Valid() {
				valid++
			} else {
				errored++
				e.logger.Warn("test case failed",
					"run_id", runID, "model", model, "test_case", dp.ID, "error", result.Err)
			}

			e.persistResult(ctx, runID, result)
			emit(Event{Kind: EventProgress, Progress: &Progress{
				Processed: processed,
				Valid:     valid,
				Errors:    errored,
				Percent:   float64(processed) / float64(total) * 100,
				Latest:    &result,
			}})
		}
	}

	summary := e.summarize(runID, cfg, results, time.Since(started))
	if valid == 0 {
		e.persistRunEnd(ctx, runID, "error", 0, summary.ExecutionTime)
		emit(Event{Kind: EventError, Err: ErrNoValidResults.Error()})
		return nil, fmt.Errorf("%w: %d of %d items errored", ErrNoValidResults, errored, total)
	}

	e.persistRunEnd(ctx, runID, "done", summary.AvgScore, summary.ExecutionTime)
	emit(Event{Kind: EventDone, Summary: summary})
	return summary, nil
}

// evaluate scores one (model, test case) pair. External-call failures
// become an errored Result, never a run abort.
func (e *Engine) evaluate(ctx context.Context, model string, dp DataPoint, cfg RunConfig, judge *memoJudge) Result {
	result := Result{Model: model, TestCaseID: dp.ID, Question: dp.Question}
	started := time.Now()
	defer func() { result.ExecutionTime = time.Since(started) }()

	if strings.TrimSpace(dp.Question) == "" {
		result.Err = ErrEmptyQuestion.Error()
		return result
	}

	var bundle *assemble.Bundle
	if e.assembler != nil {
		bundle = e.assembler.Assemble(ctx, assemble.Request{
			Question:         dp.Question,
			ChatNS:           memory.ChatNamespace("eval"),
			UseKnowledgeBase: cfg.UseKnowledgeBase,
			TopK:             cfg.TopK,
		})
	} else {
		bundle = &assemble.Bundle{}
	}

	matches := append(append([]memory.Match{}, bundle.DocumentPassages...), bundle.KnowledgePassages...)
	for _, m := range matches {
		result.RetrievedDocs = append(result.RetrievedDocs, m.Text)
	}

	prompt := assemble.BuildPrompt(bundle, dp.Question)
	var answer string
	genErr := withRetry(ctx, e.baseDelay, func() error {
		var err error
		answer, err = e.generator.Generate(ctx, stream.Request{
			Model:       model,
			Prompt:      prompt,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, memory.Namespace{}, nil)
		return err
	})
	if genErr != nil {
		result.Err = fmt.Sprintf("generation failed: %v", genErr)
		return result
	}
	result.Answer = answer

	retrieval := scoreRetrieval(matches, dp.Context)
	augmentation := scoreAugmentation(answer, result.RetrievedDocs)
	generation := scoreGeneration(answer, dp.GroundTruth)

	var judged JudgeScores
	judgeErr := withRetry(ctx, e.baseDelay, func() error {
		var err error
		judged, err = judge.Score(ctx, JudgeRequest{
			Question: dp.Question,
			Answer:   answer,
			Expected: dp.GroundTruth,
		})
		return err
	})
	if judgeErr != nil {
		result.Err = fmt.Sprintf("judge failed: %v", judgeErr)
		return result
	}
	if judged.Overall != 0 && judged.Diverges(e.tolerance) {
		e.logger.Warn("judge overall diverges from weighted sub-scores",
			"model", model, "test_case", dp.ID,
			"judge_overall", judged.Overall, "computed", judged.WeightedOverall())
	}

	result.Scores = ScoreBundle{
		Retrieval:    retrieval.Composite(),
		Augmentation: augmentation.Composite(),
		Generation:   generation.Composite(),
		Overall:      judged.WeightedOverall(),
		Relevance:    judged.Relevance,
		// The judge's clarity criterion doubles as the accuracy score.
		Accuracy:     judged.Clarity,
		Completeness: judged.Completeness,
		Coherence:    judged.Coherence,
	}
	return result
}

// summarize aggregates per-model and run-level averages over valid
// results only; errored items count toward totals but not means.
func (e *Engine) summarize(runID uuid.UUID, cfg RunConfig, results []Result, elapsed time.Duration) *Summary {
	summary := &Summary{
		RunID:         runID.String(),
		TotalTests:    len(results),
		ExecutionTime: elapsed,
	}

	var overallSum float64
	for _, model := range cfg.Models {
		ms := ModelSummary{Model: model}
		var sums ScoreBundle
		modelTotal := 0
		for _, r := range results {
			if r.Model != model {
				continue
			}
			modelTotal++
			if !r.Valid() {
				ms.ErrorCount++
				summary.Errors = append(summary.Errors,
					fmt.Sprintf("%s/%s: %s", r.Model, r.TestCaseID, r.Err))
				continue
			}
			ms.ValidCount++
			sums.Retrieval += r.Scores.Retrieval
			sums.Augmentation += r.Scores.Augmentation
			sums.Generation += r.Scores.Generation
			sums.Overall += r.Scores.Overall
			sums.Relevance += r.Scores.Relevance
			sums.Accuracy += r.Scores.Accuracy
			sums.Completeness += r.Scores.Completeness
			sums.Coherence += r.Scores.Coherence
		}
		if ms.ValidCount > 0 {
			n := float64(ms.ValidCount)
			ms.Averages = ScoreBundle{
				Retrieval:    sums.Retrieval / n,
				Augmentation: sums.Augmentation / n,
				Generation:   sums.Generation / n,
				Overall:      sums.Overall / n,
				Relevance:    sums.Relevance / n,
				Accuracy:     sums.Accuracy / n,
				Completeness: sums.Completeness / n,
				Coherence:    sums.Coherence / n,
			}
			overallSum += sums.Overall
		}
		if modelTotal > 0 {
			ms.SuccessRate = float64(ms.ValidCount) / float64(modelTotal) * 100
		}
		summary.PerModel = append(summary.PerModel, ms)
		summary.ValidCount += ms.ValidCount
	}

	if summary.TotalTests > 0 {
		summary.SuccessRate = float64(summary.ValidCount) / float64(summary.TotalTests) * 100
	}
	if summary.ValidCount > 0 {
		summary.AvgScore = overallSum / float64(summary.ValidCount)
	}
	return summary
}

func (e *Engine) persistRunStart(ctx context.Context, runID uuid.UUID, cfg RunConfig, total int) {
	if e.store == nil {
		return
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		cfgJSON = []byte("{}")
	}
	if err := e.store.CreateEvalRun(ctx, postgres.CreateEvalRunParams{
		ID:         runID,
		Config:     cfgJSON,
		TotalTests: int32(total), // #nosec G115 -- dataset sizes are small
	}); err != nil {
		e.logger.Warn("failed to persist run header", "run_id", runID, "error", err)
	}
}

func (e *Engine) persistResult(ctx context.Context, runID uuid.UUID, r Result) {
	if e.store == nil {
		return
	}
	scores, err := json.Marshal(r.Scores)
	if err != nil {
		scores = []byte("{}")
	}
	var errMsg *string
	if r.Err != "" {
		errMsg = &r.Err
	}
	if err := e.store.AppendEvalResult(ctx, postgres.AppendEvalResultParams{
		RunID:       runID,
		Model:       r.Model,
		TestCaseID:  r.TestCaseID,
		Answer:      r.Answer,
		Scores:      scores,
		ExecutionMS: r.ExecutionTime.Milliseconds(),
		ErrMessage:  errMsg,
	}); err != nil {
		e.logger.Warn("failed to persist result", "run_id", runID, "test_case", r.TestCaseID, "error", err)
	}
}

func (e *Engine) persistRunEnd(ctx context.Context, runID uuid.UUID, status string, avg float64, elapsed time.Duration) {
	if e.store == nil {
		return
	}
	if err := e.store.FinalizeEvalRun(ctx, postgres.FinalizeEvalRunParams{
		ID:          runID,
		Status:      status,
		AvgScore:    avg,
		ExecutionMS: elapsed.Milliseconds(),
	}); err != nil {
		e.logger.Warn("failed to finalize run", "run_id", runID, "error", err)
	}
}
