package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/sagekit/sage/internal/eval"
	"github.com/sagekit/sage/internal/sse"
)

type evalRequest struct {
	Models      []string         `json:"models"`
	Dataset     []eval.DataPoint `json:"dataset"`
	JudgeModel  string           `json:"judge_model"`
	TopK        int              `json:"top_k"`
	Temperature float32          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Stream      bool             `json:"stream"`
}

type evalHandler struct {
	logger     *slog.Logger
	runner     EvalRunner
	judgeModel string
}

// run handles POST /api/v1/eval/runs. Synchronous mode returns the
// collected results and summary; streaming mode emits
// meta → progress… → done|error as SSE events.
func (h *evalHandler) run(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body")
		return
	}
	if len(req.Models) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "at least one model is required")
		return
	}
	if len(req.Dataset) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "dataset is required")
		return
	}

	judge := req.JudgeModel
	if judge == "" {
		judge = h.judgeModel
	}
	cfg := eval.RunConfig{
		RunID:            uuid.New(),
		Models:           req.Models,
		Dataset:          req.Dataset,
		JudgeModel:       judge,
		TopK:             req.TopK,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		UseKnowledgeBase: true,
	}

	if req.Stream {
		h.runStreaming(w, r, cfg)
		return
	}
	h.runSync(w, r, cfg)
}

func (h *evalHandler) runSync(w http.ResponseWriter, r *http.Request, cfg eval.RunConfig) {
	var results []eval.Result
	summary, err := h.runner.Run(r.Context(), cfg, func(ev eval.Event) {
		if ev.Kind == eval.EventProgress && ev.Progress.Latest != nil {
			results = append(results, *ev.Progress.Latest)
		}
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"summary": summary,
	})
}

func (h *evalHandler) runStreaming(w http.ResponseWriter, r *http.Request, cfg eval.RunConfig) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	ctx := r.Context()
	_ = writer.WriteEvent(ctx, "meta", map[string]any{
		"run_id":      cfg.RunID.String(),
		"total_tests": len(cfg.Models) * len(cfg.Dataset),
	})

	_, runErr := h.runner.Run(ctx, cfg, func(ev eval.Event) {
		switch ev.Kind {
		case eval.EventProgress:
			_ = writer.WriteEvent(ctx, "progress", ev.Progress)
		case eval.EventDone:
			_ = writer.WriteEvent(ctx, "done", map[string]any{
				"run_id":  cfg.RunID.String(),
				"summary": ev.Summary,
			})
		case eval.EventError:
			_ = writer.WriteEvent(ctx, "error", map[string]any{
				"run_id":  cfg.RunID.String(),
				"message": ev.Err,
			})
		}
	})
	if runErr != nil {
		h.logger.Warn("evaluation run failed", "run_id", cfg.RunID, "error", runErr)
	}
}
