package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type runHandler struct {
	logger *slog.Logger
	runs   RunGetter
}

type runResponse struct {
	RunID       string          `json:"run_id"`
	Status      string          `json:"status"`
	TotalTests  int32           `json:"total_tests"`
	AvgScore    float64         `json:"avg_score"`
	ExecutionMS int64           `json:"execution_ms"`
	CreatedAt   time.Time       `json:"created_at"`
	Config      json.RawMessage `json:"config"`
}

// get handles GET /api/v1/eval/runs/{id}: the persisted header of a
// finished or in-flight run.
func (h *runHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid run id")
		return
	}

	row, err := h.runs.GetEvalRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		h.logger.Error("run lookup failed", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "run lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		RunID:       row.ID.String(),
		Status:      row.Status,
		TotalTests:  row.TotalTests,
		AvgScore:    row.AvgScore,
		ExecutionMS: row.ExecutionMS,
		CreatedAt:   row.CreatedAt,
		Config:      row.Config,
	})
}
