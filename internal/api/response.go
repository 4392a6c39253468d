package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sagekit/sage/internal/eval"
	"github.com/sagekit/sage/internal/knowledge"
	"github.com/sagekit/sage/internal/memory"
	"github.com/sagekit/sage/internal/stream"
)

// writeJSON writes a JSON response with the given status code.
// Encoding failures after WriteHeader cannot reach the client; they
// are logged instead.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps a domain sentinel to its HTTP representation.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, knowledge.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, knowledge.ErrContentTooLarge),
		errors.Is(err, knowledge.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, knowledge.ErrSuspectContent):
		writeError(w, http.StatusUnprocessableEntity, "content_rejected", err.Error())
	case errors.Is(err, knowledge.ErrIngestionFailed):
		writeError(w, http.StatusBadGateway, "ingestion_failed", err.Error())
	case errors.Is(err, memory.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	case errors.Is(err, stream.ErrGenerationFailed):
		writeError(w, http.StatusBadGateway, "generation_failed", err.Error())
	case errors.Is(err, eval.ErrNoValidResults):
		writeError(w, http.StatusInternalServerError, "evaluation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
