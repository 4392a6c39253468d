package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sagekit/sage/internal/knowledge"
)

type knowledgeHandler struct {
	logger  *slog.Logger
	service Ingestor
}

// ingest handles POST /api/v1/knowledge.
func (h *knowledgeHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var entry knowledge.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body")
		return
	}

	if err := h.service.Ingest(r.Context(), userID(r), entry); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}
