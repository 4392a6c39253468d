package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sagekit/sage/internal/assemble"
	"github.com/sagekit/sage/internal/memory"
	"github.com/sagekit/sage/internal/sse"
	"github.com/sagekit/sage/internal/stream"
)

type chatRequest struct {
	Prompt           string `json:"prompt"`
	Model            string `json:"model"`
	SessionID        string `json:"session_id"`
	Subject          string `json:"subject"`
	UseKnowledgeBase bool   `json:"use_knowledge_base"`
	UseDatabase      bool   `json:"use_database"`
}

type chatHandler struct {
	logger       *slog.Logger
	turns        TurnAppender
	assembler    ContextAssembler
	generator    ChatGenerator
	defaultModel string
	temperature  float32
	maxTokens    int
}

// send handles POST /api/v1/chat: persists the user turn, assembles
// context, and streams the generation as SSE chunk events. A
// generation failure is delivered as a system-role error event in the
// stream, not a broken connection.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "prompt is required")
		return
	}
	model := req.Model
	if model == "" {
		model = h.defaultModel
	}

	ctx := r.Context()
	ns := memory.ChatNamespace(userID(r))
	ns.Session = req.SessionID

	// The user turn is durable before generation starts. Failure is
	// reported in logs but does not block the answer; the reply itself
	// is what the user is waiting on.
	if _, err := h.turns.Append(ctx, ns, memory.SpeakerUser, req.Prompt); err != nil {
		h.logger.Warn("failed to persist user turn", "namespace", ns.Key(), "error", err)
	}

	bundle := h.assembler.Assemble(ctx, assemble.Request{
		Question:         req.Prompt,
		ChatNS:           ns,
		Subject:          req.Subject,
		UseKnowledgeBase: req.UseKnowledgeBase,
		UseDatabase:      req.UseDatabase,
	})

	writer, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	_, genErr := h.generator.Generate(ctx, stream.Request{
		Model:       model,
		Prompt:      assemble.BuildPrompt(bundle, req.Prompt),
		Temperature: h.temperature,
		MaxTokens:   h.maxTokens,
	}, ns, func(delta string) error {
		return writer.WriteEvent(ctx, "chunk", map[string]string{"text": delta})
	})
	if genErr != nil {
		h.logger.Error("chat generation failed", "namespace", ns.Key(), "error", genErr)
		// Surface as a system message inside the stream; headers are
		// already sent.
		_ = writer.WriteEvent(ctx, "error", map[string]string{
			"role":    "system",
			"message": "generation failed, please retry",
		})
		return
	}

	_ = writer.WriteEvent(ctx, "done", map[string]any{
		"citations": bundle.Citations,
		"truncated": bundle.Truncated,
	})
}
