// Package api exposes the HTTP surface: streamed chat turns,
// evaluation runs (sync or SSE), knowledge ingestion, and health.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagekit/sage/internal/assemble"
	"github.com/sagekit/sage/internal/eval"
	"github.com/sagekit/sage/internal/knowledge"
	"github.com/sagekit/sage/internal/memory"
	"github.com/sagekit/sage/internal/postgres"
	"github.com/sagekit/sage/internal/stream"
)

// TurnAppender persists conversation turns. *memory.Log satisfies it.
type TurnAppender interface {
	Append(ctx context.Context, ns memory.Namespace, speaker memory.Speaker, text string) (int64, error)
}

// ContextAssembler builds the fused context for a question.
type ContextAssembler interface {
	Assemble(ctx context.Context, req assemble.Request) *assemble.Bundle
}

// ChatGenerator streams one generation. *stream.Coordinator satisfies it.
type ChatGenerator interface {
	Generate(ctx context.Context, req stream.Request, ns memory.Namespace, onDelta func(string) error) (string, error)
}

// Ingestor writes one knowledge entry. *knowledge.Service satisfies it.
type Ingestor interface {
	Ingest(ctx context.Context, user string, entry knowledge.Entry) error
}

// EvalRunner executes one evaluation run. *eval.Engine satisfies it.
type EvalRunner interface {
	Run(ctx context.Context, cfg eval.RunConfig, emit func(eval.Event)) (*eval.Summary, error)
}

// RunGetter fetches one persisted run header. *postgres.Queries
// satisfies it.
type RunGetter interface {
	GetEvalRun(ctx context.Context, id uuid.UUID) (postgres.EvalRunRow, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger    *slog.Logger
	Turns     TurnAppender     // required
	Assembler ContextAssembler // required
	Generator ChatGenerator    // required
	Knowledge Ingestor         // optional: nil disables ingestion
	Eval      EvalRunner       // optional: nil disables eval runs
	Runs      RunGetter        // optional: nil disables run lookup
	Pool      *pgxpool.Pool    // optional: nil disables db health probe

	DefaultModel string
	JudgeModel   string

	// Temperature and MaxTokens are the generation defaults applied to
	// every chat turn.
	Temperature float32
	MaxTokens   int
}

// Server is the JSON/SSE API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Turns == nil || cfg.Assembler == nil || cfg.Generator == nil {
		return nil, errors.New("turns, assembler, and generator are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{
		logger:       logger,
		turns:        cfg.Turns,
		assembler:    cfg.Assembler,
		generator:    cfg.Generator,
		defaultModel: cfg.DefaultModel,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
	}
	hh := &healthHandler{pool: cfg.Pool}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", hh.health)
	mux.HandleFunc("POST /api/v1/chat", ch.send)

	if cfg.Knowledge != nil {
		kh := &knowledgeHandler{logger: logger, service: cfg.Knowledge}
		mux.HandleFunc("POST /api/v1/knowledge", kh.ingest)
	}
	if cfg.Eval != nil {
		eh := &evalHandler{logger: logger, runner: cfg.Eval, judgeModel: cfg.JudgeModel}
		mux.HandleFunc("POST /api/v1/eval/runs", eh.run)
	}
	if cfg.Runs != nil {
		rh := &runHandler{logger: logger, runs: cfg.Runs}
		mux.HandleFunc("GET /api/v1/eval/runs/{id}", rh.get)
	}

	return &Server{mux: mux}, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// userID identifies the caller. There is no auth layer in front of
// this service yet; the header keeps rate limiting and namespacing
// meaningful behind a trusted proxy.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}
