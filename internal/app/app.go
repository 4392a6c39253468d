// Package app constructs and tears down the application graph.
//
// Every shared component is built exactly once in Setup and handed to
// its consumers through constructor injection. Nothing here is a
// process-wide singleton: tests build the same components directly with
// fakes, and two App values in one process do not interfere.
package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagekit/sage/internal/api"
	"github.com/sagekit/sage/internal/assemble"
	"github.com/sagekit/sage/internal/config"
	"github.com/sagekit/sage/internal/eval"
	"github.com/sagekit/sage/internal/knowledge"
	"github.com/sagekit/sage/internal/memory"
	"github.com/sagekit/sage/internal/postgres"
	"github.com/sagekit/sage/internal/provider"
	"github.com/sagekit/sage/internal/rerank"
	"github.com/sagekit/sage/internal/sqlpipe"
	"github.com/sagekit/sage/internal/stream"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool    *pgxpool.Pool
	Queries *postgres.Queries

	Turns     *memory.Log
	Vectors   *memory.VectorStore
	Provider  *provider.Client
	SQL       *sqlpipe.Pipeline
	Reranker  *rerank.Reranker
	Assembler *assemble.Assembler

	// Chat persists system turns after completion; Eval never persists.
	Chat *stream.Coordinator
	Eval *eval.Engine

	Knowledge *knowledge.Service
	Server    *api.Server

	otelShutdown func(context.Context) error
}

// Close releases everything Setup acquired. Safe to call on a partially
// initialized App, which is how Setup cleans up after a failure.
func (a *App) Close() error {
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			slog.Warn("failed to flush tracer", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return nil
}

// markers returns the reasoning-region markers from configuration,
// falling back to the defaults when unset.
func markers(cfg *config.Config) stream.Markers {
	m := stream.DefaultMarkers()
	if cfg.ReasoningOpen != "" && cfg.ReasoningClose != "" {
		m = stream.Markers{Open: cfg.ReasoningOpen, Close: cfg.ReasoningClose}
	}
	return m
}

// apiKey reads the provider credential from the environment. Keys never
// live in the config file.
func apiKey() string {
	return os.Getenv("OPENAI_API_KEY")
}
