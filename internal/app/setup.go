package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/sagekit/sage/db"
	"github.com/sagekit/sage/internal/api"
	"github.com/sagekit/sage/internal/assemble"
	"github.com/sagekit/sage/internal/config"
	"github.com/sagekit/sage/internal/eval"
	"github.com/sagekit/sage/internal/knowledge"
	"github.com/sagekit/sage/internal/memory"
	"github.com/sagekit/sage/internal/observability"
	"github.com/sagekit/sage/internal/postgres"
	"github.com/sagekit/sage/internal/provider"
	"github.com/sagekit/sage/internal/rerank"
	"github.com/sagekit/sage/internal/security"
	"github.com/sagekit/sage/internal/sqlpipe"
	"github.com/sagekit/sage/internal/stream"
)

// Setup builds the application graph in dependency order. On any
// failure it releases everything already acquired and returns the
// error.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if cfg.TracingEnabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			AgentHost:   cfg.TracingAgentHost,
			ServiceName: cfg.TracingServiceTag,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.otelShutdown = shutdown
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.Pool = pool
	a.Queries = postgres.New(pool)

	embedder, err := provider.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}

	a.Turns = memory.NewLog(a.Queries, logger)
	a.Vectors = memory.NewVectorStore(a.Queries, embedder, logger)

	client, err := provider.New(apiKey(), os.Getenv("OPENAI_BASE_URL"), logger)
	if err != nil {
		return nil, fmt.Errorf("initializing provider: %w", err)
	}
	a.Provider = client

	a.SQL = provideSQLPipeline(ctx, a, cfg)
	a.Reranker = rerank.New(client.Scorer(cfg.ModelName), logger)

	a.Assembler = assemble.New(assemble.Config{
		History:         a.Turns,
		Vectors:         a.Vectors,
		SQL:             a.SQL,
		Ranker:          a.Reranker,
		Logger:          logger,
		TopK:            cfg.TopK,
		RerankThreshold: cfg.RerankThreshold,
		Budget:          cfg.ContextBudget,
	})

	a.Chat = stream.NewCoordinator(client.ChatStreamer(), a.Turns, markers(cfg), logger)

	// The evaluation coordinator shares the chat generator but never
	// writes to conversation memory.
	evalGen := stream.NewCoordinator(client.ChatStreamer(), nil, markers(cfg), logger)
	engine, err := eval.New(eval.Config{
		Assembler:      a.Assembler,
		Generator:      evalGen,
		Judge:          client.Judge(cfg.JudgeModel),
		Store:          a.Queries,
		Logger:         logger,
		JudgeTolerance: cfg.JudgeTolerance,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing evaluation engine: %w", err)
	}
	a.Eval = engine

	a.Knowledge = knowledge.NewService(knowledge.Config{
		Store:         a.Vectors,
		Logger:        logger,
		Screen:        security.NewScreen(),
		MaxChars:      cfg.IngestMaxChars,
		RatePerMinute: cfg.IngestRatePerMin,
		Burst:         cfg.IngestRateBurst,
	})

	server, err := api.NewServer(api.ServerConfig{
		Logger:       logger,
		Turns:        a.Turns,
		Assembler:    a.Assembler,
		Generator:    a.Chat,
		Knowledge:    a.Knowledge,
		Eval:         a.Eval,
		Runs:         a.Queries,
		Pool:         pool,
		DefaultModel: cfg.ModelName,
		JudgeModel:   cfg.JudgeModel,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing http server: %w", err)
	}
	a.Server = server

	return a, nil
}

// provideSQLPipeline binds the NL→SQL generator to a live description
// of the public schema. Introspection failure degrades to an empty
// schema prompt rather than blocking startup.
func provideSQLPipeline(ctx context.Context, a *App, cfg *config.Config) *sqlpipe.Pipeline {
	schema, err := a.Queries.DescribeSchema(ctx)
	if err != nil {
		a.Logger.Warn("schema introspection failed, SQL generation runs without schema context", "error", err)
		schema = ""
	}
	return sqlpipe.New(sqlpipe.Config{
		Generator:   a.Provider.SQLGenerator(cfg.ModelName, schema),
		Executor:    sqlpipe.NewPgxExecutor(a.Pool),
		Logger:      a.Logger,
		MaxAttempts: cfg.SQLMaxAttempts,
		RowLimit:    cfg.SQLRowLimit,
	})
}
