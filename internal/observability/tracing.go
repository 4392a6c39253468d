// Package observability provides OpenTelemetry tracing setup.
//
// Spans are exported over OTLP HTTP to a local collector agent, which
// buffers, retries, and forwards to whatever backend is configured.
// Exporter construction failure degrades to a noop: tracing is never
// worth failing startup over.
package observability

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultAgentHost is the default OTLP HTTP endpoint.
const DefaultAgentHost = "localhost:4318"

// Config for tracing setup.
type Config struct {
	// AgentHost is the collector's OTLP HTTP endpoint.
	AgentHost string
	// ServiceName tags exported spans.
	ServiceName string
}

// Setup installs a tracer provider exporting to the local collector.
// Returns a shutdown function that flushes pending spans; the function
// is never nil.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	agentHost := cfg.AgentHost
	if agentHost == "" {
		agentHost = DefaultAgentHost
	}
	if cfg.ServiceName != "" {
		// The SDK's default resource detector reads this.
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(), // local agent, no TLS
	)
	if err != nil {
		slog.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
	)
	otel.SetTracerProvider(provider)

	slog.Debug("tracing enabled", "agent", agentHost, "service", cfg.ServiceName)
	return provider.Shutdown, nil
}
