// Package provider adapts external model services to the narrow
// interfaces the domain packages consume: streamed chat generation,
// judge scoring, passage rerank scoring, and NL→SQL generation over
// the OpenAI-compatible API, plus genkit embedder setup.
package provider

import (
	"errors"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrMissingAPIKey indicates the provider cannot be constructed.
var ErrMissingAPIKey = errors.New("provider API key is required")

// Client wraps one OpenAI-compatible endpoint. All adapters share it
// so they share connection pooling and configuration.
type Client struct {
	api    *openai.Client
	logger *slog.Logger
}

// New creates a Client. baseURL may point at any OpenAI-compatible
// server; empty uses the official endpoint.
func New(apiKey, baseURL string, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{api: openai.NewClientWithConfig(cfg), logger: logger}, nil
}

// extractJSON trims markdown fences and surrounding prose from a model
// reply, keeping the outermost JSON value. Models wrap JSON in
// commentary often enough that strict parsing alone loses answers.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}
