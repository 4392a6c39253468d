package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/sagekit/sage/internal/config"
)

// NewEmbedder initializes genkit with the configured AI provider and
// returns the embedder for the configured model. Each provider
// registers embedders differently: openai auto-registers them in
// Init() and is looked up by name; googleai constructs on demand.
func NewEmbedder(ctx context.Context, cfg *config.Config) (ai.Embedder, error) {
	switch cfg.Provider {
	case "googleai":
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		slog.Debug("initialized genkit embedder", "provider", "googleai", "model", cfg.EmbedderModel)
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel), nil

	case "", "openai":
		g := genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		embedder := genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
		if embedder == nil {
			return nil, fmt.Errorf("embedder %q not registered by openai plugin", cfg.EmbedderModel)
		}
		slog.Debug("initialized genkit embedder", "provider", "openai", "model", cfg.EmbedderModel)
		return embedder, nil

	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
