package embedding

import (
	"context"
	"fmt"

	"go-autoagent/internal/config"
	"go-autoagent/internal/memory"
)

// New builds the configured embedder, wrapped in a cache when enabled.
func New(ctx context.Context, cfg config.EmbeddingConfig) (memory.Embedder, error) {
	var e memory.Embedder
	switch cfg.Provider {
	case "openai":
		e = NewOpenAI(cfg.URL, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case "gemini":
		g, err := NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		e = g
	case "hash":
		e = NewHash(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if !cfg.Cache.Enabled {
		return e, nil
	}
	return NewCached(e, cfg.Cache.MaxCost)
}
