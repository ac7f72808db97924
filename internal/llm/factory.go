package llm

import (
	"context"
	"fmt"

	"go-autoagent/internal/config"
)

// NewProvider builds the configured completion provider without queueing.
func NewProvider(ctx context.Context, c config.LLMConfig) (Completer, error) {
	switch c.Provider {
	case "openai":
		return NewOpenAI(c.URL, c.APIKey, c.Model, c.MaxTokens), nil
	case "anthropic":
		return NewAnthropic(c.APIKey, c.Model, c.MaxTokens), nil
	case "gemini":
		return NewGemini(ctx, c.APIKey, c.Model, c.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", c.Provider)
	}
}
