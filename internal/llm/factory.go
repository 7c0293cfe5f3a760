package llm

import (
	"context"
	"fmt"

	"dirigent/internal/config"
)

// NewFromConfig builds the configured provider. Unknown providers are a
// configuration error, not a fallback.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
