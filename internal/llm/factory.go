package llm

import (
	"context"
	"fmt"
	"strings"
)

// NewProvider creates a Provider for cfg.Provider.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIProvider(cfg)
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "gemini":
		return newGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// SupportedProvider reports whether NewProvider knows name.
func SupportedProvider(name string) bool {
	switch strings.ToLower(name) {
	case "openai", "anthropic", "gemini":
		return true
	default:
		return false
	}
}
