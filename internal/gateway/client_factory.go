package gateway

import (
	"context"
	"fmt"

	"screendoc/internal/config"
)

// NewClient builds the configured LLM client from config.
func NewClient(ctx context.Context, cfg *config.Config) (LLMClient, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		ac := DefaultAnthropicConfig(cfg.LLM.APIKey)
		if cfg.LLM.Model != "" {
			ac.Model = cfg.LLM.Model
		}
		if cfg.LLM.BaseURL != "" {
			ac.BaseURL = cfg.LLM.BaseURL
		}
		ac.Timeout = cfg.GetLLMTimeout()
		return NewAnthropicClientWithConfig(ac), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLM.Provider)
	}
}
