package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewClientForProvider creates the LLMClient for cfg.Provider. An empty
// provider with no endpoint and no model means LLM assistance is disabled,
// and (nil, nil) is returned.
func NewClientForProvider(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" && cfg.Endpoint == "" && cfg.Model == "" {
		return nil, nil
	}

	switch provider {
	case "", ProviderOpenAI:
		client, err := NewClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case ProviderAnthropic:
		client, err := NewAnthropicClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
