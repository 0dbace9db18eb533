package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/scene-engine/internal/config"
	"github.com/jwebster45206/scene-engine/pkg/chat"
)

// NewChain builds the failover chain named by cfg.Providers, in order.
// Gemini and Groq get one link per API key. Providers without credentials
// are skipped with a warning; an empty chain is an error.
func NewChain(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Failover, error) {
	opts := chat.Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}

	var providers []Provider
	for _, name := range cfg.Providers {
		before := len(providers)
		switch name {
		case ProviderGemini:
			for i, key := range cfg.GeminiAPIKeys {
				p, err := NewGeminiProvider(ctx, GeminiConfig{
					APIKey: key,
					Model:  cfg.GeminiModel,
					Name:   linkName(ProviderGemini, i),
				}, opts, logger)
				if err != nil {
					return nil, err
				}
				providers = append(providers, p)
			}
		case ProviderGroq:
			for i, key := range cfg.GroqAPIKeys {
				providers = append(providers, NewOpenAICompatible(linkName(ProviderGroq, i), key, GroqBaseURL, cfg.GroqModel, opts, logger))
			}
		case ProviderOpenAI:
			if cfg.OpenAIAPIKey != "" {
				providers = append(providers, NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, opts, logger))
			}
		case ProviderAnthropic:
			if cfg.AnthropicKey != "" {
				providers = append(providers, NewAnthropicProvider(cfg.AnthropicKey, cfg.AnthropicModel, opts, logger))
			}
		case ProviderOllama:
			p, err := NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, opts, logger)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case ProviderMock:
			providers = append(providers, NewScriptedGenerator())
		default:
			return nil, fmt.Errorf("unknown LLM provider %q", name)
		}
		if len(providers) == before {
			logger.Warn("LLM provider has no credentials, skipping", "provider", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no usable LLM provider in %v", cfg.Providers)
	}

	chain := NewFailover(providers, FailoverOptions{Cooldown: cfg.Cooldown}, logger)
	logger.Info("LLM provider chain ready", "providers", chain.Providers())
	return chain, nil
}

// linkName numbers extra keys of one provider: gemini, gemini#2, ...
func linkName(provider string, i int) string {
	if i == 0 {
		return provider
	}
	return fmt.Sprintf("%s#%d", provider, i+1)
}
