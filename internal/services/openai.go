package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jwebster45206/scene-engine/pkg/chat"
)

const (
	// GroqBaseURL is Groq's OpenAI-compatible endpoint.
	GroqBaseURL = "https://api.groq.com/openai/v1"

	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	name      string
	client    *openai.Client
	modelName string
	options   chat.Options
	logger    *slog.Logger
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider for api.openai.com.
func NewOpenAIProvider(apiKey, modelName string, opts chat.Options, logger *slog.Logger) *OpenAIProvider {
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	return NewOpenAICompatible(ProviderOpenAI, apiKey, "", modelName, opts, logger)
}

// NewGroqProvider creates a provider for Groq. Each API key gets its own
// provider so the failover chain can rotate keys.
func NewGroqProvider(apiKey, modelName string, opts chat.Options, logger *slog.Logger) *OpenAIProvider {
	if modelName == "" {
		modelName = DefaultGroqModel
	}
	return NewOpenAICompatible(ProviderGroq, apiKey, GroqBaseURL, modelName, opts, logger)
}

// NewOpenAICompatible creates a provider for baseURL. An empty baseURL keeps
// the OpenAI default.
func NewOpenAICompatible(name, apiKey, baseURL, modelName string, opts chat.Options, logger *slog.Logger) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		name:      name,
		client:    openai.NewClientWithConfig(cfg),
		modelName: modelName,
		options:   opts,
		logger:    logger,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Generate(ctx context.Context, r chat.Request) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	r = p.options.Resolve(r)

	messages := make([]openai.ChatCompletionMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.modelName,
		Messages:    messages,
		Temperature: float32(r.Temperature),
		MaxTokens:   r.MaxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", statusError(p.name, apiErr.HTTPStatusCode, apiErr.Message)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", statusError(p.name, reqErr.HTTPStatusCode, reqErr.Error())
		}
		return "", fmt.Errorf("%s: %w", p.name, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", p.name, chat.ErrEmptyResponse)
	}
	p.logger.Debug("Chat completion",
		"provider", p.name,
		"model", p.modelName,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return checkText(p.name, resp.Choices[0].Message.Content)
}

func openAIRole(role string) string {
	switch role {
	case chat.ChatRoleSystem:
		return openai.ChatMessageRoleSystem
	case chat.ChatRoleAgent:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
