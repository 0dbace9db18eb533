package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/jwebster45206/scene-engine/pkg/chat"
)

const DefaultOllamaModel = "llama3.2"

// OllamaProvider generates text with a local Ollama server.
type OllamaProvider struct {
	client    *api.Client
	modelName string
	options   chat.Options
	logger    *slog.Logger
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider creates a provider for baseURL. A trailing /v1 is
// dropped because the native API lives at the root.
func NewOllamaProvider(baseURL, modelName string, opts chat.Options, logger *slog.Logger) (*OllamaProvider, error) {
	if modelName == "" {
		modelName = DefaultOllamaModel
	}
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ollama URL %q: %w", baseURL, err)
	}
	return &OllamaProvider{
		client:    api.NewClient(parsed, &http.Client{Timeout: 120 * time.Second}),
		modelName: modelName,
		options:   opts,
		logger:    logger,
	}, nil
}

func (s *OllamaProvider) Name() string {
	return ProviderOllama
}

func (s *OllamaProvider) Generate(ctx context.Context, r chat.Request) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	r = s.options.Resolve(r)

	messages := make([]api.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}
	stream := false
	req := &api.ChatRequest{
		Model:    s.modelName,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": r.Temperature,
			"num_predict": r.MaxTokens,
		},
	}

	var resp api.ChatResponse
	err := s.client.Chat(ctx, req, func(cr api.ChatResponse) error {
		resp = cr
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", statusError(s.Name(), statusErr.StatusCode, statusErr.ErrorMessage)
		}
		return "", fmt.Errorf("%s: %w", s.Name(), err)
	}
	s.logger.Debug("Ollama response",
		"model", s.modelName,
		"prompt_tokens", resp.PromptEvalCount,
		"completion_tokens", resp.EvalCount)
	return checkText(s.Name(), resp.Message.Content)
}
