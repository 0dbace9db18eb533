package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/jwebster45206/scene-engine/pkg/chat"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures one Gemini API key.
type GeminiConfig struct {
	APIKey string
	Model  string
	// Name distinguishes providers that share a backend, e.g. "gemini#2".
	Name string
	// BaseURL overrides the API endpoint. Tests point it at a local server.
	BaseURL string
}

// GeminiProvider generates text with the Gemini API.
type GeminiProvider struct {
	name      string
	client    *genai.Client
	modelName string
	options   chat.Options
	logger    *slog.Logger
}

var _ Provider = (*GeminiProvider)(nil)

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, opts chat.Options, logger *slog.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Name == "" {
		cfg.Name = ProviderGemini
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiProvider{
		name:      cfg.Name,
		client:    client,
		modelName: cfg.Model,
		options:   opts,
		logger:    logger,
	}, nil
}

func (g *GeminiProvider) Name() string {
	return g.name
}

func (g *GeminiProvider) Generate(ctx context.Context, r chat.Request) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	r = g.options.Resolve(r)
	contents, config := geminiRequest(r)

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", statusError(g.name, apiErr.Code, apiErr.Message)
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) {
			return "", statusError(g.name, apiErrPtr.Code, apiErrPtr.Message)
		}
		return "", fmt.Errorf("%s: %w", g.name, err)
	}
	return checkText(g.name, resp.Text())
}

// geminiRequest converts messages to Gemini contents. System messages become
// the system instruction; assistant messages take the model role.
func geminiRequest(r chat.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := chat.SplitSystem(r.Messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.Role(genai.RoleUser)
		if m.Role == chat.ChatRoleAgent {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(r.Temperature)),
		MaxOutputTokens: int32(r.MaxTokens),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, config
}
