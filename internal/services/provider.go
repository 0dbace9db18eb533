// Package services holds the text generation providers and the failover
// chain that the scene agents talk to.
package services

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/chat"
)

// Provider is a Generator with a stable name for logs and metrics.
type Provider interface {
	chat.Generator
	Name() string
}

// Provider names accepted in LLM_PROVIDERS.
const (
	ProviderGemini    = "gemini"
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// statusError maps an HTTP status from a provider to an error. 429 wraps
// chat.ErrRateLimited so the failover chain cools the provider down.
func statusError(provider string, status int, message string) error {
	message = strings.TrimSpace(message)
	if len(message) > 300 {
		message = message[:300] + "..."
	}
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %s", provider, chat.ErrRateLimited, message)
	}
	return fmt.Errorf("%s: API request failed with status %d: %s", provider, status, message)
}

// checkText turns a blank completion into chat.ErrEmptyResponse.
func checkText(provider, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", provider, chat.ErrEmptyResponse)
	}
	return text, nil
}
