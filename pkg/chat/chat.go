package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	ChatRoleUser   = "user"      // Prompt side
	ChatRoleAgent  = "assistant" // Model side
	ChatRoleSystem = "system"    // Instructions
)

// MaxPromptLength bounds the total prompt size sent to a provider.
const MaxPromptLength = 64000

var (
	// ErrUnavailable means no provider could produce text. It is fatal for a
	// scene run.
	ErrUnavailable = errors.New("text generation unavailable")
	// ErrEmptyResponse means a provider answered with no text.
	ErrEmptyResponse = errors.New("empty response from provider")
	// ErrRateLimited marks a provider refusal that should trigger a cooldown.
	ErrRateLimited = errors.New("provider rate limited")
)

// ChatMessage represents a single message sent to a model.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Request is one generation call.
type Request struct {
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Generator produces text from a prompt. Implementations wrap a model provider.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Options are the default sampling settings for a provider.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// DefaultOptions returns temperature 0.7 and 500 tokens.
func DefaultOptions() Options {
	return Options{Temperature: 0.7, MaxTokens: 500}
}

// Resolve fills zero request settings from o.
func (o Options) Resolve(req Request) Request {
	if req.Temperature <= 0 {
		req.Temperature = o.Temperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = o.MaxTokens
	}
	return req
}

// Prompt builds a request with an optional system message and one user message.
func Prompt(system, user string) Request {
	var msgs []ChatMessage
	if system != "" {
		msgs = append(msgs, ChatMessage{Role: ChatRoleSystem, Content: system})
	}
	msgs = append(msgs, ChatMessage{Role: ChatRoleUser, Content: user})
	return Request{Messages: msgs}
}

func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("request has no messages")
	}
	total := 0
	for i, m := range r.Messages {
		switch m.Role {
		case ChatRoleUser, ChatRoleAgent, ChatRoleSystem:
		default:
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
		total += len(m.Content)
	}
	if total > MaxPromptLength {
		return fmt.Errorf("prompt exceeds maximum length of %d characters", MaxPromptLength)
	}
	return nil
}

// SplitSystem joins all system messages into one prompt and returns the rest.
// Providers without a system role in their message list use it.
func SplitSystem(messages []ChatMessage) (string, []ChatMessage) {
	var systemParts []string
	var rest []ChatMessage
	for _, msg := range messages {
		if msg.Role == ChatRoleSystem {
			systemParts = append(systemParts, msg.Content)
		} else {
			rest = append(rest, msg)
		}
	}
	return strings.Join(systemParts, "\n\n"), rest
}

// Flatten renders the messages as one text block for single-prompt providers.
func Flatten(messages []ChatMessage) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
