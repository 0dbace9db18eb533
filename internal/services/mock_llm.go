package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/scene-engine/pkg/chat"
)

// MockGenerator is a mock implementation of Provider for testing
type MockGenerator struct {
	NameValue    string
	GenerateFunc func(ctx context.Context, r chat.Request) (string, error)

	// Responses are returned in order when GenerateFunc is nil. The last
	// response repeats once the list is exhausted.
	Responses []string

	// Track calls for testing
	GenerateCalls []chat.Request

	mu sync.Mutex // protects all fields above
}

var _ Provider = (*MockGenerator)(nil)

// NewMockGenerator creates a mock that answers with responses in order
func NewMockGenerator(responses ...string) *MockGenerator {
	return &MockGenerator{
		NameValue:     ProviderMock,
		Responses:     responses,
		GenerateCalls: make([]chat.Request, 0),
	}
}

func (m *MockGenerator) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NameValue
}

// Generate mocks text generation
func (m *MockGenerator) Generate(ctx context.Context, r chat.Request) (string, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, r)
	n := len(m.GenerateCalls)
	fn := m.GenerateFunc
	var text string
	if len(m.Responses) > 0 {
		text = m.Responses[min(n, len(m.Responses))-1]
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, r)
	}
	if text == "" {
		return "Mock response", nil
	}
	return text, nil
}

// SetGenerateError sets up the mock to return an error on Generate
func (m *MockGenerator) SetGenerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, r chat.Request) (string, error) {
		return "", err
	}
}

// Calls returns a copy of the recorded requests
func (m *MockGenerator) Calls() []chat.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]chat.Request, len(m.GenerateCalls))
	copy(out, m.GenerateCalls)
	return out
}

// Reset clears all call tracking
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateCalls = make([]chat.Request, 0)
}
