package queue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/pkg/scenario"
)

// RequestType identifies the type of request in the queue
type RequestType string

const (
	// RequestTypeRunScene asks a worker to play a scenario to its conclusion
	RequestTypeRunScene RequestType = "run_scene"
)

// Request is one unit of work on the scene queue.
type Request struct {
	RequestID string      `json:"request_id"`
	Type      RequestType `json:"type"`
	// RunID becomes the scene ID, so callers can subscribe to events
	// before a worker picks the request up.
	RunID uuid.UUID `json:"run_id"`

	// Scenario is a file name under the scenario directory. Seed, when set,
	// is played instead.
	Scenario string             `json:"scenario,omitempty"`
	Seed     *scenario.Scenario `json:"seed,omitempty"`

	// MaxTurns overrides the scenario's turn budget when > 0.
	MaxTurns int `json:"max_turns,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewRunScene builds a run request with fresh IDs.
func NewRunScene(scenarioFile string, maxTurns int) *Request {
	return &Request{
		RequestID:  uuid.New().String(),
		Type:       RequestTypeRunScene,
		RunID:      uuid.New(),
		Scenario:   scenarioFile,
		MaxTurns:   maxTurns,
		EnqueuedAt: time.Now(),
	}
}

// Validate checks a request before it is queued or run.
func (r *Request) Validate() error {
	if r.RequestID == "" {
		return errors.New("request_id is required")
	}
	if r.Type != RequestTypeRunScene {
		return errors.New("unsupported request type: " + string(r.Type))
	}
	if r.RunID == uuid.Nil {
		return errors.New("run_id is required")
	}
	if r.Scenario == "" && r.Seed == nil {
		return errors.New("scenario or seed is required")
	}
	if r.MaxTurns < 0 {
		return errors.New("max_turns must not be negative")
	}
	return nil
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
