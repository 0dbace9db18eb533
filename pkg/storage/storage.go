package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// ErrNotFound is returned when a run, scenario or narrator does not exist.
var ErrNotFound = errors.New("not found")

// RunSummary is the listing view of a stored run.
type RunSummary struct {
	RunID      uuid.UUID `json:"run_id"`
	Title      string    `json:"title"`
	Scenario   string    `json:"scenario,omitempty"`
	Turn       int       `json:"turn"`
	TotalTurns int       `json:"total_turns"`
	Concluded  bool      `json:"concluded"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Summarize builds the listing view of a scene.
func Summarize(s *state.SceneState) RunSummary {
	return RunSummary{
		RunID:      s.ID,
		Title:      s.Seed.Title,
		Scenario:   s.Seed.Scenario,
		Turn:       s.CurrentTurn,
		TotalTurns: s.TotalTurns,
		Concluded:  s.IsConcluded,
		UpdatedAt:  s.UpdatedAt,
	}
}

// Storage defines a unified interface for all storage operations.
// Run snapshots live in Redis; scenarios and narrators are read from the
// filesystem.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Run operations. SaveSnapshot stores the latest scene and appends the
	// snapshot's event, if any, to the run timeline.
	orchestrator.Recorder
	LoadRun(ctx context.Context, id uuid.UUID) (*state.SceneState, error)
	LoadEvents(ctx context.Context, id uuid.UUID) ([]state.Event, error)
	ListRuns(ctx context.Context) ([]RunSummary, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error

	// Scenario operations (filesystem-backed). ListScenarios maps scenario
	// names to file names.
	ListScenarios(ctx context.Context) (map[string]string, error)
	GetScenario(ctx context.Context, filename string) (*scenario.Scenario, error)

	// Narrator operations (filesystem-backed)
	GetNarrator(ctx context.Context, narratorID string) (*scenario.Narrator, error)
	ListNarrators(ctx context.Context) ([]string, error)
}
