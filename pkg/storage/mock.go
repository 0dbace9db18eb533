package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]*state.SceneState
	events    map[uuid.UUID][]state.Event
	snapshots []orchestrator.Snapshot
	scenarios map[string]*scenario.Scenario
	narrators map[string]*scenario.Narrator
	pingError error
	saveError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		runs:      make(map[uuid.UUID]*state.SceneState),
		events:    make(map[uuid.UUID][]state.Event),
		scenarios: make(map[string]*scenario.Scenario),
		narrators: make(map[string]*scenario.Narrator),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError configures the mock to fail on SaveSnapshot
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

// SaveSnapshot stores a deep copy of the scene so later turns do not leak
// into earlier snapshots.
func (m *MockStorage) SaveSnapshot(ctx context.Context, snap orchestrator.Snapshot) error {
	if snap.Scene == nil {
		return errors.New("snapshot scene cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	scene, err := clone(snap.Scene)
	if err != nil {
		return err
	}
	m.runs[snap.RunID] = scene
	if snap.Event != nil {
		m.events[snap.RunID] = append(m.events[snap.RunID], *snap.Event)
	}
	snap.Scene = scene
	m.snapshots = append(m.snapshots, snap)
	return nil
}

// LoadRun mocks loading a run
func (m *MockStorage) LoadRun(ctx context.Context, id uuid.UUID) (*state.SceneState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// LoadEvents mocks loading a run timeline
func (m *MockStorage) LoadEvents(ctx context.Context, id uuid.UUID) ([]state.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.runs[id]; !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return slices.Clone(m.events[id]), nil
}

// ListRuns mocks listing runs, newest first
func (m *MockStorage) ListRuns(ctx context.Context) ([]RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RunSummary, 0, len(m.runs))
	for _, s := range m.runs {
		out = append(out, Summarize(s))
	}
	slices.SortFunc(out, func(a, b RunSummary) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, nil
}

// DeleteRun mocks deleting a run
func (m *MockStorage) DeleteRun(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, id)
	delete(m.events, id)
	return nil
}

// Snapshots returns every snapshot saved so far
func (m *MockStorage) Snapshots() []orchestrator.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.snapshots)
}

// AddScenario adds a scenario to the mock storage
func (m *MockStorage) AddScenario(filename string, s *scenario.Scenario) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenarios[filename] = s
}

// ListScenarios mocks listing scenarios
func (m *MockStorage) ListScenarios(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.scenarios))
	for filename, s := range m.scenarios {
		out[s.Name] = filename
	}
	return out, nil
}

// GetScenario mocks getting a scenario
func (m *MockStorage) GetScenario(ctx context.Context, filename string) (*scenario.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scenarios[filename]
	if !ok {
		return nil, fmt.Errorf("scenario %s: %w", filename, ErrNotFound)
	}
	return s, nil
}

// AddNarrator adds a narrator to the mock storage
func (m *MockStorage) AddNarrator(n *scenario.Narrator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.narrators[n.ID] = n
}

// GetNarrator mocks getting a narrator. An empty ID means no narrator.
func (m *MockStorage) GetNarrator(ctx context.Context, narratorID string) (*scenario.Narrator, error) {
	if narratorID == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.narrators[narratorID]
	if !ok {
		return nil, fmt.Errorf("narrator %s: %w", narratorID, ErrNotFound)
	}
	return n, nil
}

// ListNarrators mocks listing narrators
func (m *MockStorage) ListNarrators(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.narrators))
	for id := range m.narrators {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
