package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

func newScene() *state.SceneState {
	return state.New(
		state.Seed{Title: "Night Market", Scenario: "night_market.json"},
		[]state.Character{{Name: "Farida"}, {Name: "Tariq"}},
		10,
		state.World{Levels: map[string]int{"tension": 4}},
		4,
	)
}

func TestMockStorage_SnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMockStorage()
	s := newScene()

	_, ev := s.RecordTalk("Farida", "Not at these prices.", time.Now())
	if err := m.SaveSnapshot(ctx, orchestrator.Snapshot{RunID: s.ID, Turn: 1, Scene: s, Event: &ev}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	s.RecordTalk("Tariq", "Then walk away.", time.Now())

	got, err := m.LoadRun(ctx, s.ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if got.CurrentTurn != 1 {
		t.Errorf("stored turn = %d, want 1", got.CurrentTurn)
	}
	events, err := m.LoadEvents(ctx, s.ID)
	if err != nil {
		t.Fatalf("LoadEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Speaker != "Farida" {
		t.Errorf("events = %+v", events)
	}
	if n := len(m.Snapshots()); n != 1 {
		t.Errorf("snapshots = %d, want 1", n)
	}
}

func TestMockStorage_NotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMockStorage()

	if _, err := m.LoadRun(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadRun error = %v, want ErrNotFound", err)
	}
	if _, err := m.GetScenario(ctx, "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetScenario error = %v, want ErrNotFound", err)
	}
	if n, err := m.GetNarrator(ctx, ""); n != nil || err != nil {
		t.Errorf("GetNarrator(\"\") = %v, %v; want nil, nil", n, err)
	}
}

func TestMockStorage_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMockStorage()
	m.AddScenario("night_market.json", &scenario.Scenario{Name: "night_market"})

	a, b := newScene(), newScene()
	b.UpdatedAt = a.UpdatedAt.Add(time.Minute)
	for _, s := range []*state.SceneState{a, b} {
		if err := m.SaveSnapshot(ctx, orchestrator.Snapshot{RunID: s.ID, Scene: s}); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
	}

	runs, _ := m.ListRuns(ctx)
	if len(runs) != 2 || runs[0].RunID != b.ID {
		t.Fatalf("ListRuns = %+v, want newest first", runs)
	}
	if runs[0].Title != "Night Market" || runs[0].TotalTurns != 10 {
		t.Errorf("summary = %+v", runs[0])
	}

	if err := m.DeleteRun(ctx, a.ID); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	runs, _ = m.ListRuns(ctx)
	if len(runs) != 1 {
		t.Errorf("runs after delete = %d, want 1", len(runs))
	}

	list, _ := m.ListScenarios(ctx)
	if list["night_market"] != "night_market.json" {
		t.Errorf("ListScenarios = %v", list)
	}
}

func TestMockStorage_SaveError(t *testing.T) {
	m := NewMockStorage()
	m.SetSaveError(errors.New("disk full"))
	s := newScene()
	if err := m.SaveSnapshot(context.Background(), orchestrator.Snapshot{RunID: s.ID, Scene: s}); err == nil {
		t.Error("expected save error")
	}
}
