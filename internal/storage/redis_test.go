package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
	"github.com/jwebster45206/scene-engine/pkg/state"
	"github.com/jwebster45206/scene-engine/pkg/storage"
)

func setupTestStorage(t *testing.T, dataDir string) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rs := NewRedisStorage("redis://"+mr.Addr(), dataDir, logger)
	t.Cleanup(func() {
		_ = rs.Close()
		mr.Close()
	})
	return rs, mr
}

func newTestScene() *state.SceneState {
	return state.New(
		state.Seed{Title: "Roadside Dispute", Scenario: "roadside_dispute.json"},
		[]state.Character{{Name: "Ahmed Malik"}, {Name: "Saleem"}},
		12,
		state.World{Levels: map[string]int{"tension": 5}},
		4,
	)
}

func TestRedisStorage_SaveAndLoadRun(t *testing.T) {
	rs, mr := setupTestStorage(t, t.TempDir())
	ctx := context.Background()

	s := newTestScene()
	_, ev := s.RecordTalk("Ahmed Malik", "You hit my car!", time.Now())
	snap := orchestrator.Snapshot{RunID: s.ID, Turn: s.CurrentTurn, Phase: "update_memory", Scene: s, Event: &ev, At: time.Now()}
	if err := rs.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	if ttl := mr.TTL(runKey(s.ID)); ttl != DefaultRunTTL {
		t.Errorf("run TTL = %v, want %v", ttl, DefaultRunTTL)
	}

	loaded, err := rs.LoadRun(ctx, s.ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.ID != s.ID {
		t.Errorf("Expected ID %v, got %v", s.ID, loaded.ID)
	}
	if loaded.CurrentTurn != 1 {
		t.Errorf("Expected turn 1, got %d", loaded.CurrentTurn)
	}
	if loaded.World.Levels["tension"] != 5 {
		t.Errorf("Expected tension 5, got %d", loaded.World.Levels["tension"])
	}

	// A second snapshot appends to the timeline.
	_, ev2 := s.RecordTalk("Saleem", "You braked for no reason!", time.Now())
	snap.Event, snap.Turn = &ev2, s.CurrentTurn
	if err := rs.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	events, err := rs.LoadEvents(ctx, s.ID)
	if err != nil {
		t.Fatalf("LoadEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[1].Speaker != "Saleem" || events[1].Turn != 2 {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestRedisStorage_NotFound(t *testing.T) {
	rs, _ := setupTestStorage(t, t.TempDir())
	ctx := context.Background()

	id := uuid.New()
	if _, err := rs.LoadRun(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("LoadRun error = %v, want ErrNotFound", err)
	}
	if _, err := rs.LoadEvents(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("LoadEvents error = %v, want ErrNotFound", err)
	}
}

func TestRedisStorage_ListRuns(t *testing.T) {
	rs, mr := setupTestStorage(t, t.TempDir())
	ctx := context.Background()

	older, newer := newTestScene(), newTestScene()
	base := time.Now()
	for i, s := range []*state.SceneState{older, newer} {
		snap := orchestrator.Snapshot{RunID: s.ID, Scene: s, At: base.Add(time.Duration(i) * time.Minute)}
		if err := rs.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot failed: %v", err)
		}
	}

	runs, err := rs.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != newer.ID {
		t.Errorf("Expected newest run first")
	}
	if runs[0].Title != "Roadside Dispute" || runs[0].Scenario != "roadside_dispute.json" {
		t.Errorf("unexpected summary: %+v", runs[0])
	}

	// Expired runs drop out of the listing and the index.
	mr.Del(runKey(older.ID))
	runs, err = rs.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("Expected 1 run after expiry, got %d", len(runs))
	}
	members, _ := mr.ZMembers(runIndexKey)
	if len(members) != 1 {
		t.Errorf("Expected index pruned to 1 member, got %v", members)
	}
}

func TestRedisStorage_DeleteRun(t *testing.T) {
	rs, mr := setupTestStorage(t, t.TempDir())
	ctx := context.Background()

	s := newTestScene()
	_, ev := s.RecordTalk("Saleem", "Fine.", time.Now())
	if err := rs.SaveSnapshot(ctx, orchestrator.Snapshot{RunID: s.ID, Scene: s, Event: &ev, At: time.Now()}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := rs.DeleteRun(ctx, s.ID); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if mr.Exists(runKey(s.ID)) || mr.Exists(eventsKey(s.ID)) {
		t.Error("Expected run keys to be deleted")
	}
	if _, err := rs.LoadRun(ctx, s.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisStorage_SetTTL(t *testing.T) {
	rs, mr := setupTestStorage(t, t.TempDir())
	rs.SetTTL(time.Minute)
	rs.SetTTL(0)

	s := newTestScene()
	if err := rs.SaveSnapshot(context.Background(), orchestrator.Snapshot{RunID: s.ID, Scene: s, At: time.Now()}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if ttl := mr.TTL(runKey(s.ID)); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
