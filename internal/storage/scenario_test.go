package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jwebster45206/scene-engine/pkg/storage"
)

const testScenario = `{
	"name": "bus_stop",
	"title": "The Last Bus",
	"catalog": "generic",
	"narrator_id": "noir",
	"characters": [{"name": "Lina", "description": "A nurse"}, {"name": "Omar", "description": "A student"}]
}`

const testNarrator = `{"name": "Noir", "prompts": ["Speak in hard-boiled fragments."]}`

func TestRedisStorage_Scenarios(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "scenarios", "bus_stop.json"), testScenario)
	writeFile(t, filepath.Join(dir, "scenarios", "broken.json"), `{not json`)
	writeFile(t, filepath.Join(dir, "narrators", "noir.json"), testNarrator)

	rs, _ := setupTestStorage(t, dir)
	ctx := context.Background()

	list, err := rs.ListScenarios(ctx)
	if err != nil {
		t.Fatalf("ListScenarios failed: %v", err)
	}
	if len(list) != 1 || list["bus_stop"] != "bus_stop.json" {
		t.Errorf("ListScenarios = %v", list)
	}

	s, err := rs.GetScenario(ctx, "bus_stop.json")
	if err != nil {
		t.Fatalf("GetScenario failed: %v", err)
	}
	if s.FileName != "bus_stop.json" {
		t.Errorf("Expected filename bus_stop.json, got %q", s.FileName)
	}
	if s.Narrator == nil || s.Narrator.ID != "noir" {
		t.Fatalf("Expected narrator noir to be attached, got %+v", s.Narrator)
	}

	if _, err := rs.GetScenario(ctx, "missing.json"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := rs.GetScenario(ctx, "broken.json"); err == nil {
		t.Error("Expected error for malformed scenario")
	}
}

func TestRedisStorage_Narrators(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "narrators", "noir.json"), testNarrator)
	writeFile(t, filepath.Join(dir, "narrators", "empty.json"), `{"name": "Empty", "prompts": []}`)

	rs, _ := setupTestStorage(t, dir)
	ctx := context.Background()

	ids, err := rs.ListNarrators(ctx)
	if err != nil {
		t.Fatalf("ListNarrators failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 narrators, got %v", ids)
	}

	n, err := rs.GetNarrator(ctx, "")
	if n != nil || err != nil {
		t.Errorf("Expected nil narrator for empty id, got %v, %v", n, err)
	}
	if _, err := rs.GetNarrator(ctx, "empty"); err == nil {
		t.Error("Expected validation error for narrator without prompts")
	}
	if _, err := rs.GetNarrator(ctx, "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRedisStorage_NoNarratorDir(t *testing.T) {
	rs, _ := setupTestStorage(t, t.TempDir())
	ids, err := rs.ListNarrators(context.Background())
	if err != nil || len(ids) != 0 {
		t.Errorf("ListNarrators = %v, %v; want empty", ids, err)
	}
}
