package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/internal/handlers"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		"event: connected",
		`data: {"run_id": "x"}`,
		"",
		": keepalive",
		"",
		"event: request.completed",
		`data: {"type": "request.completed", "request_id": "req-1", "data": {"turns": 4}}`,
		"",
	}, "\n")

	ch := make(chan SSEEvent, 4)
	if err := readSSE(context.Background(), strings.NewReader(stream), ch); err != nil {
		t.Fatalf("readSSE failed: %v", err)
	}
	close(ch)

	var got []SSEEvent
	for ev := range ch {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if got[0].Type != "connected" || got[1].Type != "request.completed" {
		t.Errorf("Unexpected event types: %q, %q", got[0].Type, got[1].Type)
	}
	if got[1].Event.RequestID != "req-1" {
		t.Errorf("Expected request_id req-1, got %q", got[1].Event.RequestID)
	}
}

func TestCreateRunAndListScenarios(t *testing.T) {
	runID := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/scenarios", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"b": "b.json", "a": "a.json"})
	})
	mux.HandleFunc("/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		var req handlers.CreateRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Scenario != "a.json" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(handlers.ErrorResponse{Error: "bad scenario"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(handlers.CreateRunResponse{RunID: runID, Status: "queued"})
	})
	mux.HandleFunc("/v1/runs/"+runID.String()+"/events", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]state.Event{{Type: state.EventNarration, Content: "Rain."}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	names, files, err := listScenarios(srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("listScenarios failed: %v", err)
	}
	if strings.Join(names, ",") != "a,b" || files["a"] != "a.json" {
		t.Errorf("Unexpected scenarios: %v %v", names, files)
	}

	created, err := createRun(srv.Client(), srv.URL, "a.json")
	if err != nil {
		t.Fatalf("createRun failed: %v", err)
	}
	if created.RunID != runID {
		t.Errorf("Expected run %s, got %s", runID, created.RunID)
	}

	if _, err := createRun(srv.Client(), srv.URL, "z.json"); err == nil || !strings.Contains(err.Error(), "bad scenario") {
		t.Errorf("Expected API error, got %v", err)
	}

	evs, err := getEvents(srv.Client(), srv.URL, runID)
	if err != nil || len(evs) != 1 || evs[0].Content != "Rain." {
		t.Errorf("getEvents = %v, %v", evs, err)
	}
}

func TestRenderEvents(t *testing.T) {
	s := state.New(state.Seed{Title: "Roadside Dispute"}, []state.Character{{Name: "Amir Khan"}}, 4, state.World{}, 4)
	evs := []state.Event{
		{Type: state.EventNarration, Content: "Horns blare."},
		{Type: state.EventAction, Speaker: "Amir Khan", Content: "He points at the dent.",
			Action: &state.ActionRecord{Kind: "EXAMINE_DAMAGE", Actor: "Amir Khan"}},
		{Type: state.EventDialogue, Speaker: "Amir Khan", Content: "Not my fault!"},
	}
	out := renderEvents(s, evs, 40)
	for _, want := range []string{"ROADSIDE DISPUTE", "Horns blare.", "EXAMINE_DAMAGE", "Not my fault!"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q:\n%s", want, out)
		}
	}
	if !strings.Contains(renderEvents(nil, nil, 40), "Waiting") {
		t.Error("Expected waiting message for an empty run")
	}
}
