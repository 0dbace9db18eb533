package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
	"github.com/jwebster45206/scene-engine/pkg/queue"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
	"github.com/jwebster45206/scene-engine/pkg/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQueue struct {
	requests []*queue.Request
	err      error
	depthErr error
}

func (q *fakeQueue) Enqueue(ctx context.Context, req *queue.Request) error {
	if q.err != nil {
		return q.err
	}
	q.requests = append(q.requests, req)
	return nil
}

func (q *fakeQueue) Depth(ctx context.Context) (int, error) {
	return len(q.requests), q.depthErr
}

type fakePublisher struct {
	runs []uuid.UUID
}

func (p *fakePublisher) PublishRequestQueued(ctx context.Context, runID uuid.UUID, requestID, scenario string) error {
	p.runs = append(p.runs, runID)
	return nil
}

func testSeed() *scenario.Scenario {
	return &scenario.Scenario{
		Name:    "roadside_dispute",
		Title:   "Roadside Dispute",
		Catalog: "roadside_dispute",
		Characters: []state.Character{
			{Name: "Amir Khan", Description: "A rickshaw driver."},
			{Name: "Constable Raza", Description: "A traffic constable."},
		},
	}
}

func storedRun(t *testing.T, store *storage.MockStorage) *state.SceneState {
	t.Helper()
	s := state.New(state.Seed{Title: "Roadside Dispute"}, testSeed().Characters, 6, state.World{}, 4)
	ev := s.AddNarration("Horns blare at the junction.", false, s.CreatedAt)
	require.NoError(t, store.SaveSnapshot(context.Background(), orchestrator.Snapshot{
		RunID: s.ID,
		Scene: s,
		Event: &ev,
	}))
	return s
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		pingErr        error
		depthErr       error
		expectedStatus int
		expectedHealth string
	}{
		{"all healthy", nil, nil, http.StatusOK, "healthy"},
		{"storage down", errors.New("connection refused"), nil, http.StatusServiceUnavailable, "degraded"},
		{"queue down", nil, errors.New("connection refused"), http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMockStorage()
			store.SetPingError(tt.pingErr)
			handler := NewHealthHandler(store, &fakeQueue{depthErr: tt.depthErr}, quietLogger())

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected Content-Type application/json, got %s", ct)
			}
			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			if resp.Status != tt.expectedHealth {
				t.Errorf("Expected status %q, got %q", tt.expectedHealth, resp.Status)
			}
			if resp.Service != "scene-engine" {
				t.Errorf("Expected service scene-engine, got %q", resp.Service)
			}
		})
	}
}

func TestScenarioHandler(t *testing.T) {
	store := storage.NewMockStorage()
	store.AddScenario("roadside_dispute.json", testSeed())
	handler := NewScenarioHandler(quietLogger(), store)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"list", http.MethodGet, "/v1/scenarios", http.StatusOK},
		{"get", http.MethodGet, "/v1/scenarios/roadside_dispute.json", http.StatusOK},
		{"missing", http.MethodGet, "/v1/scenarios/nope.json", http.StatusNotFound},
		{"traversal", http.MethodGet, "/v1/scenarios/..%2Fetc", http.StatusBadRequest},
		{"post", http.MethodPost, "/v1/scenarios", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
		})
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/scenarios", nil))
	var list map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Equal(t, map[string]string{"roadside_dispute": "roadside_dispute.json"}, list)
}

func TestNarratorHandler(t *testing.T) {
	store := storage.NewMockStorage()
	store.AddNarrator(&scenario.Narrator{ID: "documentary", Name: "Documentary", Prompts: []string{"Observe calmly."}})
	handler := NewNarratorHandler(quietLogger(), store)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/narrators", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "documentary", list[0]["id"])

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/narrators/documentary", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/narrators/noir", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRunHandler_Create(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		queueErr       error
		expectedStatus int
		expectQueued   bool
	}{
		{"scenario file", `{"scenario": "roadside_dispute.json", "max_turns": 8}`, nil, http.StatusAccepted, true},
		{"inline seed", `{"seed": {"name": "inline", "catalog": "generic", "characters": [{"name": "A"}]}}`, nil, http.StatusAccepted, true},
		{"invalid seed", `{"seed": {"name": "inline", "catalog": "generic"}}`, nil, http.StatusBadRequest, false},
		{"unknown scenario", `{"scenario": "nope.json"}`, nil, http.StatusNotFound, false},
		{"nothing to run", `{}`, nil, http.StatusBadRequest, false},
		{"negative turns", `{"scenario": "roadside_dispute.json", "max_turns": -1}`, nil, http.StatusBadRequest, false},
		{"bad json", `{"scenario":`, nil, http.StatusBadRequest, false},
		{"queue down", `{"scenario": "roadside_dispute.json"}`, errors.New("redis down"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMockStorage()
			store.AddScenario("roadside_dispute.json", testSeed())
			q := &fakeQueue{err: tt.queueErr}
			pub := &fakePublisher{}
			handler := NewRunHandler(store, q, pub, quietLogger())

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/runs", strings.NewReader(tt.body)))

			if rr.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
			if !tt.expectQueued {
				assert.Empty(t, q.requests)
				assert.Empty(t, pub.runs)
				return
			}
			require.Len(t, q.requests, 1)
			var resp CreateRunResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, q.requests[0].RunID, resp.RunID)
			assert.Equal(t, "queued", resp.Status)
			assert.Equal(t, 1, resp.QueueDepth)
			assert.Equal(t, []uuid.UUID{resp.RunID}, pub.runs)
			assert.NoError(t, q.requests[0].Validate())
		})
	}
}

func TestRunHandler_Read(t *testing.T) {
	store := storage.NewMockStorage()
	s := storedRun(t, store)
	handler := NewRunHandler(store, &fakeQueue{}, nil, quietLogger())

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"list", http.MethodGet, "/v1/runs", http.StatusOK},
		{"get", http.MethodGet, "/v1/runs/" + s.ID.String(), http.StatusOK},
		{"events", http.MethodGet, "/v1/runs/" + s.ID.String() + "/events", http.StatusOK},
		{"unknown run", http.MethodGet, "/v1/runs/" + uuid.NewString(), http.StatusNotFound},
		{"bad id", http.MethodGet, "/v1/runs/not-a-uuid", http.StatusNotFound},
		{"unknown sub-resource", http.MethodGet, "/v1/runs/" + s.ID.String() + "/cast", http.StatusNotFound},
		{"put", http.MethodPut, "/v1/runs/" + s.ID.String(), http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			if rr.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
		})
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/runs/"+s.ID.String()+"/events", nil))
	var events []state.Event
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, "Horns blare at the junction.", events[0].Content)
}

func TestRunHandler_Delete(t *testing.T) {
	store := storage.NewMockStorage()
	s := storedRun(t, store)
	handler := NewRunHandler(store, &fakeQueue{}, nil, quietLogger())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/runs/"+s.ID.String(), nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	_, err := store.LoadRun(context.Background(), s.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
