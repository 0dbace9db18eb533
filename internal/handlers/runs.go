package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/pkg/queue"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/storage"
)

// RunQueue accepts run requests for the workers.
type RunQueue interface {
	Enqueue(ctx context.Context, req *queue.Request) error
	Depth(ctx context.Context) (int, error)
}

// QueuedPublisher announces a queued request on the run's event channel.
type QueuedPublisher interface {
	PublishRequestQueued(ctx context.Context, runID uuid.UUID, requestID, scenario string) error
}

// CreateRunRequest is the body of POST /v1/runs.
type CreateRunRequest struct {
	Scenario string             `json:"scenario,omitempty"`
	Seed     *scenario.Scenario `json:"seed,omitempty"`
	MaxTurns int                `json:"max_turns,omitempty"`
}

// CreateRunResponse is returned once a run is queued.
type CreateRunResponse struct {
	RequestID  string    `json:"request_id"`
	RunID      uuid.UUID `json:"run_id"`
	Status     string    `json:"status"`
	QueueDepth int       `json:"queue_depth"`
}

// RunHandler serves scene runs:
//
//	POST   /v1/runs             queue a run
//	GET    /v1/runs             list stored runs
//	GET    /v1/runs/{id}        latest snapshot
//	GET    /v1/runs/{id}/events timeline
//	DELETE /v1/runs/{id}        remove a stored run
type RunHandler struct {
	storage   storage.Storage
	queue     RunQueue
	publisher QueuedPublisher
	logger    *slog.Logger
}

// NewRunHandler builds the run handler. publisher may be nil.
func NewRunHandler(storage storage.Storage, queue RunQueue, publisher QueuedPublisher, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		storage:   storage,
		queue:     queue,
		publisher: publisher,
		logger:    logger,
	}
}

func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/runs"), "/")
	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	parts := strings.Split(rest, "/")
	runID, err := uuid.Parse(parts[0])
	if err != nil || len(parts) > 2 || (len(parts) == 2 && parts[1] != "events") {
		writeError(w, h.logger, http.StatusNotFound, "Not found")
		return
	}

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		h.handleEvents(w, r, runID)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, runID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, r, runID)
	default:
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *RunHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("Invalid run request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Scenario == "" && body.Seed == nil {
		writeError(w, h.logger, http.StatusBadRequest, "scenario or seed is required")
		return
	}
	if body.MaxTurns < 0 {
		writeError(w, h.logger, http.StatusBadRequest, "max_turns must not be negative")
		return
	}

	if body.Seed != nil {
		if err := body.Seed.Validate(); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "Invalid seed: "+err.Error())
			return
		}
	} else if _, err := h.storage.GetScenario(r.Context(), body.Scenario); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Scenario not found")
			return
		}
		h.logger.Error("Failed to load scenario", "error", err, "scenario", body.Scenario)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load scenario")
		return
	}

	req := queue.NewRunScene(body.Scenario, body.MaxTurns)
	req.Seed = body.Seed
	if err := h.queue.Enqueue(r.Context(), req); err != nil {
		h.logger.Error("Failed to enqueue run", "error", err, "run_id", req.RunID)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to queue run")
		return
	}

	label := req.Scenario
	if req.Seed != nil {
		label = req.Seed.Name
	}
	if h.publisher != nil {
		if err := h.publisher.PublishRequestQueued(r.Context(), req.RunID, req.RequestID, label); err != nil {
			h.logger.Warn("Failed to publish queued event", "error", err, "run_id", req.RunID)
		}
	}

	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		h.logger.Warn("Failed to read queue depth", "error", err)
	}

	h.logger.Info("Run queued",
		"run_id", req.RunID,
		"request_id", req.RequestID,
		"scenario", label)
	writeJSON(w, h.logger, http.StatusAccepted, CreateRunResponse{
		RequestID:  req.RequestID,
		RunID:      req.RunID,
		Status:     "queued",
		QueueDepth: depth,
	})
}

func (h *RunHandler) handleList(w http.ResponseWriter, r *http.Request) {
	runs, err := h.storage.ListRuns(r.Context())
	if err != nil {
		h.logger.Error("Failed to list runs", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []storage.RunSummary{}
	}
	writeJSON(w, h.logger, http.StatusOK, runs)
}

func (h *RunHandler) handleGet(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	s, err := h.storage.LoadRun(r.Context(), runID)
	if err != nil {
		h.storageError(w, err, runID)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, s)
}

func (h *RunHandler) handleEvents(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	events, err := h.storage.LoadEvents(r.Context(), runID)
	if err != nil {
		h.storageError(w, err, runID)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, events)
}

func (h *RunHandler) handleDelete(w http.ResponseWriter, r *http.Request, runID uuid.UUID) {
	if err := h.storage.DeleteRun(r.Context(), runID); err != nil {
		h.storageError(w, err, runID)
		return
	}
	h.logger.Info("Run deleted", "run_id", runID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RunHandler) storageError(w http.ResponseWriter, err error, runID uuid.UUID) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "Run not found")
		return
	}
	h.logger.Error("Run storage error", "error", err, "run_id", runID)
	writeError(w, h.logger, http.StatusInternalServerError, "Failed to access run")
}
