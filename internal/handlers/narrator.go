package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/scene-engine/pkg/storage"
)

type NarratorHandler struct {
	log     *slog.Logger
	storage storage.Storage
}

func NewNarratorHandler(log *slog.Logger, storage storage.Storage) *NarratorHandler {
	return &NarratorHandler{
		log:     log,
		storage: storage,
	}
}

func (h *NarratorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.log, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if r.URL.Path == "/v1/narrators" || r.URL.Path == "/v1/narrators/" {
		h.ListNarrators(w, r)
		return
	}
	h.handleGet(w, r)
}

// ListNarrators lists narrator summaries. Narrators that fail to load are skipped.
func (h *NarratorHandler) ListNarrators(w http.ResponseWriter, r *http.Request) {
	narratorIDs, err := h.storage.ListNarrators(r.Context())
	if err != nil {
		h.log.Error("Failed to list narrators", "error", err)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to list narrators")
		return
	}

	narratorList := make([]map[string]any, 0, len(narratorIDs))
	for _, narratorID := range narratorIDs {
		narrator, err := h.storage.GetNarrator(r.Context(), narratorID)
		if err != nil || narrator == nil {
			h.log.Warn("Failed to load narrator", "error", err, "id", narratorID)
			continue
		}
		narratorList = append(narratorList, map[string]any{
			"id":          narrator.ID,
			"name":        narrator.Name,
			"description": narrator.Description,
		})
	}
	writeJSON(w, h.log, http.StatusOK, narratorList)
}

func (h *NarratorHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r.URL.Path, "/v1/narrators/")
	if !ok {
		writeError(w, h.log, http.StatusBadRequest, "Invalid narrator ID")
		return
	}

	narrator, err := h.storage.GetNarrator(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && narrator == nil) {
		writeError(w, h.log, http.StatusNotFound, "Narrator not found")
		return
	}
	if err != nil {
		h.log.Error("Failed to load narrator", "error", err, "id", id)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to load narrator")
		return
	}
	writeJSON(w, h.log, http.StatusOK, narrator)
}
