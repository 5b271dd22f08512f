package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/entrhq/pilot/pkg/agent/memory"
	"github.com/entrhq/pilot/pkg/types"
	"github.com/entrhq/pilot/pkg/workspace"
)

type workspaceHandler struct {
	spaces *workspace.Store
	memory *memory.Store
}

// List handles GET /v1/workspaces
func (h *workspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.spaces.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if all == nil {
		all = []*workspace.Workspace{}
	}
	writeJSON(w, http.StatusOK, all)
}

type createWorkspaceRequest struct {
	workspace.Config
	ID string `json:"id"`
}

// Create handles POST /v1/workspaces
func (h *workspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ws, err := h.spaces.Create(r.Context(), req.ID, req.Config)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

// Get handles GET /v1/workspaces/{id}
func (h *workspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, err := h.spaces.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

type autonomyRequest struct {
	Level int `json:"level"`
}

// SetAutonomy handles PUT /v1/workspaces/{id}/autonomy
func (h *workspaceHandler) SetAutonomy(w http.ResponseWriter, r *http.Request) {
	var req autonomyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ws, err := h.spaces.SetAutonomyLevel(r.Context(), chi.URLParam(r, "id"), req.Level)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// MemoryStats handles GET /v1/workspaces/{id}/memory/stats
func (h *workspaceHandler) MemoryStats(w http.ResponseWriter, r *http.Request) {
	if h.memory == nil {
		writeErr(w, types.NewNotFoundError("memory store is not configured", nil))
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.spaces.Get(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	stats, err := h.memory.GetMemoryStats(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
