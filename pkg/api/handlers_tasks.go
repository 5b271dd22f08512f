package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type taskHandler struct {
	tasks *TaskManager
}

// List handles GET /v1/tasks
func (h *taskHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tasks.List())
}

// Create handles POST /v1/tasks
func (h *taskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	v, err := h.tasks.Submit(req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, v)
}

// Get handles GET /v1/tasks/{id}
func (h *taskHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.reply(w)(h.tasks.Get(chi.URLParam(r, "id")))
}

// Pause handles POST /v1/tasks/{id}/pause
func (h *taskHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.reply(w)(h.tasks.Pause(chi.URLParam(r, "id")))
}

// Resume handles POST /v1/tasks/{id}/resume
func (h *taskHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.reply(w)(h.tasks.Resume(chi.URLParam(r, "id")))
}

// Cancel handles POST /v1/tasks/{id}/cancel
func (h *taskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.reply(w)(h.tasks.Cancel(chi.URLParam(r, "id")))
}

type followUpRequest struct {
	Task string `json:"task"`
}

// FollowUp handles POST /v1/tasks/{id}/followup
func (h *taskHandler) FollowUp(w http.ResponseWriter, r *http.Request) {
	var req followUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	v, err := h.tasks.FollowUp(chi.URLParam(r, "id"), req.Task)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, v)
}

func (h *taskHandler) reply(w http.ResponseWriter) func(TaskView, error) {
	return func(v TaskView, err error) {
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}
