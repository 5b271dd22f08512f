package api

import (
	"net/http"

	"github.com/entrhq/pilot/pkg/inference"
)

type healthResponse struct {
	Inference *inference.Status `json:"inference,omitempty"`
	Status    string            `json:"status"`
	Tasks     int               `json:"tasks"`
}

type healthHandler struct {
	tasks     *TaskManager
	inference InferenceControl
}

func newHealthHandler(d Deps) *healthHandler {
	return &healthHandler{tasks: d.Tasks, inference: d.Inference}
}

// Health handles GET /health. The server is degraded when no inference
// backend can serve the next call.
func (h *healthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.tasks != nil {
		resp.Tasks = len(h.tasks.List())
	}
	if h.inference != nil {
		st := h.inference.Status(r.Context())
		resp.Inference = &st
		if st.CurrentProvider == inference.BackendRemote && st.RemoteModel == "" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
