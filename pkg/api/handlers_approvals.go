package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/entrhq/pilot/pkg/agent/approval"
	"github.com/entrhq/pilot/pkg/types"
)

type approvalHandler struct {
	gate *approval.Gate
}

// List handles GET /v1/approvals
func (h *approvalHandler) List(w http.ResponseWriter, r *http.Request) {
	pending := h.gate.Pending()
	if pending == nil {
		pending = []*approval.Request{}
	}
	writeJSON(w, http.StatusOK, pending)
}

type decisionRequest struct {
	Reason   string `json:"reason,omitempty"`
	Approved bool   `json:"approved"`
}

// Respond handles POST /v1/approvals/{id}
func (h *approvalHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if !h.gate.Respond(approval.Response{RequestID: id, Approved: req.Approved, Reason: req.Reason}) {
		writeErr(w, types.NewNotFoundError("no pending approval "+id, nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "approved": req.Approved})
}
