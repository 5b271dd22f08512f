package api

import (
	"net/http"
)

type inferenceHandler struct {
	router InferenceControl
}

// Get handles GET /v1/inference
func (h *inferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.router.Status(r.Context()))
}

type preferenceRequest struct {
	Preference string `json:"preference"`
}

// Put handles PUT /v1/inference
func (h *inferenceHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.router.SetPreference(req.Preference); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.router.Status(r.Context()))
}
