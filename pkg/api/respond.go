package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/entrhq/pilot/pkg/types"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

type errorBody struct {
	Error string          `json:"error"`
	Kind  types.ErrorKind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debugLog.Warnf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeErr maps a typed error onto its HTTP status.
// Untyped errors are reported as internal without their detail.
func writeErr(w http.ResponseWriter, err error) {
	kind, ok := types.KindOf(err)
	if !ok {
		debugLog.Errorf("Request failed: %v", err)
		ie := types.NewInternalError("internal error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: ie.Message, Kind: ie.Kind})
		return
	}
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		debugLog.Errorf("Request failed: %v", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.ErrKindBadRequest, types.ErrKindResponseParse:
		return http.StatusBadRequest
	case types.ErrKindAuth:
		return http.StatusUnauthorized
	case types.ErrKindForbidden, types.ErrKindURLNotAllowed:
		return http.StatusForbidden
	case types.ErrKindNotFound:
		return http.StatusNotFound
	case types.ErrKindConflict, types.ErrKindCancelled:
		return http.StatusConflict
	case types.ErrKindQuota:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON body into v. Unknown fields are rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return types.NewBadRequestError("request body is empty", nil)
		}
		return types.NewBadRequestError(fmt.Sprintf("invalid request body: %v", err), err)
	}
	return nil
}
