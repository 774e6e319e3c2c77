package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/forgebench/infersupervisor/internal/apierrors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError converts err to its display shape and an appropriate HTTP
// status before writing the JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	display := apierrors.ToDisplay(err)
	writeJSON(w, statusFor(display.Code, err), display)
}

func statusFor(code apierrors.Code, err error) int {
	if reason, ok := apierrors.ReasonOf(err); ok {
		switch reason {
		case apierrors.ReasonBusy, apierrors.ReasonSavedStatePending, apierrors.ReasonAlreadyRunning:
			return http.StatusConflict
		case apierrors.ReasonUnknownServer, apierrors.ReasonUnknownGeneration:
			return http.StatusNotFound
		}
	}
	switch code {
	case apierrors.CodeModelNotFound:
		return http.StatusNotFound
	case apierrors.CodePortInUse, apierrors.CodeInsufficientResources:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
