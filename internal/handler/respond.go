package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/credvault/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && log != nil {
		log.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError maps the service error taxonomy to HTTP statuses. Anything
// outside the taxonomy is a 500 with a generic body; the cause stays in the
// logs only.
func writeError(w http.ResponseWriter, err error, log *slog.Logger) {
	var status int
	var msg string
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		status, msg = http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, domain.ErrForbidden):
		// Denials carry the denying rule; losing it would hide which check
		// rejected the request.
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrConflict):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrInvalidReference):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		status, msg = http.StatusInternalServerError, "internal error"
		if log != nil {
			log.Error("request failed", slog.String("error", err.Error()))
		}
	}
	writeJSON(w, status, errorResponse{Error: msg}, log)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any, log *slog.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"}, log)
		return false
	}
	return true
}
