// Package handler implements the sync server's HTTP endpoints on top of the
// service layer. Handlers decode and validate the wire shapes, call services,
// and map domain errors onto status codes; they hold no business rules.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mhalvorsen/achievo/internal/apperror"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encoding response", slog.String("error", err.Error()))
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses. Messages for
// client errors come from the error itself; server-side failures get a
// generic message so internals never leak to callers.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	resp := errorResponse{Error: err.Error()}
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Field = appErr.Field
	}

	switch {
	case errors.Is(err, apperror.ErrAuth):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "valid session required"})
	case errors.Is(err, apperror.ErrForbidden):
		writeJSON(w, http.StatusForbidden, resp)
	case errors.Is(err, apperror.ErrNotFound):
		writeJSON(w, http.StatusNotFound, resp)
	case errors.Is(err, apperror.ErrValidation):
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, apperror.ErrConflict):
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, apperror.ErrUpstream):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "upstream service unavailable"})
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
