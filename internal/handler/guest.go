package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mhalvorsen/achievo/internal/service"
)

// GuestHandler serves the one unauthenticated read path: library views by
// public short identifier.
type GuestHandler struct {
	profiles *service.ProfileService
}

func NewGuestHandler(profiles *service.ProfileService) *GuestHandler {
	return &GuestHandler{profiles: profiles}
}

// Library handles GET /api/guest/{shortID}.
func (h *GuestHandler) Library(w http.ResponseWriter, r *http.Request) {
	shortID := chi.URLParam(r, "shortID")
	lib, err := h.profiles.GuestLibrary(r.Context(), shortID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lib)
}
