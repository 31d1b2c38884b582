package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/auth"
	"github.com/mhalvorsen/achievo/internal/model"
	"github.com/mhalvorsen/achievo/internal/service"
)

// maxUploadBytes bounds an upload request body. A full snapshot of a very
// large library stays well under this.
const maxUploadBytes = 100 << 20

// SyncHandler serves the authenticated snapshot endpoints.
type SyncHandler struct {
	sync     *service.SyncService
	profiles *service.ProfileService
}

func NewSyncHandler(sync *service.SyncService, profiles *service.ProfileService) *SyncHandler {
	return &SyncHandler{sync: sync, profiles: profiles}
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Auth())
		return
	}
	status, err := h.sync.Status(r.Context(), claims.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Download handles GET /api/sync/download.
func (h *SyncHandler) Download(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Auth())
		return
	}
	bundle, err := h.sync.Download(r.Context(), claims.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

// Upload handles POST /api/sync/upload. The profile is ensured first so an
// account's very first upload also establishes its public handle.
func (h *SyncHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Auth())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	var bundle model.SyncBundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperror.ValidationFailed("body", "upload exceeds the size limit"))
			return
		}
		writeError(w, apperror.ValidationFailed("body", "request body is not a valid bundle"))
		return
	}

	if _, err := h.profiles.EnsureProfile(r.Context(), claims); err != nil {
		writeError(w, err)
		return
	}
	if err := h.sync.Upload(r.Context(), claims.AccountID, &bundle); err != nil {
		writeError(w, err)
		return
	}

	status, err := h.sync.Status(r.Context(), claims.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Delete handles DELETE /api/sync.
func (h *SyncHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Auth())
		return
	}
	if err := h.sync.Delete(r.Context(), claims.AccountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchGamesRequest struct {
	AppIDs []int64 `json:"appids"`
}

// BatchGames handles POST /api/games/batch.
func (h *SyncHandler) BatchGames(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Auth())
		return
	}
	var req batchGamesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "request body is not valid JSON"))
		return
	}
	games, err := h.sync.GamesByAppIDs(r.Context(), claims.AccountID, req.AppIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	if games == nil {
		games = []model.Game{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Game{"games": games})
}
