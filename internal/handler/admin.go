package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/auth"
	"github.com/mhalvorsen/achievo/internal/service"
)

// AdminHandler serves the allowlist-gated maintenance endpoints.
type AdminHandler struct {
	sync     *service.SyncService
	profiles *service.ProfileService
}

func NewAdminHandler(sync *service.SyncService, profiles *service.ProfileService) *AdminHandler {
	return &AdminHandler{sync: sync, profiles: profiles}
}

// RequireAdmin rejects sessions whose account is not on the allowlist. It
// runs after the session middleware, so missing claims mean a wiring bug
// rather than a missing token; both still get a 401/403, never a 500.
func (h *AdminHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, apperror.Auth())
			return
		}
		if !h.sync.IsAdmin(claims.AccountID) {
			writeError(w, apperror.Forbidden("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// DeleteAccount handles DELETE /api/admin/accounts/{accountID}.
func (h *AdminHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if err := h.profiles.AdminDeleteAccount(r.Context(), accountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
