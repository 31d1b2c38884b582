package transport

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Handler upgrades HTTP requests to WebSocket connections and hands each one
// to its own actor.
type Handler struct {
	deps     Deps
	upgrader websocket.Upgrader
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The daemon binds to localhost and serves its own UI; no
			// cross-origin callers exist.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.deps.Logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	h.deps.Logger.Info("connection opened", slog.String("remote", r.RemoteAddr))
	conn := newConn(r.Context(), ws, h.deps)
	conn.run()
	h.deps.Logger.Info("connection closed", slog.String("remote", r.RemoteAddr))
}
