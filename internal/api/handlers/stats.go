package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/gridforge/gpumesh/internal/engine"
	"github.com/gridforge/gpumesh/internal/statsfeed"
)

// StatsHandler handles network statistics endpoints.
type StatsHandler struct {
	engine   *engine.Engine
	hub      *statsfeed.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStatsHandler creates a new stats handler. hub may be nil when the live
// feed is disabled.
func NewStatsHandler(eng *engine.Engine, hub *statsfeed.Hub, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		engine: eng,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dApp UI is served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Get handles GET /v1/stats - returns the latest network snapshot.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.engine.Stats())
}

// Stream handles GET /v1/stats/stream - live snapshot feed over websocket.
func (h *StatsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrCodeInternalError, "Live stats feed not available")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	h.hub.Subscribe(conn)
}
