package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for race displays
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	controller        Controller
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, controller Controller) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		controller:        controller,
	}
}

// HandleRaceConnection upgrades a display connection and sends it the current snapshot
func (h *WebSocketHandler) HandleRaceConnection(w http.ResponseWriter, r *http.Request) {
	var welcome *RaceEvent
	snap, err := h.controller.Snapshot(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("no snapshot for new display connection")
	} else if welcome, err = NewRaceEvent(EventTypeRaceState, snap, snap.UpdatedAt); err != nil {
		log.Error().Err(err).Msg("failed to build welcome snapshot")
	}

	// Upgrade writes its own HTTP error response on failure
	if err := h.connectionManager.UpgradeConnection(w, r, welcome); err != nil {
		log.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/race", h.HandleRaceConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
