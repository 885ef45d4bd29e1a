package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/visionlap/go/internal/race/events"
	"github.com/mcdev12/visionlap/go/internal/race/leaderboard"
	"github.com/mcdev12/visionlap/go/internal/race/session"
)

// Controller is the race control surface exposed over HTTP
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	UpdateConfig(ctx context.Context, cfg session.Config) error
	ApplyLapEvent(ctx context.Context, ev leaderboard.LapEvent) error
	Snapshot(ctx context.Context) (session.Snapshot, error)
}

// LeaderboardResponse is returned by GET /api/race/leaderboard
type LeaderboardResponse struct {
	SessionID string                 `json:"session_id,omitempty"`
	Phase     session.Phase          `json:"phase"`
	MaxLaps   int                    `json:"max_laps"`
	Standings []leaderboard.Standing `json:"standings"`
}

// StatusResponse is returned by the start and stop endpoints
type StatusResponse struct {
	Status    string        `json:"status"`
	SessionID string        `json:"session_id,omitempty"`
	Phase     session.Phase `json:"phase"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// maxRequestBody bounds config and lap request bodies
const maxRequestBody = 64 << 10

// StateHandler handles HTTP requests for race state and control
type StateHandler struct {
	controller Controller
}

// NewStateHandler creates a new state handler
func NewStateHandler(controller Controller) *StateHandler {
	return &StateHandler{
		controller: controller,
	}
}

// HandleGetState handles GET /api/race/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := h.controller.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleGetLeaderboard handles GET /api/race/leaderboard
func (h *StateHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := h.controller.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{
		SessionID: snap.SessionID,
		Phase:     snap.Phase,
		MaxLaps:   snap.Config.MaxLaps,
		Standings: snap.Leaderboard,
	})
}

// HandleStart handles POST /api/race/start
func (h *StateHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.controller.Start(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.writeStatus(w, r, "started")
}

// HandleStop handles POST /api/race/stop
func (h *StateHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.controller.Stop(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	h.writeStatus(w, r, "stopped")
}

// HandleConfig handles GET and PUT /api/race/config
func (h *StateHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap, err := h.controller.Snapshot(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap.Config)

	case http.MethodPut:
		var cfg session.Config
		if err := decodeBody(w, r, &cfg); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid config body: " + err.Error()})
			return
		}
		if err := h.controller.UpdateConfig(r.Context(), cfg); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleLap handles POST /api/laps for manual lap entry
func (h *StateHandler) HandleLap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload events.LapUpdatePayload
	if err := decodeBody(w, r, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lap body: " + err.Error()})
		return
	}
	if err := payload.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.controller.ApplyLapEvent(r.Context(), payload.LapEvent()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/race/state", h.HandleGetState)
	mux.HandleFunc("/api/race/leaderboard", h.HandleGetLeaderboard)
	mux.HandleFunc("/api/race/start", h.HandleStart)
	mux.HandleFunc("/api/race/stop", h.HandleStop)
	mux.HandleFunc("/api/race/config", h.HandleConfig)
	mux.HandleFunc("/api/laps", h.HandleLap)
}

func (h *StateHandler) writeStatus(w http.ResponseWriter, r *http.Request, status string) {
	snap, err := h.controller.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:    status,
		SessionID: snap.SessionID,
		Phase:     snap.Phase,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// StatusCode maps race errors to HTTP status codes
func StatusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidArgument), errors.Is(err, events.ErrInvalidLapEvent):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, session.ErrControllerStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", code).Msg("race request failed")
	} else {
		log.Debug().Err(err).Int("status", code).Msg("race request rejected")
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
