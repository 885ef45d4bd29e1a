package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/visionlap/go/internal/race/events"
	"github.com/mcdev12/visionlap/go/internal/race/session"
)

// Service is the race presentation gateway. It observes the race controller and pushes
// every snapshot to the connected displays.
type Service struct {
	connectionManager *ConnectionManager
}

// Config holds configuration for the race gateway
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the race gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new race gateway service
func NewService(config Config) *Service {
	return &Service{
		connectionManager: NewConnectionManager(config.ConnectionConfig),
	}
}

// Start runs the broadcaster until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting race gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("race gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes backed by controller
func (s *Service) RegisterRoutes(mux *http.ServeMux, controller Controller) {
	NewWebSocketHandler(s.connectionManager, controller).RegisterRoutes(mux)
	NewStateHandler(controller).RegisterStateRoutes(mux)
	log.Info().Msg("race gateway routes registered")
}

// SetConnectionGauge reports open display connections to g
func (s *Service) SetConnectionGauge(g Gauge) {
	s.connectionManager.SetGauge(g)
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

func (s *Service) OnSnapshot(snap session.Snapshot) {
	event, err := NewRaceEvent(EventTypeRaceState, snap, snap.UpdatedAt)
	if err != nil {
		log.Error().Err(err).Msg("failed to build race state event")
		return
	}
	s.connectionManager.Broadcast(event)
}

func (s *Service) OnWarning(w session.Warning) {
	event, err := NewRaceEvent(EventTypeWarning, events.WarningPayload{
		Operation: w.Operation,
		Message:   w.Err.Error(),
		At:        w.At,
	}, w.At)
	if err != nil {
		log.Error().Err(err).Msg("failed to build warning event")
		return
	}
	s.connectionManager.Broadcast(event)
}
