package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/visionlap/go/internal/race/events"
)

// RaceEvent is the frame pushed to browser clients
type RaceEvent struct {
	ID        string          `json:"id"`        // Event UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of race event
type EventType string

const (
	EventTypeRaceState EventType = events.EventTypeRaceState
	EventTypeWarning   EventType = events.EventTypeWarning
)

// NewRaceEvent marshals payload into a new event
func NewRaceEvent(eventType EventType, payload any, at time.Time) (*RaceEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &RaceEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}, nil
}
