package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mcdev12/visionlap/go/internal/race/leaderboard"
)

// Event types shared between the lap feed, the bus and the gateway
const (
	EventTypeLapUpdate     = "lap_update"
	EventTypeSessionStatus = "session_status"
	EventTypeRaceState     = "race_state"
	EventTypeWarning       = "warning"
)

// ErrInvalidLapEvent is returned for lap payloads that cannot enter the leaderboard
var ErrInvalidLapEvent = errors.New("invalid lap event")

// LapUpdatePayload is the payload of a lap_update event as emitted by the timing backend
type LapUpdatePayload struct {
	TagID      int     `json:"tag_id"`
	Nickname   string  `json:"nickname"`
	DriverName string  `json:"driver_name,omitempty"`
	LapNumber  int     `json:"lap_number"`
	LapTime    float64 `json:"lap_time"`
}

// Validate checks the boundary constraints of a lap payload
func (p LapUpdatePayload) Validate() error {
	if p.LapNumber < 0 {
		return fmt.Errorf("%w: lap_number %d is negative", ErrInvalidLapEvent, p.LapNumber)
	}
	if math.IsNaN(p.LapTime) || math.IsInf(p.LapTime, 0) || p.LapTime < 0 {
		return fmt.Errorf("%w: lap_time %v out of range", ErrInvalidLapEvent, p.LapTime)
	}
	return nil
}

// LapEvent converts the payload into an aggregator event. The nickname is the display
// name; driver_name is used when no nickname was sent.
func (p LapUpdatePayload) LapEvent() leaderboard.LapEvent {
	name := p.Nickname
	if name == "" {
		name = p.DriverName
	}
	return leaderboard.LapEvent{
		TagID:          p.TagID,
		DisplayName:    name,
		LapNumber:      p.LapNumber,
		LapTimeSeconds: p.LapTime,
	}
}

// DecodeLapUpdate parses and validates a raw lap_update payload
func DecodeLapUpdate(data []byte) (leaderboard.LapEvent, error) {
	var p LapUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return leaderboard.LapEvent{}, fmt.Errorf("%w: %v", ErrInvalidLapEvent, err)
	}
	if err := p.Validate(); err != nil {
		return leaderboard.LapEvent{}, err
	}
	return p.LapEvent(), nil
}

// SessionStatusPayload announces race session state changes
type SessionStatusPayload struct {
	State     string    `json:"state"`
	SessionID string    `json:"session_id"`
	Phase     string    `json:"phase"`
	At        time.Time `json:"at"`
}

// WarningPayload carries a non-blocking error notice for the UI
type WarningPayload struct {
	Operation string    `json:"operation"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Envelope is the message envelope used on the bus, matching the outbox relay format
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}
