package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/visionlap/go/internal/race/leaderboard"
)

// Phase is one discrete stage of the race session lifecycle
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePreparing Phase = "preparing"
	PhaseStarting  Phase = "starting"
	PhaseRunning   Phase = "running"
	PhaseFinished  Phase = "finished"
)

const (
	// SemaphoreSeconds is the fixed length of the start light sequence
	SemaphoreSeconds = 10
	// SemaphoreLightCount is the number of start lights
	SemaphoreLightCount = 5
	// GoSettleSeconds is how long the green lights stay visible before the race clock starts
	GoSettleSeconds = 1
)

// Config holds the race settings captured when a session starts
type Config struct {
	PrepTimeSeconds int `json:"prep_time_seconds" yaml:"prep_time_seconds"`
	MaxTimeMinutes  int `json:"max_time_minutes" yaml:"max_time_minutes"`
	MaxLaps         int `json:"max_laps" yaml:"max_laps"`
}

// DefaultConfig returns the settings the race UI ships with
func DefaultConfig() Config {
	return Config{
		PrepTimeSeconds: 60,
		MaxTimeMinutes:  5,
		MaxLaps:         10,
	}
}

// Validate rejects negative values
func (c Config) Validate() error {
	if c.PrepTimeSeconds < 0 {
		return fmt.Errorf("%w: prep_time_seconds %d is negative", ErrInvalidArgument, c.PrepTimeSeconds)
	}
	if c.MaxTimeMinutes < 0 {
		return fmt.Errorf("%w: max_time_minutes %d is negative", ErrInvalidArgument, c.MaxTimeMinutes)
	}
	if c.MaxLaps < 0 {
		return fmt.Errorf("%w: max_laps %d is negative", ErrInvalidArgument, c.MaxLaps)
	}
	return nil
}

// RaceSeconds returns the race duration in seconds
func (c Config) RaceSeconds() int {
	return c.MaxTimeMinutes * 60
}

// Lights is the state of the start semaphore
type Lights struct {
	Visible bool `json:"visible"`
	Total   int  `json:"total"`
	Red     int  `json:"red"`
	Green   bool `json:"green"`
}

// LightsAt returns the semaphore state for countdown value t. Red lights come on one per
// second over the last five seconds; at zero every light turns green.
func LightsAt(t int) Lights {
	l := Lights{Visible: true, Total: SemaphoreLightCount}
	switch {
	case t == 0:
		l.Green = true
	case t >= 1 && t <= SemaphoreLightCount:
		l.Red = SemaphoreLightCount + 1 - t
	}
	return l
}

// Snapshot is the read-only view of a race session used for rendering
type Snapshot struct {
	SessionID                 string                 `json:"session_id,omitempty"`
	Phase                     Phase                  `json:"phase"`
	GridSecondsRemaining      int                    `json:"grid_seconds_remaining"`
	SemaphoreSecondsRemaining int                    `json:"semaphore_seconds_remaining"`
	RaceSecondsRemaining      int                    `json:"race_seconds_remaining"`
	RaceClock                 string                 `json:"race_clock"`
	Semaphore                 Lights                 `json:"semaphore"`
	Config                    Config                 `json:"config"`
	Leaderboard               []leaderboard.Standing `json:"leaderboard"`
	UpdatedAt                 time.Time              `json:"updated_at"`
}

// FormatClock renders seconds as MM:SS
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Warning is an asynchronously surfaced, non-blocking failure
type Warning struct {
	Operation string
	SessionID uuid.UUID
	Err       error
	At        time.Time
}

// Notifier is the external collaborator told about session start and stop
type Notifier interface {
	SessionStarted(ctx context.Context) error
	SessionStopped(ctx context.Context) error
}

// Observer receives every snapshot and warning. Warnings are delivered from notification
// goroutines, so implementations must be safe for concurrent use.
type Observer interface {
	OnSnapshot(Snapshot)
	OnWarning(Warning)
}

// Observers fans out to several observers
type Observers []Observer

func (o Observers) OnSnapshot(s Snapshot) {
	for _, obs := range o {
		obs.OnSnapshot(s)
	}
}

func (o Observers) OnWarning(w Warning) {
	for _, obs := range o {
		obs.OnWarning(w)
	}
}

// Metrics defines the instrumentation hooks of the controller
type Metrics interface {
	PhaseEntered(phase string)
	LapApplied(regressed bool)
	NotificationFailed(op string)
}

// NoOpMetrics is used when metrics aren't needed
type NoOpMetrics struct{}

func (NoOpMetrics) PhaseEntered(string)       {}
func (NoOpMetrics) LapApplied(bool)           {}
func (NoOpMetrics) NotificationFailed(string) {}

type noopObserver struct{}

func (noopObserver) OnSnapshot(Snapshot) {}
func (noopObserver) OnWarning(Warning)   {}
