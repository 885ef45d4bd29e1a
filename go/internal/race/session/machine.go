package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/visionlap/go/internal/race/countdown"
	"github.com/mcdev12/visionlap/go/internal/race/leaderboard"
)

const (
	opSessionStart = "session_start"
	opSessionStop  = "session_stop"
)

// machine is the race session state machine. It owns exactly one countdown, so at most one
// timer is live at any time. It is not safe for concurrent use; the controller loop is the
// only caller.
type machine struct {
	clock    clockwork.Clock
	timer    *countdown.Countdown
	board    *leaderboard.Aggregator
	notifier Notifier
	observer Observer
	metrics  Metrics

	// dispatch runs collaborator notifications off the loop.
	dispatch func(func())
	notifyCtx context.Context

	phase     Phase
	config    Config
	active    Config
	sessionID uuid.UUID

	gridRemaining      int
	semaphoreRemaining int
	raceRemaining      int
	lights             Lights
}

func newMachine(clock clockwork.Clock, cfg Config) *machine {
	return &machine{
		clock:     clock,
		timer:     countdown.New(clock),
		board:     leaderboard.New(),
		observer:  noopObserver{},
		metrics:   NoOpMetrics{},
		dispatch:  func(fn func()) { go fn() },
		notifyCtx: context.Background(),
		phase:     PhaseIdle,
		config:    cfg,
	}
}

func (m *machine) start() error {
	if m.phase != PhaseIdle {
		log.Warn().
			Str("phase", string(m.phase)).
			Str("session_id", m.sessionID.String()).
			Msg("start ignored: race session already in progress")
		return fmt.Errorf("%w: cannot start while %s", ErrIllegalTransition, m.phase)
	}

	m.sessionID = uuid.New()
	m.active = m.config
	m.enter(PhasePreparing)
	m.gridRemaining = m.active.PrepTimeSeconds

	log.Info().
		Str("session_id", m.sessionID.String()).
		Int("prep_time_seconds", m.active.PrepTimeSeconds).
		Int("max_time_minutes", m.active.MaxTimeMinutes).
		Int("max_laps", m.active.MaxLaps).
		Msg("race sequence started, preparing grid")

	m.startTimer(m.active.PrepTimeSeconds, func(r int) { m.gridRemaining = r }, m.enterStarting)
	return nil
}

func (m *machine) enterStarting() {
	m.enter(PhaseStarting)
	m.gridRemaining = 0
	m.semaphoreRemaining = SemaphoreSeconds
	m.lights = LightsAt(SemaphoreSeconds)

	log.Info().Str("session_id", m.sessionID.String()).Msg("grid closed, semaphore sequence started")

	m.startTimer(SemaphoreSeconds, m.onSemaphoreTick, m.settleGo)
}

func (m *machine) onSemaphoreTick(t int) {
	m.semaphoreRemaining = t
	m.lights = LightsAt(t)
	log.Debug().Int("t", t).Int("red", m.lights.Red).Bool("green", m.lights.Green).Msg("semaphore tick")
}

// settleGo holds the green lights before the race clock starts.
func (m *machine) settleGo() {
	m.startTimer(GoSettleSeconds, nil, m.enterRunning)
}

func (m *machine) enterRunning() {
	m.enter(PhaseRunning)
	m.semaphoreRemaining = 0
	m.lights = Lights{}
	m.raceRemaining = m.active.RaceSeconds()

	log.Info().
		Str("session_id", m.sessionID.String()).
		Int("race_seconds", m.raceRemaining).
		Msg("race running")

	m.notify(opSessionStart, m.notifier.SessionStarted)
	m.startTimer(m.raceRemaining, func(r int) { m.raceRemaining = r }, m.finish)
}

func (m *machine) finish() {
	m.enter(PhaseFinished)
	m.raceRemaining = 0
	log.Info().Str("session_id", m.sessionID.String()).Msg("race finished")

	m.publish()
	m.stop()
}

// stop cancels the live timer, clears the board and returns to idle. The stop notification
// is sent only when a session was actually in progress.
func (m *machine) stop() {
	wasActive := m.phase != PhaseIdle
	sessionID := m.sessionID

	m.timer.Cancel()
	m.board.Reset()
	m.gridRemaining = 0
	m.semaphoreRemaining = 0
	m.raceRemaining = 0
	m.lights = Lights{}
	m.sessionID = uuid.Nil
	m.active = Config{}

	if !wasActive {
		log.Debug().Msg("stop while idle: leaderboard cleared")
		return
	}

	m.enter(PhaseIdle)
	log.Info().Str("session_id", sessionID.String()).Msg("race session stopped")
	m.notifyFor(sessionID, opSessionStop, m.notifier.SessionStopped)
}

func (m *machine) updateConfig(cfg Config) error {
	if m.phase != PhaseIdle {
		return fmt.Errorf("%w: configuration is unavailable while %s", ErrIllegalTransition, m.phase)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.config = cfg
	log.Info().
		Int("prep_time_seconds", cfg.PrepTimeSeconds).
		Int("max_time_minutes", cfg.MaxTimeMinutes).
		Int("max_laps", cfg.MaxLaps).
		Msg("race configuration updated")
	return nil
}

func (m *machine) applyLap(ev leaderboard.LapEvent) {
	res := m.board.Apply(ev)
	m.metrics.LapApplied(res.Regressed)

	if res.Regressed {
		log.Warn().
			Int("tag_id", ev.TagID).
			Int("lap_number", ev.LapNumber).
			Int("previous_laps", res.PreviousLaps).
			Msg("lap number went backwards, applying anyway")
	}
	log.Debug().
		Int("tag_id", ev.TagID).
		Str("nickname", ev.DisplayName).
		Int("lap_number", ev.LapNumber).
		Float64("lap_time", ev.LapTimeSeconds).
		Bool("new_driver", res.Created).
		Msg("lap applied")
}

func (m *machine) snapshot() Snapshot {
	cfg := m.config
	if m.phase != PhaseIdle {
		cfg = m.active
	}
	return Snapshot{
		SessionID:                 sessionIDString(m.sessionID),
		Phase:                     m.phase,
		GridSecondsRemaining:      m.gridRemaining,
		SemaphoreSecondsRemaining: m.semaphoreRemaining,
		RaceSecondsRemaining:      m.raceRemaining,
		RaceClock:                 FormatClock(m.raceRemaining),
		Semaphore:                 m.lights,
		Config:                    cfg,
		Leaderboard:               m.board.Ranked(),
		UpdatedAt:                 m.clock.Now(),
	}
}

func (m *machine) publish() {
	m.observer.OnSnapshot(m.snapshot())
}

func (m *machine) shutdown() {
	m.timer.Cancel()
	if m.phase != PhaseIdle {
		log.Warn().
			Str("phase", string(m.phase)).
			Str("session_id", m.sessionID.String()).
			Msg("controller shutting down with a session in progress")
	}
}

func (m *machine) enter(p Phase) {
	log.Debug().Str("from", string(m.phase)).Str("to", string(p)).Msg("phase transition")
	m.phase = p
	m.metrics.PhaseEntered(string(p))
}

// startTimer replaces any leftover timer from a previous phase.
func (m *machine) startTimer(seconds int, onTick func(int), onComplete func()) {
	m.timer.Cancel()
	if err := m.timer.Start(seconds, onTick, onComplete); err != nil {
		// Config is validated on entry, so this only trips on a programming error.
		log.Error().Err(err).Int("seconds", seconds).Msg("failed to start countdown")
	}
}

func (m *machine) notify(op string, call func(context.Context) error) {
	m.notifyFor(m.sessionID, op, call)
}

// notifyFor is fire-and-forget: the loop never waits on the collaborator and a failure
// never rolls back the phase.
func (m *machine) notifyFor(sessionID uuid.UUID, op string, call func(context.Context) error) {
	ctx := m.notifyCtx
	observer := m.observer
	metrics := m.metrics
	clock := m.clock

	m.dispatch(func() {
		if err := call(ctx); err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrCollaboratorFailure, op, err)
			log.Error().
				Err(err).
				Str("operation", op).
				Str("session_id", sessionID.String()).
				Msg("session notification failed")
			metrics.NotificationFailed(op)
			observer.OnWarning(Warning{
				Operation: op,
				SessionID: sessionID,
				Err:       err,
				At:        clock.Now(),
			})
		}
	})
}

func sessionIDString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
