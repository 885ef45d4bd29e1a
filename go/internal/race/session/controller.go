package session

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/visionlap/go/internal/race/countdown"
	"github.com/mcdev12/visionlap/go/internal/race/leaderboard"
)

// Controller serializes every race operation through a single event loop. Commands, lap
// events and countdown ticks are all handled by Run, so the session state never needs a lock.
type Controller struct {
	m          *machine
	cmds       chan command
	done       chan struct{}
	running    atomic.Bool
	instanceID string
}

type command struct {
	fn      func() error
	publish bool
	result  chan error
}

// Option configures a Controller
type Option func(*Controller)

// WithClock sets the clock driving every countdown
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) {
		c.m.clock = clock
	}
}

// WithNotifier sets the collaborator told about session start and stop
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		if n != nil {
			c.m.notifier = n
		}
	}
}

// WithObserver adds an observer. Several observers are fanned out in registration order.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o == nil {
			return
		}
		switch cur := c.m.observer.(type) {
		case noopObserver:
			c.m.observer = o
		case Observers:
			c.m.observer = append(cur, o)
		default:
			c.m.observer = Observers{cur, o}
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.m.metrics = m
		}
	}
}

// withDispatch replaces the goroutine used for notifications
func withDispatch(dispatch func(func())) Option {
	return func(c *Controller) {
		c.m.dispatch = dispatch
	}
}

// New creates a controller in the idle phase with cfg as the editable configuration
func New(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		m:          newMachine(clockwork.NewRealClock(), cfg),
		cmds:       make(chan command),
		done:       make(chan struct{}),
		instanceID: uuid.New().String()[:8],
	}
	c.m.notifier = noopNotifier{}
	for _, opt := range opts {
		opt(c)
	}
	// the countdown must tick on the configured clock
	c.m.timer = countdown.New(c.m.clock)
	return c, nil
}

// Run owns the session until ctx is cancelled. It must be called exactly once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("controller already running")
	}
	defer close(c.done)

	c.m.notifyCtx = context.WithoutCancel(ctx)

	log.Info().
		Str("instance", c.instanceID).
		Str("phase", string(c.m.phase)).
		Msg("race controller started")

	for {
		select {
		case <-ctx.Done():
			c.m.shutdown()
			log.Info().Str("instance", c.instanceID).Msg("race controller shut down")
			return nil

		case cmd := <-c.cmds:
			err := cmd.fn()
			if err == nil && cmd.publish {
				c.m.publish()
			}
			cmd.result <- err

		case <-c.m.timer.C():
			c.m.timer.Fire()
			c.m.publish()
		}
	}
}

// Done is closed once Run has returned
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Start begins the race sequence from Idle
func (c *Controller) Start(ctx context.Context) error {
	return c.do(ctx, true, c.m.start)
}

// Stop aborts the current session, or clears the leaderboard when idle
func (c *Controller) Stop(ctx context.Context) error {
	return c.do(ctx, true, func() error {
		c.m.stop()
		return nil
	})
}

// UpdateConfig replaces the race configuration. Only allowed while idle.
func (c *Controller) UpdateConfig(ctx context.Context, cfg Config) error {
	return c.do(ctx, true, func() error {
		return c.m.updateConfig(cfg)
	})
}

// ApplyLapEvent feeds a lap into the leaderboard. Laps are accepted in every phase.
func (c *Controller) ApplyLapEvent(ctx context.Context, ev leaderboard.LapEvent) error {
	return c.do(ctx, true, func() error {
		c.m.applyLap(ev)
		return nil
	})
}

// Snapshot returns the current read-only session view
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, false, func() error {
		snap = c.m.snapshot()
		return nil
	})
	return snap, err
}

func (c *Controller) do(ctx context.Context, publish bool, fn func() error) error {
	cmd := command{fn: fn, publish: publish, result: make(chan error, 1)}

	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.result:
		return err
	case <-c.done:
		// the loop may have answered right before exiting
		select {
		case err := <-cmd.result:
			return err
		default:
			return ErrControllerStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

type noopNotifier struct{}

func (noopNotifier) SessionStarted(context.Context) error { return nil }
func (noopNotifier) SessionStopped(context.Context) error { return nil }
