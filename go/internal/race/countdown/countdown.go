package countdown

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Resolution is the tick period of every countdown.
const Resolution = time.Second

// ErrInvalidArgument is returned by Start for a negative initial count.
var ErrInvalidArgument = errors.New("invalid argument")

// Countdown is a cancelable 1-second repeating timer.
//
// The first tick is delivered after the first second elapses. Each tick decrements the
// remaining count and then calls onTick(remaining); the tick that reaches zero calls
// onTick(0) followed by onComplete.
//
// A Countdown is not safe for concurrent use. It is owned by a single event loop which
// selects on C() and calls Fire() for every value received. Because Cancel and Fire run on
// that same loop, no callback fires once Cancel has returned.
type Countdown struct {
	clock  clockwork.Clock
	ticker clockwork.Ticker

	remaining  int
	onTick     func(remaining int)
	onComplete func()

	// generation changes on every Start/Cancel so Fire can detect that a callback
	// replaced or cancelled the timer it was invoked for.
	generation uint64
}

// New creates an idle countdown driven by clock.
func New(clock clockwork.Clock) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{clock: clock}
}

// Start begins a new countdown from initialSeconds. A countdown that is still running is
// stopped and replaced.
func (c *Countdown) Start(initialSeconds int, onTick func(remaining int), onComplete func()) error {
	if initialSeconds < 0 {
		return fmt.Errorf("%w: initial seconds %d is negative", ErrInvalidArgument, initialSeconds)
	}

	c.stop()
	c.remaining = initialSeconds
	c.onTick = onTick
	c.onComplete = onComplete
	c.ticker = c.clock.NewTicker(Resolution)
	return nil
}

// Cancel stops the countdown. It is idempotent and safe after natural completion.
func (c *Countdown) Cancel() {
	c.stop()
}

// Active reports whether a countdown is running.
func (c *Countdown) Active() bool {
	return c.ticker != nil
}

// Remaining returns the current count, zero when idle.
func (c *Countdown) Remaining() int {
	if c.ticker == nil {
		return 0
	}
	return c.remaining
}

// C returns the channel the owning loop must select on. It is nil while idle, which
// blocks forever in a select.
func (c *Countdown) C() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.Chan()
}

// Fire consumes one elapsed second.
func (c *Countdown) Fire() {
	if c.ticker == nil {
		return
	}
	gen := c.generation

	if c.remaining > 0 {
		c.remaining--
	}
	if c.onTick != nil {
		c.onTick(c.remaining)
	}
	if gen != c.generation || c.remaining > 0 {
		return
	}

	done := c.onComplete
	c.stop()
	if done != nil {
		done()
	}
}

func (c *Countdown) stop() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.onTick = nil
	c.onComplete = nil
	c.remaining = 0
	c.generation++
}
