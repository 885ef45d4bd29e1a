package lapfeed

import (
	"context"

	"github.com/mcdev12/visionlap/go/internal/race/leaderboard"
)

// Sink receives decoded lap events. The race controller is the production sink.
type Sink interface {
	ApplyLapEvent(ctx context.Context, ev leaderboard.LapEvent) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, ev leaderboard.LapEvent) error

func (f SinkFunc) ApplyLapEvent(ctx context.Context, ev leaderboard.LapEvent) error {
	return f(ctx, ev)
}

// Source pushes lap events into a sink until ctx is done
type Source interface {
	Run(ctx context.Context) error
}
