package session

import (
	"context"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	started  int
	stopped  int
	startErr error
	stopErr  error
}

func (n *recordingNotifier) SessionStarted(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started++
	return n.startErr
}

func (n *recordingNotifier) SessionStopped(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped++
	return n.stopErr
}

func (n *recordingNotifier) counts() (started, stopped int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started, n.stopped
}

type recordingObserver struct {
	mu        sync.Mutex
	snapshots []Snapshot
	warnings  []Warning
}

func (o *recordingObserver) OnSnapshot(s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots = append(o.snapshots, s)
}

func (o *recordingObserver) OnWarning(w Warning) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warnings = append(o.warnings, w)
}

func (o *recordingObserver) snapshotCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.snapshots)
}

func (o *recordingObserver) last() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshots[len(o.snapshots)-1]
}

func (o *recordingObserver) allWarnings() []Warning {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Warning(nil), o.warnings...)
}

// phases returns the phase sequence seen by the observer with repeats collapsed
func (o *recordingObserver) phases() []Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Phase
	for _, s := range o.snapshots {
		if len(out) == 0 || out[len(out)-1] != s.Phase {
			out = append(out, s.Phase)
		}
	}
	return out
}

type recordingMetrics struct {
	mu          sync.Mutex
	phases      map[string]int
	laps        int
	regressions int
	failures    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{phases: map[string]int{}, failures: map[string]int{}}
}

func (m *recordingMetrics) PhaseEntered(phase string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases[phase]++
}

func (m *recordingMetrics) LapApplied(regressed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.laps++
	if regressed {
		m.regressions++
	}
}

func (m *recordingMetrics) NotificationFailed(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op]++
}

func inline(fn func()) { fn() }

func newTestMachine(t *testing.T, cfg Config) (*machine, *recordingNotifier, *recordingObserver) {
	t.Helper()
	require.NoError(t, cfg.Validate())

	m := newMachine(clockwork.NewFakeClock(), cfg)
	n := &recordingNotifier{}
	o := &recordingObserver{}
	m.notifier = n
	m.observer = o
	m.dispatch = inline
	return m, n, o
}

func fire(t *testing.T, m *machine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.True(t, m.timer.Active(), "no live countdown at tick %d", i)
		m.timer.Fire()
	}
}
