package bus

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/visionlap/go/internal/race/events"
	"github.com/mcdev12/visionlap/go/internal/race/session"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func TestStatusPublisherAnnouncesPhaseChangesOnly(t *testing.T) {
	fp := &fakePublisher{}
	p := NewStatusPublisher(fp, "race.events")
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	p.OnSnapshot(session.Snapshot{Phase: session.PhaseIdle, UpdatedAt: now})
	p.OnSnapshot(session.Snapshot{Phase: session.PhasePreparing, SessionID: "s1", UpdatedAt: now})
	p.OnSnapshot(session.Snapshot{Phase: session.PhasePreparing, SessionID: "s1", UpdatedAt: now})
	p.OnSnapshot(session.Snapshot{Phase: session.PhaseRunning, SessionID: "s1", UpdatedAt: now})
	p.OnSnapshot(session.Snapshot{Phase: session.PhaseIdle, UpdatedAt: now})

	require.Len(t, fp.msgs, 3)
	assert.Equal(t, "race.events.preparing", fp.msgs[0].subject)
	assert.Equal(t, "race.events.started", fp.msgs[1].subject)
	assert.Equal(t, "race.events.stopped", fp.msgs[2].subject)

	var env events.Envelope
	require.NoError(t, json.Unmarshal(fp.msgs[1].data, &env))
	assert.Equal(t, events.EventTypeSessionStatus, env.EventType)
	assert.NotEmpty(t, env.EventID)

	var status events.SessionStatusPayload
	require.NoError(t, json.Unmarshal(env.Payload, &status))
	assert.Equal(t, "started", status.State)
	assert.Equal(t, "s1", status.SessionID)
	assert.Equal(t, "running", status.Phase)
}

func TestStatusPublisherForwardsWarnings(t *testing.T) {
	fp := &fakePublisher{}
	p := NewStatusPublisher(fp, "race.events")

	p.OnWarning(session.Warning{Operation: "session_stop", Err: errors.New("backend down"), At: time.Now()})

	require.Len(t, fp.msgs, 1)
	assert.Equal(t, "race.events.warning", fp.msgs[0].subject)

	var env events.Envelope
	require.NoError(t, json.Unmarshal(fp.msgs[0].data, &env))
	var w events.WarningPayload
	require.NoError(t, json.Unmarshal(env.Payload, &w))
	assert.Equal(t, "session_stop", w.Operation)
	assert.Equal(t, "backend down", w.Message)
}

func TestStatusPublisherSurvivesPublishErrors(t *testing.T) {
	fp := &fakePublisher{err: errors.New("nats: connection closed")}
	p := NewStatusPublisher(fp, "race.events")

	assert.NotPanics(t, func() {
		p.OnSnapshot(session.Snapshot{Phase: session.PhaseStarting})
	})
}

func TestStateFor(t *testing.T) {
	assert.Equal(t, "preparing", StateFor(session.PhasePreparing))
	assert.Equal(t, "starting", StateFor(session.PhaseStarting))
	assert.Equal(t, "started", StateFor(session.PhaseRunning))
	assert.Equal(t, "finished", StateFor(session.PhaseFinished))
	assert.Equal(t, "stopped", StateFor(session.PhaseIdle))
}
