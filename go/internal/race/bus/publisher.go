package bus

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/visionlap/go/internal/race/events"
	"github.com/mcdev12/visionlap/go/internal/race/session"
)

// Publisher is the subset of *nats.Conn used to announce race status
type Publisher interface {
	Publish(subject string, data []byte) error
}

// StatusPublisher announces phase changes on <prefix>.<state>. It is a session observer;
// publishing is a buffered core NATS write so the controller loop never waits on the bus.
type StatusPublisher struct {
	pub    Publisher
	prefix string

	mu    sync.Mutex
	phase session.Phase
}

func NewStatusPublisher(pub Publisher, subjectPrefix string) *StatusPublisher {
	return &StatusPublisher{
		pub:    pub,
		prefix: subjectPrefix,
		phase:  session.PhaseIdle,
	}
}

// StateFor maps a phase to the session_status state announced on the bus
func StateFor(p session.Phase) string {
	switch p {
	case session.PhaseRunning:
		return "started"
	case session.PhaseIdle:
		return "stopped"
	default:
		return string(p)
	}
}

func (p *StatusPublisher) OnSnapshot(s session.Snapshot) {
	p.mu.Lock()
	if s.Phase == p.phase {
		p.mu.Unlock()
		return
	}
	p.phase = s.Phase
	p.mu.Unlock()

	state := StateFor(s.Phase)
	payload := events.SessionStatusPayload{
		State:     state,
		SessionID: s.SessionID,
		Phase:     string(s.Phase),
		At:        s.UpdatedAt,
	}
	p.publish(events.EventTypeSessionStatus, state, payload, s)
}

func (p *StatusPublisher) OnWarning(w session.Warning) {
	payload := events.WarningPayload{
		Operation: w.Operation,
		Message:   w.Err.Error(),
		At:        w.At,
	}
	p.publish(events.EventTypeWarning, "warning", payload, session.Snapshot{UpdatedAt: w.At})
}

func (p *StatusPublisher) publish(eventType, suffix string, payload any, s session.Snapshot) {
	subject := fmt.Sprintf("%s.%s", p.prefix, suffix)

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal race event")
		return
	}
	envelope, err := json.Marshal(events.Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.UpdatedAt,
		Payload:   data,
	})
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal race event envelope")
		return
	}

	if err := p.pub.Publish(subject, envelope); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish race event")
		return
	}
	log.Debug().Str("subject", subject).Str("event_type", eventType).Msg("race event published")
}
