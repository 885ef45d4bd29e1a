package lapfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/visionlap/go/internal/race/events"
)

// NATSConfig holds configuration for the JetStream lap consumer
type NATSConfig struct {
	StreamName    string
	ConsumerName  string
	SubjectFilter string // e.g., "timing.laps.>"
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
}

// DefaultNATSConfig returns default JetStream lap consumer configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		StreamName:    "TIMING_EVENTS",
		ConsumerName:  "race-control-laps",
		SubjectFilter: "timing.laps.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
	}
}

const natsMessageBuffer = 100

// NATSSource consumes lap_update envelopes from JetStream
type NATSSource struct {
	js       jetstream.JetStream
	consumer jetstream.Consumer
	sink     Sink
	config   NATSConfig
}

// NewNATSSource creates the stream and durable consumer if they do not exist yet
func NewNATSSource(ctx context.Context, js jetstream.JetStream, sink Sink, config NATSConfig) (*NATSSource, error) {
	s := &NATSSource{
		js:     js,
		sink:   sink,
		config: config,
	}
	if err := s.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return s, nil
}

func (s *NATSSource) ensureConsumer(ctx context.Context) error {
	stream, err := s.js.Stream(ctx, s.config.StreamName)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err = s.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     s.config.StreamName,
			Subjects: []string{s.config.SubjectFilter},
		})
		if err == nil {
			log.Info().Str("stream", s.config.StreamName).Msg("created JetStream stream for lap events")
		}
	}
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          s.config.ConsumerName,
		Durable:       s.config.ConsumerName,
		Description:   "Race control lap_update consumer",
		FilterSubject: s.config.SubjectFilter,
		// laps from an earlier session must not leak into the board
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    s.config.MaxDeliver,
		AckWait:       s.config.AckWait,
		MaxAckPending: s.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, s.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", s.config.ConsumerName).
			Str("stream", s.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", s.config.ConsumerName).
			Str("stream", s.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	s.consumer = consumer
	return nil
}

// Run consumes until ctx is cancelled
func (s *NATSSource) Run(ctx context.Context) error {
	log.Info().
		Str("consumer", s.config.ConsumerName).
		Str("stream", s.config.StreamName).
		Msg("starting JetStream lap consumer")

	messageCh := make(chan jetstream.Msg, natsMessageBuffer)

	consumeCtx, err := s.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("lap consumer shutting down")
			return nil
		case msg := <-messageCh:
			s.handleMessage(ctx, msg)
		}
	}
}

// handleMessage acks applied and ignored messages, terminates undecodable ones and naks
// messages the sink could not take so they are redelivered.
func (s *NATSSource) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var envelope events.Envelope
	if err := json.Unmarshal(msg.Data(), &envelope); err != nil {
		s.terminate(msg, fmt.Errorf("unmarshal event envelope: %w", err))
		return
	}

	if envelope.EventType != events.EventTypeLapUpdate {
		log.Debug().
			Str("event_type", envelope.EventType).
			Str("subject", msg.Subject()).
			Msg("ignoring non-lap event")
		s.ack(msg)
		return
	}

	ev, err := events.DecodeLapUpdate(envelope.Payload)
	if err != nil {
		s.terminate(msg, err)
		return
	}

	if err := s.sink.ApplyLapEvent(ctx, ev); err != nil {
		log.Error().
			Err(err).
			Str("event_id", envelope.EventID).
			Int("tag_id", ev.TagID).
			Msg("failed to apply lap event")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
		return
	}

	log.Debug().
		Str("event_id", envelope.EventID).
		Int("tag_id", ev.TagID).
		Int("lap_number", ev.LapNumber).
		Msg("lap event applied from JetStream")
	s.ack(msg)
}

func (s *NATSSource) ack(msg jetstream.Msg) {
	if err := msg.Ack(); err != nil {
		log.Error().Err(err).Msg("failed to ACK message")
	}
}

func (s *NATSSource) terminate(msg jetstream.Msg, cause error) {
	log.Warn().
		Err(cause).
		Str("subject", msg.Subject()).
		Msg("dropping malformed lap message")
	if err := msg.TermWithReason(cause.Error()); err != nil {
		log.Error().Err(err).Msg("failed to TERM message")
	}
}
