package lapfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/visionlap/go/internal/race/events"
)

// Frame is one push message from the timing backend
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WebSocketConfig holds the upstream push channel settings
type WebSocketConfig struct {
	URL               string
	HandshakeTimeout  time.Duration
	ReconnectInterval time.Duration
	MaxReconnectWait  time.Duration
	ReadTimeout       time.Duration
}

// DefaultWebSocketConfig returns defaults for url
func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		URL:               url,
		HandshakeTimeout:  10 * time.Second,
		ReconnectInterval: 500 * time.Millisecond,
		MaxReconnectWait:  30 * time.Second,
		ReadTimeout:       90 * time.Second,
	}
}

// WebSocketSource reads lap_update frames from the backend push channel and reconnects
// with exponential backoff whenever the connection drops.
type WebSocketSource struct {
	config WebSocketConfig
	dialer *websocket.Dialer
	sink   Sink

	reconnects atomic.Int64
}

func NewWebSocketSource(config WebSocketConfig, sink Sink) *WebSocketSource {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = config.HandshakeTimeout

	return &WebSocketSource{
		config: config,
		dialer: &dialer,
		sink:   sink,
	}
}

// Reconnects returns how many times the connection was re-established
func (s *WebSocketSource) Reconnects() int64 {
	return s.reconnects.Load()
}

// Run keeps a connection open until ctx is cancelled
func (s *WebSocketSource) Run(ctx context.Context) error {
	log.Info().Str("url", s.config.URL).Msg("starting upstream lap feed")

	connected := false
	for {
		conn, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("upstream lap feed shutting down")
				return nil
			}
			return fmt.Errorf("connect upstream lap feed: %w", err)
		}
		if connected {
			s.reconnects.Add(1)
			log.Info().Str("url", s.config.URL).Msg("upstream lap feed reconnected")
		}
		connected = true

		err = s.readLoop(ctx, conn)
		if ctx.Err() != nil {
			log.Info().Msg("upstream lap feed shutting down")
			return nil
		}
		log.Warn().Err(err).Str("url", s.config.URL).Msg("upstream lap feed disconnected")
	}
}

func (s *WebSocketSource) connect(ctx context.Context) (*websocket.Conn, error) {
	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = s.config.ReconnectInterval
	backOff.MaxInterval = s.config.MaxReconnectWait
	backOff.MaxElapsedTime = 0 // retry until ctx is done

	var conn *websocket.Conn
	err := backoff.RetryNotify(func() error {
		c, resp, err := s.dialer.DialContext(ctx, s.config.URL, http.Header{})
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return fmt.Errorf("dial failed: %w", err)
		}
		conn = c
		return nil
	}, backoff.WithContext(backOff, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("upstream lap feed dial failed")
	})
	return conn, err
}

func (s *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.handleFrame(ctx, data); err != nil {
			log.Warn().Err(err).Msg("skipping upstream frame")
		}
	}
}

func (s *WebSocketSource) handleFrame(ctx context.Context, data []byte) error {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	if frame.Event != events.EventTypeLapUpdate {
		log.Debug().Str("event", frame.Event).Msg("ignoring upstream event")
		return nil
	}

	ev, err := events.DecodeLapUpdate(frame.Data)
	if err != nil {
		return err
	}
	if err := s.sink.ApplyLapEvent(ctx, ev); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("apply lap event: %w", err)
	}
	return nil
}
