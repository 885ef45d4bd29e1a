package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/visionlap/go/internal/race/backend"
	"github.com/mcdev12/visionlap/go/internal/race/bus"
	"github.com/mcdev12/visionlap/go/internal/race/gateway"
	"github.com/mcdev12/visionlap/go/internal/race/lapfeed"
	"github.com/mcdev12/visionlap/go/internal/race/metrics"
	"github.com/mcdev12/visionlap/go/internal/race/rpc"
	"github.com/mcdev12/visionlap/go/internal/race/session"
	"github.com/mcdev12/visionlap/go/internal/raceconfig"
)

// Services holds the wired race control components
type Services struct {
	Controller *session.Controller
	Gateway    *gateway.Service
	RPC        *rpc.Service
	Metrics    *metrics.PrometheusMetrics
	LapSource  lapfeed.Source

	nc *nats.Conn
	wg sync.WaitGroup
}

func setupServices(ctx context.Context, cfg raceconfig.Config, raceDefaults session.Config) (*Services, error) {
	s := &Services{
		Metrics: metrics.NewPrometheusMetrics(),
		Gateway: gateway.NewService(gateway.DefaultConfig()),
	}
	s.Gateway.SetConnectionGauge(s.Metrics.ConnectionGauge())

	// Backend notifier, timed
	backendClient := backend.NewClient(cfg.BackendURL)
	backendClient.SetTimeout(cfg.BackendTimeout)
	notifier := metrics.NewMetricNotifier(backendClient, s.Metrics)

	opts := []session.Option{
		session.WithNotifier(notifier),
		session.WithMetrics(s.Metrics),
		session.WithObserver(s.Gateway),
	}

	// NATS carries status announcements and, optionally, the lap feed
	var js jetstream.JetStream
	if cfg.NATSURL != "" {
		nc, stream, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		s.nc = nc
		js = stream
		opts = append(opts, session.WithObserver(bus.NewStatusPublisher(nc, cfg.EventsSubject)))
	}

	ctrl, err := session.New(raceDefaults, opts...)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create race controller: %w", err)
	}
	s.Controller = ctrl
	s.RPC = rpc.NewService(ctrl)

	switch cfg.LapSource {
	case raceconfig.LapSourceNATS:
		natsCfg := lapfeed.DefaultNATSConfig()
		natsCfg.StreamName = cfg.LapStream
		natsCfg.SubjectFilter = cfg.LapSubject
		natsCfg.ConsumerName = cfg.LapConsumer

		src, err := lapfeed.NewNATSSource(ctx, js, ctrl, natsCfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set up lap consumer: %w", err)
		}
		s.LapSource = src
	case raceconfig.LapSourceWebSocket:
		s.LapSource = lapfeed.NewWebSocketSource(lapfeed.DefaultWebSocketConfig(cfg.UpstreamWSURL), ctrl)
	}

	return s, nil
}

// Start launches the controller loop, the display broadcaster and the lap source
func (s *Services) Start(ctx context.Context) {
	s.run(ctx, "race controller", s.Controller.Run)
	s.run(ctx, "race gateway", s.Gateway.Start)
	if s.LapSource != nil {
		s.run(ctx, "lap source", s.LapSource.Run)
	} else {
		log.Info().Msg("no lap source configured, laps accepted through POST /api/laps only")
	}
}

func (s *Services) run(ctx context.Context, name string, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(ctx); err != nil {
			log.Error().Err(err).Str("component", name).Msg("component failed")
		}
	}()
}

// Wait blocks until every component has returned or ctx expires
func (s *Services) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("timed out waiting for components to stop")
	}
}

// Close releases the NATS connection
func (s *Services) Close() {
	if s.nc != nil {
		s.nc.Drain()
	}
}
