package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/visionlap/go/internal/race/rpc"
	"github.com/mcdev12/visionlap/go/internal/raceconfig"
)

func setupServer(cfg raceconfig.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services)
	setupHealthCheck(mux, services)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Display websocket and REST control
	services.Gateway.RegisterRoutes(mux, services.Controller)

	// Connect RPC
	path, handler := rpc.NewRaceControlServiceHandler(services.RPC)
	mux.Handle(path, handler)

	mux.Handle("/metrics", services.Metrics.Handler())
}

type healthResponse struct {
	Healthy       bool   `json:"healthy"`
	Phase         string `json:"phase,omitempty"`
	NATSConnected *bool  `json:"nats_connected,omitempty"`
	Connections   int    `json:"display_connections"`
	Error         string `json:"error,omitempty"`
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := healthResponse{
			Healthy:     true,
			Connections: services.Gateway.GetStats().TotalConnections,
		}

		snap, err := services.Controller.Snapshot(r.Context())
		if err != nil {
			status.Healthy = false
			status.Error = err.Error()
		} else {
			status.Phase = string(snap.Phase)
		}
		if services.nc != nil {
			connected := services.nc.IsConnected()
			status.NATSConnected = &connected
			status.Healthy = status.Healthy && connected
		}

		code := http.StatusOK
		if !status.Healthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
