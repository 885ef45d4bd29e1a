package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcdev12/visionlap/go/internal/race/session"
)

const namespace = "visionlap"

// PrometheusMetrics implements session.Metrics on a dedicated registry
type PrometheusMetrics struct {
	registry *prometheus.Registry

	phaseTransitions     *prometheus.CounterVec
	lapEvents            prometheus.Counter
	lapRegressions       prometheus.Counter
	notificationFailures *prometheus.CounterVec
	notificationDuration *prometheus.HistogramVec
	wsConnections        prometheus.Gauge
}

var _ session.Metrics = (*PrometheusMetrics)(nil)

func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		phaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Race session phases entered.",
		}, []string{"phase"}),
		lapEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lap_events_total",
			Help:      "Lap events applied to the leaderboard.",
		}),
		lapRegressions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lap_regressions_total",
			Help:      "Lap events whose lap number was lower than the recorded count.",
		}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Failed session start/stop notifications.",
		}, []string{"op"}),
		notificationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_duration_seconds",
			Help:      "Latency of session start/stop notifications.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open race display WebSocket connections.",
		}),
	}

	m.registry.MustRegister(
		m.phaseTransitions,
		m.lapEvents,
		m.lapRegressions,
		m.notificationFailures,
		m.notificationDuration,
		m.wsConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *PrometheusMetrics) PhaseEntered(phase string) {
	m.phaseTransitions.WithLabelValues(phase).Inc()
}

func (m *PrometheusMetrics) LapApplied(regressed bool) {
	m.lapEvents.Inc()
	if regressed {
		m.lapRegressions.Inc()
	}
}

func (m *PrometheusMetrics) NotificationFailed(op string) {
	m.notificationFailures.WithLabelValues(op).Inc()
}

// RecordNotification observes the latency of one notification call
func (m *PrometheusMetrics) RecordNotification(op string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.notificationDuration.WithLabelValues(op, status).Observe(duration.Seconds())
}

// ConnectionGauge is the display connection gauge, for gateway.Service.SetConnectionGauge
func (m *PrometheusMetrics) ConnectionGauge() prometheus.Gauge {
	return m.wsConnections
}

// Handler serves the registry in the Prometheus exposition format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// NotificationRecorder records notification latency
type NotificationRecorder interface {
	RecordNotification(op string, success bool, duration time.Duration)
}

// MetricNotifier wraps a session.Notifier with latency metrics
type MetricNotifier struct {
	notifier session.Notifier
	metrics  NotificationRecorder
}

func NewMetricNotifier(notifier session.Notifier, metrics NotificationRecorder) *MetricNotifier {
	return &MetricNotifier{
		notifier: notifier,
		metrics:  metrics,
	}
}

func (n *MetricNotifier) SessionStarted(ctx context.Context) error {
	start := time.Now()
	err := n.notifier.SessionStarted(ctx)
	n.metrics.RecordNotification("session_start", err == nil, time.Since(start))
	return err
}

func (n *MetricNotifier) SessionStopped(ctx context.Context) error {
	start := time.Now()
	err := n.notifier.SessionStopped(ctx)
	n.metrics.RecordNotification("session_stop", err == nil, time.Since(start))
	return err
}
