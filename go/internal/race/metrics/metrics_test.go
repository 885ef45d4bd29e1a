package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersFollowSessionHooks(t *testing.T) {
	m := NewPrometheusMetrics()

	m.PhaseEntered("preparing")
	m.PhaseEntered("preparing")
	m.PhaseEntered("running")
	m.LapApplied(false)
	m.LapApplied(true)
	m.NotificationFailed("session_stop")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.phaseTransitions.WithLabelValues("preparing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.phaseTransitions.WithLabelValues("running")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lapEvents))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lapRegressions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationFailures.WithLabelValues("session_stop")))
}

func TestConnectionGauge(t *testing.T) {
	m := NewPrometheusMetrics()
	m.ConnectionGauge().Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.wsConnections))
}

type stubNotifier struct {
	err error
}

func (s stubNotifier) SessionStarted(context.Context) error { return s.err }
func (s stubNotifier) SessionStopped(context.Context) error { return s.err }

func TestMetricNotifierRecordsOutcome(t *testing.T) {
	m := NewPrometheusMetrics()

	ok := NewMetricNotifier(stubNotifier{}, m)
	require.NoError(t, ok.SessionStarted(context.Background()))

	failing := NewMetricNotifier(stubNotifier{err: errors.New("boom")}, m)
	require.Error(t, failing.SessionStopped(context.Background()))

	assert.Equal(t, 2, testutil.CollectAndCount(m.notificationDuration))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewPrometheusMetrics()
	m.LapApplied(false)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "visionlap_lap_events_total 1")
	assert.Contains(t, string(body), "visionlap_ws_connections 0")
}
