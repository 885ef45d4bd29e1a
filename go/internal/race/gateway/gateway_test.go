package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/visionlap/go/internal/race/session"
)

type gaugeFunc func(float64)

func (g gaugeFunc) Set(v float64) { g(v) }

func newTestGateway(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()

	svc := NewService(DefaultConfig())
	ctrl, err := session.New(session.DefaultConfig(),
		session.WithClock(clockwork.NewFakeClock()),
		session.WithObserver(svc),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = ctrl.Run(ctx) }()
	go func() { _ = svc.Start(ctx) }()

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux, ctrl)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-ctrl.Done()
	})
	return srv, svc
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStateStartsIdle(t *testing.T) {
	srv, _ := newTestGateway(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/race/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := decode[session.Snapshot](t, resp)
	assert.Equal(t, session.PhaseIdle, snap.Phase)
	assert.Equal(t, session.DefaultConfig(), snap.Config)
	assert.Empty(t, snap.Leaderboard)
}

func TestStartThenSecondStartConflicts(t *testing.T) {
	srv, _ := newTestGateway(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/race/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[StatusResponse](t, resp)
	assert.Equal(t, "started", status.Status)
	assert.Equal(t, session.PhasePreparing, status.Phase)
	assert.NotEmpty(t, status.SessionID)

	resp = do(t, http.MethodPost, srv.URL+"/api/race/start", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/race/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/race/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, session.PhaseIdle, decode[StatusResponse](t, resp).Phase)
}

func TestConfigEndpoints(t *testing.T) {
	srv, _ := newTestGateway(t)

	resp := do(t, http.MethodPut, srv.URL+"/api/race/config", `{"prep_time_seconds":30,"max_time_minutes":8,"max_laps":12}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/race/config", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, session.Config{PrepTimeSeconds: 30, MaxTimeMinutes: 8, MaxLaps: 12}, decode[session.Config](t, resp))

	resp = do(t, http.MethodPut, srv.URL+"/api/race/config", `{"prep_time_seconds":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPut, srv.URL+"/api/race/config", `{"prep":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	do(t, http.MethodPost, srv.URL+"/api/race/start", "")
	resp = do(t, http.MethodPut, srv.URL+"/api/race/config", `{"prep_time_seconds":10,"max_time_minutes":1,"max_laps":1}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestManualLapEntryFeedsLeaderboard(t *testing.T) {
	srv, _ := newTestGateway(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/laps", `{"tag_id":1,"nickname":"driver1","lap_number":1,"lap_time":32.1}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = do(t, http.MethodPost, srv.URL+"/api/laps", `{"tag_id":1,"nickname":"driver1","lap_number":2,"lap_time":30.5}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = do(t, http.MethodPost, srv.URL+"/api/laps", `{"tag_id":2,"nickname":"driver2","lap_number":1,"lap_time":31.0}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/laps", `{"tag_id":3,"lap_number":1,"lap_time":-2}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/race/leaderboard", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	board := decode[LeaderboardResponse](t, resp)

	require.Len(t, board.Standings, 2)
	assert.Equal(t, 10, board.MaxLaps)
	assert.Equal(t, "driver1", board.Standings[0].DisplayName)
	assert.Equal(t, 2, board.Standings[0].Laps)
	require.NotNil(t, board.Standings[0].BestLapSeconds)
	assert.Equal(t, 30.5, *board.Standings[0].BestLapSeconds)
	assert.Equal(t, "driver2", board.Standings[1].DisplayName)
}

func readEvent(t *testing.T, conn *websocket.Conn) RaceEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev RaceEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocketDisplayReceivesSnapshots(t *testing.T) {
	srv, svc := newTestGateway(t)

	var connections float64
	gaugeSet := make(chan float64, 10)
	svc.SetConnectionGauge(gaugeFunc(func(v float64) { gaugeSet <- v }))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/race", nil)
	require.NoError(t, err)
	defer conn.Close()

	welcome := readEvent(t, conn)
	assert.Equal(t, EventTypeRaceState, welcome.Type)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(welcome.Data, &snap))
	assert.Equal(t, session.PhaseIdle, snap.Phase)

	select {
	case connections = <-gaugeSet:
	case <-time.After(time.Second):
		t.Fatal("gauge was not updated")
	}
	assert.Equal(t, 1.0, connections)

	resp := do(t, http.MethodPost, srv.URL+"/api/race/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	update := readEvent(t, conn)
	require.NoError(t, json.Unmarshal(update.Data, &snap))
	assert.Equal(t, session.PhasePreparing, snap.Phase)
	assert.Equal(t, 60, snap.GridSecondsRemaining)

	resp = do(t, http.MethodGet, srv.URL+"/ws/stats", "")
	assert.Equal(t, 1, decode[ConnectionStats](t, resp).TotalConnections)
}

func TestWarningsAreBroadcast(t *testing.T) {
	srv, svc := newTestGateway(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/race", nil)
	require.NoError(t, err)
	defer conn.Close()
	readEvent(t, conn)

	require.Eventually(t, func() bool {
		return svc.GetStats().TotalConnections == 1
	}, time.Second, 5*time.Millisecond)

	svc.OnWarning(session.Warning{Operation: "session_start", Err: assert.AnError, At: time.Now()})

	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeWarning, ev.Type)
	assert.Contains(t, string(ev.Data), "session_start")
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusCode(session.ErrInvalidArgument))
	assert.Equal(t, http.StatusConflict, StatusCode(session.ErrIllegalTransition))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(session.ErrControllerStopped))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(assert.AnError))
}
