package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/visionlap/go/internal/race/session"
)

func newTestClient(t *testing.T) *RaceControlClient {
	t.Helper()

	ctrl, err := session.New(session.DefaultConfig(), session.WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = ctrl.Run(ctx) }()

	mux := http.NewServeMux()
	path, handler := NewRaceControlServiceHandler(NewService(ctrl))
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-ctrl.Done()
	})
	return NewRaceControlClient(srv.Client(), srv.URL)
}

func structOf(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestStartAndStopRace(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	snap, err := client.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", snap.Fields["phase"].GetStringValue())

	snap, err = client.StartRace(ctx)
	require.NoError(t, err)
	assert.Equal(t, "preparing", snap.Fields["phase"].GetStringValue())
	assert.Equal(t, 60.0, snap.Fields["grid_seconds_remaining"].GetNumberValue())
	assert.NotEmpty(t, snap.Fields["session_id"].GetStringValue())

	_, err = client.StartRace(ctx)
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	snap, err = client.StopRace(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", snap.Fields["phase"].GetStringValue())
}

func TestUpdateConfig(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	out, err := client.UpdateConfig(ctx, structOf(t, map[string]any{
		"prep_time_seconds": 45,
		"max_time_minutes":  6,
		"max_laps":          8,
	}))
	require.NoError(t, err)
	assert.Equal(t, 45.0, out.Fields["prep_time_seconds"].GetNumberValue())

	snap, err := client.GetSnapshot(ctx)
	require.NoError(t, err)
	cfg := snap.Fields["config"].GetStructValue()
	require.NotNil(t, cfg)
	assert.Equal(t, 6.0, cfg.Fields["max_time_minutes"].GetNumberValue())

	_, err = client.UpdateConfig(ctx, structOf(t, map[string]any{"max_laps": -1}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.UpdateConfig(ctx, structOf(t, map[string]any{"laps": 3}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.StartRace(ctx)
	require.NoError(t, err)
	_, err = client.UpdateConfig(ctx, structOf(t, map[string]any{"max_laps": 3}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestToConnectError(t *testing.T) {
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(toConnectError(session.ErrControllerStopped)))
	assert.Equal(t, connect.CodeDeadlineExceeded, connect.CodeOf(toConnectError(context.DeadlineExceeded)))
	assert.Equal(t, connect.CodeInternal, connect.CodeOf(toConnectError(assert.AnError)))
}
