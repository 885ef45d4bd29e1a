package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// RaceControlServiceName is the fully-qualified name of the race control service
const RaceControlServiceName = "visionlap.race.v1.RaceControlService"

const (
	StartRaceProcedure    = "/" + RaceControlServiceName + "/StartRace"
	StopRaceProcedure     = "/" + RaceControlServiceName + "/StopRace"
	GetSnapshotProcedure  = "/" + RaceControlServiceName + "/GetSnapshot"
	UpdateConfigProcedure = "/" + RaceControlServiceName + "/UpdateConfig"
)

// NewRaceControlServiceHandler builds an HTTP handler for every race control procedure.
// It returns the path to mount the handler on.
func NewRaceControlServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	startRace := connect.NewUnaryHandler(StartRaceProcedure, svc.StartRace, opts...)
	stopRace := connect.NewUnaryHandler(StopRaceProcedure, svc.StopRace, opts...)
	getSnapshot := connect.NewUnaryHandler(GetSnapshotProcedure, svc.GetSnapshot, opts...)
	updateConfig := connect.NewUnaryHandler(UpdateConfigProcedure, svc.UpdateConfig, opts...)

	return "/" + RaceControlServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case StartRaceProcedure:
			startRace.ServeHTTP(w, r)
		case StopRaceProcedure:
			stopRace.ServeHTTP(w, r)
		case GetSnapshotProcedure:
			getSnapshot.ServeHTTP(w, r)
		case UpdateConfigProcedure:
			updateConfig.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// RaceControlClient calls the race control procedures
type RaceControlClient struct {
	startRace    *connect.Client[emptypb.Empty, structpb.Struct]
	stopRace     *connect.Client[emptypb.Empty, structpb.Struct]
	getSnapshot  *connect.Client[emptypb.Empty, structpb.Struct]
	updateConfig *connect.Client[structpb.Struct, structpb.Struct]
}

// NewRaceControlClient creates a client for the service mounted at baseURL
func NewRaceControlClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *RaceControlClient {
	return &RaceControlClient{
		startRace:    connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+StartRaceProcedure, opts...),
		stopRace:     connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+StopRaceProcedure, opts...),
		getSnapshot:  connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+GetSnapshotProcedure, opts...),
		updateConfig: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+UpdateConfigProcedure, opts...),
	}
}

func (c *RaceControlClient) StartRace(ctx context.Context) (*structpb.Struct, error) {
	return unary(ctx, c.startRace, &emptypb.Empty{})
}

func (c *RaceControlClient) StopRace(ctx context.Context) (*structpb.Struct, error) {
	return unary(ctx, c.stopRace, &emptypb.Empty{})
}

func (c *RaceControlClient) GetSnapshot(ctx context.Context) (*structpb.Struct, error) {
	return unary(ctx, c.getSnapshot, &emptypb.Empty{})
}

func (c *RaceControlClient) UpdateConfig(ctx context.Context, cfg *structpb.Struct) (*structpb.Struct, error) {
	return unary(ctx, c.updateConfig, cfg)
}

func unary[Req any](ctx context.Context, client *connect.Client[Req, structpb.Struct], msg *Req) (*structpb.Struct, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
