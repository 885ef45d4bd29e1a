package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/visionlap/go/internal/race/gateway"
	"github.com/mcdev12/visionlap/go/internal/race/session"
)

// Service implements the RaceControlService Connect procedures
type Service struct {
	controller gateway.Controller
}

// NewService creates a new race control RPC service
func NewService(controller gateway.Controller) *Service {
	return &Service{
		controller: controller,
	}
}

// StartRace begins the race sequence and returns the resulting snapshot
func (s *Service) StartRace(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	if err := s.controller.Start(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return s.snapshotResponse(ctx)
}

// StopRace aborts the current session and returns the resulting snapshot
func (s *Service) StopRace(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	if err := s.controller.Stop(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return s.snapshotResponse(ctx)
}

// GetSnapshot returns the current race snapshot
func (s *Service) GetSnapshot(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return s.snapshotResponse(ctx)
}

// UpdateConfig replaces the race configuration while idle
func (s *Service) UpdateConfig(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	cfg, err := configFromStruct(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.controller.UpdateConfig(ctx, cfg); err != nil {
		return nil, toConnectError(err)
	}

	out, err := toStruct(cfg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

func (s *Service) snapshotResponse(ctx context.Context) (*connect.Response[structpb.Struct], error) {
	snap, err := s.controller.Snapshot(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	out, err := toStruct(snap)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(out), nil
}

// toStruct converts a JSON-tagged value into a protobuf Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert %T to struct: %w", v, err)
	}
	return out, nil
}

func configFromStruct(s *structpb.Struct) (session.Config, error) {
	var cfg session.Config
	data, err := protojson.Marshal(s)
	if err != nil {
		return cfg, fmt.Errorf("marshal config struct: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, session.ErrInvalidArgument):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, session.ErrIllegalTransition):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, session.ErrControllerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
