package grpcclient

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/turnstile/internal/authority"
	"github.com/BrandonDHaskell/turnstile/internal/gate/types"
)

// server exposes any authority.Client as an AuthorityServer. The dev
// authority and the tests serve the in-memory authority through it.
type server struct {
	backend authority.Client
}

func NewServer(backend authority.Client) AuthorityServer {
	return &server{backend: backend}
}

func (s *server) Ping(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.backend.Ping(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *server) PushValidations(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Records []types.ValidationRecord `json:"records"`
	}
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	results, err := s.backend.PushValidations(ctx, req.Records)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"results": results})
}

func (s *server) FetchSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	eventID := in.GetFields()["event_id"].GetStringValue()
	if eventID == "" {
		return nil, status.Error(codes.InvalidArgument, "event_id is required")
	}
	snap, err := s.backend.FetchSnapshot(ctx, eventID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(snap)
}

func (s *server) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var a types.QueuedAction
	if err := fromStruct(in, &a); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if keys := md.Get(IdempotencyKey); len(keys) > 0 && keys[0] != "" {
			a.ID = keys[0]
		}
	}
	if a.ID == "" {
		return nil, status.Error(codes.InvalidArgument, IdempotencyKey+" is required")
	}
	if err := s.backend.Execute(ctx, a); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, authority.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, authority.ErrRejected):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
