// Package grpcclient talks to the authority over gRPC.
//
// The service carries google.protobuf.Struct messages whose fields mirror
// the JSON shapes used by the HTTP transport, so no generated code is
// needed on either side.
package grpcclient

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "turnstile.authority.v1.Authority"

	methodPing            = "Ping"
	methodPushValidations = "PushValidations"
	methodFetchSnapshot   = "FetchSnapshot"
	methodExecute         = "Execute"

	// IdempotencyKey is the metadata key carrying a queued action id.
	IdempotencyKey = "idempotency-key"
)

// AuthorityServer is the server side of the Authority service.
type AuthorityServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PushValidations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FetchSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AuthorityServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthorityServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthorityServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthorityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodPing, Handler: unaryHandler(methodPing, AuthorityServer.Ping)},
		{MethodName: methodPushValidations, Handler: unaryHandler(methodPushValidations, AuthorityServer.PushValidations)},
		{MethodName: methodFetchSnapshot, Handler: unaryHandler(methodFetchSnapshot, AuthorityServer.FetchSnapshot)},
		{MethodName: methodExecute, Handler: unaryHandler(methodExecute, AuthorityServer.Execute)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "turnstile/authority/v1/authority.proto",
}

// RegisterAuthorityServer registers srv on s.
func RegisterAuthorityServer(s grpc.ServiceRegistrar, srv AuthorityServer) {
	s.RegisterService(&serviceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// toStruct converts any JSON-encodable value whose encoding is an object.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode struct: %w", err)
	}
	return nil
}
