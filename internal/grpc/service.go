// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the broker service.
const ServiceName = "deckhand.broker.v1.Broker"

const callMethod = "/" + ServiceName + "/Call"

// brokerServer is the server side of the broker service.
type brokerServer interface {
	Call(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(brokerServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(brokerServer).Call(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc describes the broker service:
//
//	service Broker {
//	  rpc Call(google.protobuf.Struct) returns (google.protobuf.Struct);
//	}
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*brokerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "deckhand/broker/v1/broker.proto",
}
