// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package grpc carries action invocations between broker processes.
package grpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/pkg/errutil"
)

// Dispatcher runs actions on the serving side.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, inv *contract.Invocation) (json.RawMessage, error)
	Internal() contract.Caller
}

// Server exposes a dispatcher as the broker service. Invocations marked
// internal by the peer run as trusted nested calls; all others go through
// the external entry point.
type Server struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a Server over dispatcher.
func NewServer(dispatcher Dispatcher, opts ...ServerOption) *Server {
	s := &Server{dispatcher: dispatcher, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches the broker service to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

// NewGRPCServer builds a grpc.Server with the broker service registered.
// A nil tlsConfig serves plaintext.
func (s *Server) NewGRPCServer(tlsConfig *tls.Config) *grpc.Server {
	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(s.logCalls)}
	if tlsConfig != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	g := grpc.NewServer(opts...)
	s.Register(g)
	return g
}

// Call implements the broker service.
func (s *Server) Call(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed invocation")
	}
	if req.Action == "" {
		return nil, status.Error(codes.InvalidArgument, "action is required")
	}

	inv := req.invocation()
	var (
		res json.RawMessage
		err error
	)
	if req.Internal {
		res, err = s.dispatcher.Internal().Call(ctx, req.Action, inv)
	} else {
		res, err = s.dispatcher.Dispatch(ctx, req.Action, inv)
	}

	out := reply{Meta: inv.Meta}
	if err != nil {
		classified := apierr.Classify(err)
		api := classified.API()
		out.Error = &api
		out.Violations = classified.Violations
	} else {
		out.Result = res
	}

	encoded, encErr := toStruct(out)
	if encErr != nil {
		errutil.LogErrorContext(ctx, s.logger, "encode broker reply", encErr, "action", req.Action)
		return nil, status.Error(codes.Internal, "reply could not be encoded")
	}
	return encoded, nil
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "grpc call failed",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
	s.logger.DebugContext(ctx, "grpc call", "method", info.FullMethod, "duration", time.Since(start))
	return resp, nil
}
