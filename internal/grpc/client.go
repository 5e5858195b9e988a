// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package grpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/deckhand/deckhand/internal/action"
	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/contract"
)

// Client forwards invocations to a remote broker. It implements
// action.Transport.
type Client struct {
	conn *grpc.ClientConn
}

// ClientConfig holds configuration for the gRPC client.
type ClientConfig struct {
	// Address is the target broker address (e.g., "localhost:9100").
	Address string

	// TLSConfig for mTLS. If nil, an insecure connection is used.
	TLSConfig *tls.Config

	// KeepaliveTime is how often to ping the server (default: 10s).
	KeepaliveTime time.Duration

	// KeepaliveTimeout is how long to wait for a ping response (default: 5s).
	KeepaliveTimeout time.Duration

	// DialOptions are appended to the defaults.
	DialOptions []grpc.DialOption
}

// NewClient creates a client for the broker at cfg.Address. The connection
// is established lazily on the first call.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Address == "" {
		return nil, oops.Code("GRPC_CLIENT_CONFIG_INVALID").Errorf("address is required")
	}
	if cfg.KeepaliveTime == 0 {
		cfg.KeepaliveTime = 10 * time.Second
	}
	if cfg.KeepaliveTimeout == 0 {
		cfg.KeepaliveTimeout = 5 * time.Second
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
	}
	if cfg.TLSConfig != nil {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(cfg.TLSConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, oops.Code("GRPC_CLIENT_CONNECT_FAILED").With("address", cfg.Address).Wrap(err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return oops.Code("GRPC_CLIENT_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// Invoke implements action.Transport. Response metadata is copied into
// inv.Meta; remote failures come back as classified errors.
func (c *Client) Invoke(ctx context.Context, inv *contract.Invocation) (json.RawMessage, error) {
	in, err := toStruct(requestOf(inv))
	if err != nil {
		return nil, apierr.New(apierr.KindUnhandled, oops.With("action", inv.Action).Wrap(err))
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, callMethod, in, out); err != nil {
		return nil, apierr.New(apierr.KindUnhandled,
			oops.Code("REMOTE_CALL_FAILED").With("action", inv.Action).Wrap(err))
	}

	var rep reply
	if err := fromStruct(out, &rep); err != nil {
		return nil, apierr.New(apierr.KindUnhandled, oops.With("action", inv.Action).Wrap(err))
	}

	inv.Meta = rep.Meta
	if rep.Error != nil {
		return nil, apierr.FromAPI(*rep.Error, rep.Violations)
	}
	return rep.Result, nil
}

var _ action.Transport = (*Client)(nil)
