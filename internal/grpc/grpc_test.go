// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package grpc_test

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/auth"
	authactions "github.com/deckhand/deckhand/internal/auth/actions"
	authmemory "github.com/deckhand/deckhand/internal/auth/memory"
	"github.com/deckhand/deckhand/internal/broker"
	"github.com/deckhand/deckhand/internal/certs"
	"github.com/deckhand/deckhand/internal/contract"
	dgrpc "github.com/deckhand/deckhand/internal/grpc"
	"github.com/deckhand/deckhand/internal/users"
	"github.com/deckhand/deckhand/internal/users/memory"
	"github.com/deckhand/deckhand/pkg/errutil"
)

var cheapParams = auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 8, KeyLen: 16}

type peers struct {
	gateway  *broker.Broker
	users    *broker.Broker
	server   *dgrpc.Server
	client   *dgrpc.Client
	sessions *authmemory.Store
}

// startPeers runs a users-only broker behind a bufconn gRPC server and a
// full broker that reaches it through the client.
func startPeers(t *testing.T, serverTLS, clientTLS *tls.Config) *peers {
	t.Helper()
	sessions := authmemory.NewStore()

	usersBroker, err := broker.NewUsers(memory.New(), sessions, nil)
	require.NoError(t, err)

	server := dgrpc.NewServer(usersBroker.Dispatcher)
	g := server.NewGRPCServer(serverTLS)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = g.Serve(lis) }()
	t.Cleanup(g.Stop)

	client, err := dgrpc.NewClient(dgrpc.ClientConfig{
		Address:   "passthrough:///bufnet",
		TLSConfig: clientTLS,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	gw, err := broker.New(broker.Config{
		UsersTransport: client,
		Sessions:       sessions,
		Hasher:         auth.NewArgon2idHasherWithParams(cheapParams),
	})
	require.NoError(t, err)

	return &peers{gateway: gw, users: usersBroker, server: server, client: client, sessions: sessions}
}

func dispatch(t *testing.T, p *peers, name, params, token string) (json.RawMessage, contract.Meta, error) {
	t.Helper()
	inv := &contract.Invocation{Params: json.RawMessage(params), Meta: contract.Meta{SessionToken: token}}
	res, err := p.gateway.Dispatcher.Dispatch(context.Background(), name, inv)
	return res, inv.Meta, err
}

func TestRemoteUsers_AuthFlow(t *testing.T) {
	p := startPeers(t, nil, nil)

	registered, _, err := dispatch(t, p, authactions.Register, `{"email":"ann@example.com","password":"correct-horse"}`, "")
	require.NoError(t, err)
	assert.NotContains(t, string(registered), "password")

	_, meta, err := dispatch(t, p, authactions.Login, `{"email":"ann@example.com","password":"correct-horse"}`, "")
	require.NoError(t, err)
	require.NotEmpty(t, meta.IssuedToken)

	me, _, err := dispatch(t, p, users.Me, `{}`, meta.IssuedToken)
	require.NoError(t, err)
	assert.JSONEq(t, string(registered), string(me))

	_, _, err = dispatch(t, p, authactions.Login, `{"email":"ann@example.com","password":"wrong-horse"}`, "")
	errutil.AssertKind(t, err, apierr.KindInvalidCredentials)

	_, _, err = dispatch(t, p, authactions.Register, `{"email":"ann@example.com","password":"correct-horse"}`, "")
	errutil.AssertKind(t, err, apierr.KindDuplicateField)
}

func TestRemoteUsers_InternalActionsStayHidden(t *testing.T) {
	p := startPeers(t, nil, nil)

	_, _, err := dispatch(t, p, users.Find, `{"email":"ann@example.com"}`, "")
	errutil.AssertKind(t, err, apierr.KindUnauthorized)
}

func TestRemoteUsers_MeRequiresSession(t *testing.T) {
	p := startPeers(t, nil, nil)

	_, _, err := dispatch(t, p, users.Me, `{}`, "")
	errutil.AssertKind(t, err, apierr.KindUnauthorized)
}

func TestRemoteUsers_ViolationsCrossTheWire(t *testing.T) {
	p := startPeers(t, nil, nil)

	_, err := p.gateway.Dispatcher.Internal().Call(context.Background(), users.Create,
		&contract.Invocation{Params: json.RawMessage(`{"email":"nope"}`)})
	errutil.AssertKind(t, err, apierr.KindValidation)
	classified := apierr.Classify(err)
	assert.NotEmpty(t, classified.Violations)
}

func TestClient_MetaCopiedBack(t *testing.T) {
	p := startPeers(t, nil, nil)

	inv := &contract.Invocation{
		Action:   users.Find,
		Params:   json.RawMessage(`{"email":"nobody@example.com"}`),
		Meta:     contract.Meta{SessionToken: "tok"},
		Internal: true,
	}
	_, err := p.client.Invoke(context.Background(), inv)
	errutil.AssertKind(t, err, apierr.KindUserNotFound)
	assert.ErrorIs(t, err, apierr.ErrUserNotFound)
	assert.Equal(t, "tok", inv.Meta.SessionToken)
}

func TestServer_RejectsMalformedInvocation(t *testing.T) {
	p := startPeers(t, nil, nil)

	_, err := p.server.Call(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	bad, err := structpb.NewStruct(map[string]any{"action": 42})
	require.NoError(t, err)
	_, err = p.server.Call(context.Background(), bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestClient_TransportFailureIsUnhandled(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	require.NoError(t, lis.Close())

	client, err := dgrpc.NewClient(dgrpc.ClientConfig{
		Address: "passthrough:///closed",
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Invoke(context.Background(), &contract.Invocation{Action: users.Get})
	errutil.AssertKind(t, err, apierr.KindUnhandled)
	assert.True(t, apierr.Classify(err).Retryable())
}

func TestNewClient_RequiresAddress(t *testing.T) {
	_, err := dgrpc.NewClient(dgrpc.ClientConfig{})
	errutil.AssertErrorCode(t, err, "GRPC_CLIENT_CONFIG_INVALID")
}

func TestMutualTLS(t *testing.T) {
	dir := t.TempDir()
	ca, err := certs.GenerateCA("test")
	require.NoError(t, err)
	serverLeaf, err := ca.Issue("users")
	require.NoError(t, err)
	clientLeaf, err := ca.Issue("gateway")
	require.NoError(t, err)
	require.NoError(t, certs.Save(dir, ca, serverLeaf, clientLeaf))

	files := func(leaf *certs.Leaf) dgrpc.TLSFiles {
		return dgrpc.TLSFiles{
			CertFile: filepath.Join(dir, leaf.CertFile()),
			KeyFile:  filepath.Join(dir, leaf.KeyFile()),
			CAFile:   filepath.Join(dir, certs.CACertFile),
		}
	}
	serverTLS, err := files(serverLeaf).ServerTLS()
	require.NoError(t, err)
	clientTLS, err := files(clientLeaf).ClientTLS("localhost")
	require.NoError(t, err)

	p := startPeers(t, serverTLS, clientTLS)
	_, _, err = dispatch(t, p, authactions.Register, `{"email":"tls@example.com","password":"correct-horse"}`, "")
	require.NoError(t, err)
}

func TestTLSFiles(t *testing.T) {
	assert.False(t, dgrpc.TLSFiles{}.Enabled())
	assert.True(t, dgrpc.TLSFiles{CAFile: "ca.crt"}.Enabled())

	_, err := dgrpc.TLSFiles{CertFile: "missing.crt", KeyFile: "missing.key", CAFile: "ca.crt"}.ServerTLS()
	errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")
}
