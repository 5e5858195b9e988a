// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package broker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand/deckhand/internal/action"
	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/auth"
	authactions "github.com/deckhand/deckhand/internal/auth/actions"
	authmemory "github.com/deckhand/deckhand/internal/auth/memory"
	"github.com/deckhand/deckhand/internal/broker"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/internal/users"
	"github.com/deckhand/deckhand/internal/users/memory"
	"github.com/deckhand/deckhand/pkg/errutil"
)

var cheapParams = auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 8, KeyLen: 16}

type recordingTransport struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingTransport) Invoke(_ context.Context, inv *contract.Invocation) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, inv.Action)
	return nil, apierr.Classify(apierr.Unauthorized())
}

func names(entries []action.Entry) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Name()] = e.Source
	}
	return out
}

func TestNew_RequiresExactlyOneUsersSource(t *testing.T) {
	_, err := broker.New(broker.Config{Sessions: authmemory.NewStore()})
	errutil.AssertErrorCode(t, err, "BROKER_CONFIG_INVALID")

	_, err = broker.New(broker.Config{
		Users:          memory.New(),
		UsersTransport: &recordingTransport{},
		Sessions:       authmemory.NewStore(),
	})
	errutil.AssertErrorCode(t, err, "BROKER_CONFIG_INVALID")
}

func TestNew_RequiresSessions(t *testing.T) {
	_, err := broker.New(broker.Config{Users: memory.New()})
	assert.ErrorIs(t, err, auth.ErrNilSessionStore)

	_, err = broker.NewUsers(memory.New(), nil, nil)
	assert.ErrorIs(t, err, auth.ErrNilSessionStore)
}

func TestNew_LocalUsers(t *testing.T) {
	b, err := broker.New(broker.Config{
		Users:    memory.New(),
		Sessions: authmemory.NewStore(),
		Hasher:   auth.NewArgon2idHasherWithParams(cheapParams),
	})
	require.NoError(t, err)
	require.NotNil(t, b.Auth)
	assert.True(t, b.Registry.Sealed())

	registered := names(b.Registry.All())
	for _, name := range append([]string{authactions.Login, authactions.Logout, authactions.Register}, users.Names...) {
		assert.Equal(t, action.SourceLocal, registered[name], name)
	}
}

func TestNew_InternalUsersActionsStayHidden(t *testing.T) {
	b, err := broker.New(broker.Config{
		Users:    memory.New(),
		Sessions: authmemory.NewStore(),
		Hasher:   auth.NewArgon2idHasherWithParams(cheapParams),
	})
	require.NoError(t, err)

	for _, name := range []string{users.Find, users.Get, users.Create} {
		_, err := b.Dispatcher.Dispatch(context.Background(), name, &contract.Invocation{Params: json.RawMessage(`{}`)})
		assert.ErrorIs(t, err, apierr.ErrUnauthorized, name)
	}
}

func TestNew_RemoteUsers(t *testing.T) {
	transport := &recordingTransport{}
	b, err := broker.New(broker.Config{
		UsersTransport: transport,
		Sessions:       authmemory.NewStore(),
		Hasher:         auth.NewArgon2idHasherWithParams(cheapParams),
	})
	require.NoError(t, err)

	registered := names(b.Registry.All())
	for _, name := range users.Names {
		assert.Equal(t, action.SourceRemote, registered[name], name)
	}
	assert.Equal(t, action.SourceLocal, registered[authactions.Login])

	_, err = b.Dispatcher.Dispatch(context.Background(), users.Me, &contract.Invocation{})
	assert.ErrorIs(t, err, apierr.ErrUnauthorized)
	assert.Equal(t, []string{users.Me}, transport.names)
}

func TestNewUsers_ServesOnlyUsers(t *testing.T) {
	b, err := broker.NewUsers(memory.New(), authmemory.NewStore(), nil)
	require.NoError(t, err)
	assert.Nil(t, b.Auth)

	registered := names(b.Registry.All())
	assert.Len(t, registered, len(users.Names))
	for _, name := range users.Names {
		assert.Contains(t, registered, name)
	}
}
