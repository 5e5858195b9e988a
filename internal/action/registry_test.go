// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package action_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand/deckhand/internal/action"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/pkg/errutil"
)

type echoParams struct {
	Value string `json:"value"`
}

type echoResult struct {
	Value    string `json:"value"`
	Password string `json:"password,omitempty"`
}

func echoAction(t *testing.T, name string) contract.Action {
	t.Helper()
	a, err := contract.Wrap(name, func(_ context.Context, req *contract.Request[echoParams]) (echoResult, error) {
		return echoResult{Value: req.Params.Value}, nil
	})
	require.NoError(t, err)
	return a
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := action.NewRegistry()
	require.NoError(t, reg.Register(action.Entry{
		Action:       echoAction(t, "users.find"),
		Internal:     true,
		Dependencies: []string{},
	}))

	got, ok := reg.Lookup("users.find")
	require.True(t, ok)
	assert.Equal(t, "users.find", got.Name())
	assert.Equal(t, "users", got.Service())
	assert.Equal(t, action.SourceLocal, got.Source)
	assert.True(t, got.Internal)

	_, ok = reg.Lookup("users.missing")
	assert.False(t, ok)
}

func TestRegistry_RejectsMalformedNames(t *testing.T) {
	for _, name := range []string{"users", "users.", ".find", "Users.find", "users.find.extra"} {
		t.Run(name, func(t *testing.T) {
			reg := action.NewRegistry()
			err := reg.Register(action.Entry{Action: echoAction(t, name)})
			errutil.AssertErrorCode(t, err, action.CodeInvalidName)
		})
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	reg := action.NewRegistry()
	require.NoError(t, reg.Register(action.Entry{Action: echoAction(t, "auth.login")}))

	err := reg.Register(action.Entry{Action: echoAction(t, "auth.login")})
	errutil.AssertErrorCode(t, err, action.CodeDuplicate)
	errutil.AssertErrorContext(t, err, "action", "auth.login")
}

func TestRegistry_Seal(t *testing.T) {
	t.Run("missing dependency", func(t *testing.T) {
		reg := action.NewRegistry()
		require.NoError(t, reg.Register(action.Entry{
			Action:       echoAction(t, "auth.login"),
			Dependencies: []string{"users.find"},
		}))

		err := reg.Seal()
		errutil.AssertErrorCode(t, err, action.CodeMissingDependency)
		assert.False(t, reg.Sealed())
	})

	t.Run("sealed registry is frozen", func(t *testing.T) {
		reg := action.NewRegistry()
		require.NoError(t, reg.Register(action.Entry{Action: echoAction(t, "users.find")}))
		require.NoError(t, reg.Register(action.Entry{
			Action:       echoAction(t, "auth.login"),
			Dependencies: []string{"users.find"},
		}))
		require.NoError(t, reg.Seal())
		require.NoError(t, reg.Seal())
		assert.True(t, reg.Sealed())

		err := reg.Register(action.Entry{Action: echoAction(t, "auth.logout")})
		errutil.AssertErrorCode(t, err, action.CodeRegistrySealed)
	})
}

func TestRegistry_AllIsSorted(t *testing.T) {
	reg := action.NewRegistry()
	assert.Empty(t, reg.All())
	assert.NotNil(t, reg.All())

	for _, name := range []string{"users.me", "auth.login", "users.find"} {
		require.NoError(t, reg.Register(action.Entry{Action: echoAction(t, name)}))
	}

	var names []string
	for _, e := range reg.All() {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"auth.login", "users.find", "users.me"}, names)
}

func TestRegistry_RegisterRemote(t *testing.T) {
	reg := action.NewRegistry()
	assert.ErrorIs(t, reg.RegisterRemote(nil, "users.find"), action.ErrNilTransport)

	require.NoError(t, reg.RegisterRemote(&fakeTransport{}, "users.find", "users.get"))
	got, ok := reg.Lookup("users.get")
	require.True(t, ok)
	assert.Equal(t, action.SourceRemote, got.Source)
	assert.Nil(t, got.Action.Input())

	err := reg.RegisterRemote(&fakeTransport{}, "bad")
	errutil.AssertErrorCode(t, err, action.CodeInvalidName)
}
