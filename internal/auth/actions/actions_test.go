// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package actions_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deckhand/deckhand/internal/action"
	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/auth"
	"github.com/deckhand/deckhand/internal/auth/actions"
	authmemory "github.com/deckhand/deckhand/internal/auth/memory"
	"github.com/deckhand/deckhand/internal/auth/mocks"
	"github.com/deckhand/deckhand/internal/broker"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/internal/users"
	"github.com/deckhand/deckhand/internal/users/memory"
	"github.com/deckhand/deckhand/pkg/errutil"
)

var cheapParams = auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 8, KeyLen: 16}

type env struct {
	d        *action.Dispatcher
	sessions *authmemory.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	sessions := authmemory.NewStore()
	b, err := broker.New(broker.Config{
		Users:    memory.New(),
		Sessions: sessions,
		Hasher:   auth.NewArgon2idHasherWithParams(cheapParams),
	})
	require.NoError(t, err)
	return &env{d: b.Dispatcher, sessions: sessions}
}

func (e *env) call(t *testing.T, name, params, token string) (json.RawMessage, contract.Meta, error) {
	t.Helper()
	inv := &contract.Invocation{Params: json.RawMessage(params), Meta: contract.Meta{SessionToken: token}}
	res, err := e.d.Dispatch(context.Background(), name, inv)
	return res, inv.Meta, err
}

func (e *env) register(t *testing.T, email, password string) {
	t.Helper()
	_, _, err := e.call(t, actions.Register, `{"email":"`+email+`","password":"`+password+`"}`, "")
	require.NoError(t, err)
}

func (e *env) login(t *testing.T, email, password, held string) string {
	t.Helper()
	_, meta, err := e.call(t, actions.Login, `{"email":"`+email+`","password":"`+password+`"}`, held)
	require.NoError(t, err)
	require.NotEmpty(t, meta.IssuedToken)
	return meta.IssuedToken
}

func TestRegisterActions_Validation(t *testing.T) {
	assert.ErrorIs(t, actions.RegisterActions(nil, nil, nil), action.ErrNilRegistry)
	errutil.AssertErrorCode(t, actions.RegisterActions(action.NewRegistry(), nil, nil), "AUTH_ACTIONS_NO_SERVICE")
}

func TestRegisterThenLogin(t *testing.T) {
	e := newEnv(t)

	res, meta, err := e.call(t, actions.Register, `{"email":"ann@example.com","password":"correct-horse"}`, "")
	require.NoError(t, err)
	assert.Empty(t, meta.IssuedToken, "register does not log in")

	var registered map[string]any
	require.NoError(t, json.Unmarshal(res, &registered))
	assert.Equal(t, "ann@example.com", registered["email"])
	assert.NotEmpty(t, registered["id"])
	assert.NotContains(t, registered, "password")

	res, meta, err = e.call(t, actions.Login, `{"email":"ann@example.com","password":"correct-horse"}`, "")
	require.NoError(t, err)
	assert.JSONEq(t, string(mustJSON(t, registered)), string(res))
	require.NotEmpty(t, meta.IssuedToken)

	me, _, err := e.call(t, users.Me, `{}`, meta.IssuedToken)
	require.NoError(t, err)
	assert.JSONEq(t, string(res), string(me))

	_, meta, err = e.call(t, actions.Login, `{"email":"ann@example.com","password":"wrong-horse"}`, "")
	errutil.AssertKind(t, err, apierr.KindInvalidCredentials)
	assert.Empty(t, meta.IssuedToken)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ann@example.com", "correct-horse")

	_, _, unknown := e.call(t, actions.Login, `{"email":"nobody@example.com","password":"correct-horse"}`, "")
	_, _, wrong := e.call(t, actions.Login, `{"email":"ann@example.com","password":"wrong-horse"}`, "")
	_, _, short := e.call(t, actions.Login, `{"email":"ann@example.com","password":"x"}`, "")

	for _, err := range []error{unknown, wrong, short} {
		errutil.AssertKind(t, err, apierr.KindInvalidCredentials)
		assert.Equal(t, apierr.KindInvalidCredentials.API(), apierr.Classify(err).API())
		assert.Empty(t, apierr.Classify(err).Violations)
	}
}

func TestLogin_InvalidParams(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.call(t, actions.Login, `{"email":"not-an-email","password":"x"}`, "")
	errutil.AssertKind(t, err, apierr.KindValidation)

	_, _, err = e.call(t, actions.Login, `{"email":"ann@example.com"}`, "")
	errutil.AssertKind(t, err, apierr.KindValidation)
}

func TestLogin_RotatesHeldSession(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ann@example.com", "correct-horse")

	first := e.login(t, "ann@example.com", "correct-horse", "")
	second := e.login(t, "ann@example.com", "correct-horse", first)
	assert.NotEqual(t, first, second)

	_, _, err := e.call(t, users.Me, `{}`, first)
	errutil.AssertKind(t, err, apierr.KindUnauthorized)

	_, _, err = e.call(t, users.Me, `{}`, second)
	require.NoError(t, err)
}

func TestLogin_FailureWhileHoldingSessionKeepsIt(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ann@example.com", "correct-horse")
	held := e.login(t, "ann@example.com", "correct-horse", "")

	_, meta, err := e.call(t, actions.Login, `{"email":"ann@example.com","password":"wrong-horse"}`, held)
	errutil.AssertKind(t, err, apierr.KindInvalidCredentials)
	assert.False(t, meta.SessionEnded)
	assert.Empty(t, meta.IssuedToken)

	_, _, err = e.call(t, users.Me, `{}`, held)
	require.NoError(t, err)
	assert.Equal(t, 1, e.sessions.Len())
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ann@example.com", "correct-horse")
	token := e.login(t, "ann@example.com", "correct-horse", "")

	res, meta, err := e.call(t, actions.Logout, `{}`, token)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"OK"}`, string(res))
	assert.True(t, meta.SessionEnded)
	assert.Zero(t, e.sessions.Len())

	_, _, err = e.call(t, users.Me, `{}`, token)
	errutil.AssertKind(t, err, apierr.KindUnauthorized)

	t.Run("is idempotent", func(t *testing.T) {
		_, _, err := e.call(t, actions.Logout, `{}`, token)
		require.NoError(t, err)
		_, _, err = e.call(t, actions.Logout, ``, "")
		require.NoError(t, err)
	})
}

func TestRegister_Errors(t *testing.T) {
	e := newEnv(t)
	e.register(t, "ann@example.com", "correct-horse")

	_, _, err := e.call(t, actions.Register, `{"email":"ANN@example.com","password":"another-horse"}`, "")
	errutil.AssertKind(t, err, apierr.KindDuplicateField)

	_, _, err = e.call(t, actions.Register, `{"email":"bob@example.com","password":"short"}`, "")
	errutil.AssertKind(t, err, apierr.KindValidation)
	classified := apierr.Classify(err)
	require.NotEmpty(t, classified.Violations)
	assert.Equal(t, "/password", classified.Violations[0].Field)
}

func TestRegister_CaseFoldedKeysCannotReplaceThePassword(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.call(t, actions.Register, `{"email":"ann@example.com","password":"correct-horse","PASSWORD":"x"}`, "")
	require.NoError(t, err)

	_, meta, err := e.call(t, actions.Login, `{"email":"ann@example.com","password":"x"}`, "")
	errutil.AssertKind(t, err, apierr.KindInvalidCredentials)
	assert.Empty(t, meta.IssuedToken)

	e.login(t, "ann@example.com", "correct-horse", "")
}

func TestLogout_StoreFailureStillEndsTheSession(t *testing.T) {
	sessions := mocks.NewMockSessionStore(t)
	sessions.On("Delete", mock.Anything, mock.AnythingOfType("string")).Return(errors.New("connection reset")).Once()

	b, err := broker.New(broker.Config{
		Users:    memory.New(),
		Sessions: sessions,
		Hasher:   auth.NewArgon2idHasherWithParams(cheapParams),
	})
	require.NoError(t, err)

	inv := &contract.Invocation{Params: json.RawMessage(`{}`), Meta: contract.Meta{SessionToken: "held"}}
	_, err = b.Dispatcher.Dispatch(context.Background(), actions.Logout, inv)
	errutil.AssertKind(t, err, apierr.KindUnhandled)
	assert.True(t, inv.Meta.SessionEnded)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
