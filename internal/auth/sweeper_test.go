// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/deckhand/deckhand/internal/auth"
	"github.com/deckhand/deckhand/internal/auth/mocks"
	"github.com/deckhand/deckhand/pkg/errutil"
)

func fastBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
}

func TestNewSweeper_NilStore(t *testing.T) {
	_, err := auth.NewSweeper(nil)
	assert.ErrorIs(t, err, auth.ErrNilSessionStore)
}

func TestSweeper_SweepOnceRetries(t *testing.T) {
	store := mocks.NewMockSessionStore(t)
	store.On("DeleteExpired", mock.Anything).Return(int64(0), errors.New("conn reset")).Once()
	store.On("DeleteExpired", mock.Anything).Return(int64(3), nil).Once()

	s, err := auth.NewSweeper(store, auth.WithSweepBackoff(fastBackoff))
	require.NoError(t, err)

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSweeper_SweepOnceGivesUp(t *testing.T) {
	store := mocks.NewMockSessionStore(t)
	store.On("DeleteExpired", mock.Anything).Return(int64(0), errors.New("conn reset")).Times(3)

	s, err := auth.NewSweeper(store, auth.WithSweepBackoff(fastBackoff))
	require.NoError(t, err)

	_, err = s.SweepOnce(context.Background())
	errutil.AssertErrorCode(t, err, "SESSION_SWEEP_FAILED")
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := mocks.NewMockSessionStore(t)
	swept := make(chan struct{}, 1)
	store.On("DeleteExpired", mock.Anything).Return(int64(1), nil).Run(func(mock.Arguments) {
		select {
		case swept <- struct{}{}:
		default:
		}
	})

	s, err := auth.NewSweeper(store, auth.WithSweepInterval(5*time.Millisecond), auth.WithSweepBackoff(fastBackoff))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-swept:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}
	cancel()
	require.NoError(t, <-done)
}
