// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package storetest holds the behavioural contract every auth.SessionStore
// implementation must satisfy.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand/deckhand/internal/auth"
	"github.com/deckhand/deckhand/internal/identity"
)

// RunSessionStoreContract exercises store against the SessionStore contract.
func RunSessionStoreContract(t *testing.T, store auth.SessionStore) {
	t.Helper()
	ctx := context.Background()
	who := identity.Identity{ID: "01HZCONTRACT", Email: "contract@example.com"}

	fresh := func(t *testing.T) *auth.Session {
		t.Helper()
		_, hash, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		now := time.Now().Truncate(time.Second)
		s, err := auth.NewSession(hash, who, now, now.Add(time.Hour))
		require.NoError(t, err)
		return s
	}

	expired := func(t *testing.T) *auth.Session {
		t.Helper()
		_, hash, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		past := time.Now().Add(-2 * time.Hour).Truncate(time.Second)
		s, err := auth.NewSession(hash, who, past, past.Add(time.Hour))
		require.NoError(t, err)
		return s
	}

	t.Run("put then get", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, store.Put(ctx, s))

		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, who, got.Identity)
		assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt), "expires %v != %v", s.ExpiresAt, got.ExpiresAt)
	})

	t.Run("get absent is nil", func(t *testing.T) {
		got, err := store.Get(ctx, auth.HashSessionToken("never-issued"))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("get expired is nil", func(t *testing.T) {
		s := expired(t)
		require.NoError(t, store.Put(ctx, s))

		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, store.Put(ctx, s))
		require.NoError(t, store.Delete(ctx, s.ID))

		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete missing is a no-op", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, auth.HashSessionToken("never-issued")))
	})

	t.Run("concurrent delete of the same id", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, store.Put(ctx, s))

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- store.Delete(ctx, s.ID)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
	})

	t.Run("delete expired keeps live sessions", func(t *testing.T) {
		live := fresh(t)
		require.NoError(t, store.Put(ctx, live))
		require.NoError(t, store.Put(ctx, expired(t)))

		n, err := store.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(0))

		got, err := store.Get(ctx, live.ID)
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}
