// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package repotest holds the behavioural contract every users.Repository
// implementation must satisfy.
package repotest

import (
	"context"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/users"
)

// RunRepositoryContract exercises repo against the users.Repository contract.
// Emails are made unique per run so a shared database can be reused.
func RunRepositoryContract(t *testing.T, repo users.Repository) {
	t.Helper()
	ctx := context.Background()
	email := func(local string) string {
		return local + "." + ulid.Make().String() + "@example.com"
	}

	t.Run("create then get and find", func(t *testing.T) {
		addr := email("ann")
		created, err := repo.Create(ctx, addr, "hash-1")
		require.NoError(t, err)
		_, err = ulid.Parse(created.ID)
		require.NoError(t, err, "ids are ULIDs")
		assert.Equal(t, addr, created.Email)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "hash-1", got.PasswordHash)

		found, err := repo.FindByEmail(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("email lookup ignores case", func(t *testing.T) {
		addr := email("bob")
		created, err := repo.Create(ctx, addr, "hash")
		require.NoError(t, err)

		found, err := repo.FindByEmail(ctx, "  "+strings.ToUpper(addr))
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		addr := email("cat")
		_, err := repo.Create(ctx, addr, "hash")
		require.NoError(t, err)

		_, err = repo.Create(ctx, strings.ToUpper(addr), "other")
		require.Error(t, err)
		assert.ErrorIs(t, err, apierr.ErrDuplicateField)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := repo.FindByEmail(ctx, email("nobody"))
		assert.ErrorIs(t, err, apierr.ErrUserNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.Get(ctx, ulid.Make().String())
		assert.ErrorIs(t, err, apierr.ErrUserNotFound)
	})
}
