// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand/deckhand/internal/users/memory"
	"github.com/deckhand/deckhand/internal/users/repotest"
)

func TestRepository_Contract(t *testing.T) {
	repotest.RunRepositoryContract(t, memory.New())
}

func TestRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	created, err := repo.Create(ctx, "copy@example.com", "hash")
	require.NoError(t, err)
	created.PasswordHash = "tampered"

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.Equal(t, 1, repo.Len())
}
