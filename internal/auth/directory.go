// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package auth

import (
	"context"

	"github.com/deckhand/deckhand/internal/identity"
)

// UserRecord is a stored user as seen by authentication, including the
// password hash. It never leaves this package.
type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
}

// Identity returns the password-free projection of the record.
func (r *UserRecord) Identity() identity.Identity {
	return identity.Identity{ID: r.ID, Email: r.Email}
}

// UserDirectory is the user lookup authentication depends on.
type UserDirectory interface {
	// FindByEmail returns the record including its password hash, or an
	// error matching apierr.ErrUserNotFound.
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)

	// Create stores a new user with an already hashed password. A taken
	// email yields an error matching apierr.ErrDuplicateField.
	Create(ctx context.Context, email, passwordHash string) (identity.Identity, error)
}
