// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package users is the users service: persistent user records exposed as the
// users.* actions.
package users

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/deckhand/deckhand/internal/identity"
)

// User is a stored user. PasswordHash is never sent to external callers.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity returns the password-free projection of u.
func (u *User) Identity() identity.Identity {
	return identity.Identity{ID: u.ID, Email: u.Email}
}

// Repository stores users. Emails are unique regardless of case.
type Repository interface {
	// FindByEmail returns an error matching apierr.ErrUserNotFound when no
	// user has email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Get returns an error matching apierr.ErrUserNotFound when id is unknown.
	Get(ctx context.Context, id string) (*User, error)

	// Create assigns an ID and stores the user. A taken email yields an error
	// matching apierr.ErrDuplicateField.
	Create(ctx context.Context, email, passwordHash string) (*User, error)
}

var (
	entropyLock sync.Mutex
	entropy     = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new user ID.
func NewID() string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NormalizeEmail is the form emails are compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
