// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package memory implements users.Repository in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/users"
)

// Repository is a map-backed users.Repository.
type Repository struct {
	mu      sync.RWMutex
	byID    map[string]*users.User
	byEmail map[string]string
	now     func() time.Time
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{
		byID:    make(map[string]*users.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// FindByEmail implements users.Repository.
func (r *Repository) FindByEmail(_ context.Context, email string) (*users.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[users.NormalizeEmail(email)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("email", email).Wrap(apierr.UserNotFound())
	}
	u := *r.byID[id]
	return &u, nil
}

// Get implements users.Repository.
func (r *Repository) Get(_ context.Context, id string) (*users.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id).Wrap(apierr.UserNotFound())
	}
	out := *u
	return &out, nil
}

// Create implements users.Repository.
func (r *Repository) Create(_ context.Context, email, passwordHash string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := users.NormalizeEmail(email)
	if _, taken := r.byEmail[key]; taken {
		return nil, oops.Code("USER_DUPLICATE_EMAIL").Wrap(apierr.DuplicateField("email"))
	}

	u := &users.User{
		ID:           users.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    r.now().UTC(),
	}
	r.byID[u.ID] = u
	r.byEmail[key] = u.ID

	out := *u
	return &out, nil
}

// Len returns the number of stored users.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

var _ users.Repository = (*Repository)(nil)
