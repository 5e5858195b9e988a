// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package auth_test

import (
	"context"
	"strconv"
	"sync"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/auth"
	"github.com/deckhand/deckhand/internal/identity"
)

// cheapParams keep argon2 fast in tests.
var cheapParams = auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 8, KeyLen: 16}

// fakeDirectory is an in-memory auth.UserDirectory.
type fakeDirectory struct {
	mu    sync.Mutex
	next  int
	users map[string]auth.UserRecord
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[string]auth.UserRecord)}
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (*auth.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.users[email]
	if !ok {
		return nil, apierr.UserNotFound()
	}
	return &rec, nil
}

func (d *fakeDirectory) Create(_ context.Context, email, passwordHash string) (identity.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[email]; ok {
		return identity.Identity{}, apierr.DuplicateField("email")
	}
	d.next++
	rec := auth.UserRecord{ID: "user-" + strconv.Itoa(d.next), Email: email, PasswordHash: passwordHash}
	d.users[email] = rec
	return rec.Identity(), nil
}
