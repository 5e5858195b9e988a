// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package users

import (
	"context"

	"github.com/deckhand/deckhand/internal/auth"
	"github.com/deckhand/deckhand/internal/contract"
	"github.com/deckhand/deckhand/internal/identity"
)

// CallerDirectory is the auth.UserDirectory that reaches the users service
// through actions, so it works whether users.* runs in this process or in a
// peer.
type CallerDirectory struct {
	caller contract.Caller
}

// NewCallerDirectory creates a directory calling through caller, which must be
// a trusted (internal) caller.
func NewCallerDirectory(caller contract.Caller) *CallerDirectory {
	return &CallerDirectory{caller: caller}
}

// FindByEmail implements auth.UserDirectory.
func (d *CallerDirectory) FindByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	v, err := contract.Call[View](ctx, d.caller, Find, FindParams{Email: email}, contract.Meta{IncludePassword: true})
	if err != nil {
		return nil, err
	}
	return &auth.UserRecord{ID: v.ID, Email: v.Email, PasswordHash: v.Password}, nil
}

// Create implements auth.UserDirectory.
func (d *CallerDirectory) Create(ctx context.Context, email, passwordHash string) (identity.Identity, error) {
	v, err := contract.Call[View](ctx, d.caller, Create, CreateParams{Email: email, Password: passwordHash}, contract.Meta{})
	if err != nil {
		return identity.Identity{}, err
	}
	return identity.Identity{ID: v.ID, Email: v.Email}, nil
}

var _ auth.UserDirectory = (*CallerDirectory)(nil)
