// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/identity"
)

// Resolver maps presented session tokens to identities.
type Resolver struct {
	sessions SessionStore
	now      func() time.Time
}

// NewResolver creates a Resolver over sessions.
func NewResolver(sessions SessionStore) (*Resolver, error) {
	if sessions == nil {
		return nil, ErrNilSessionStore
	}
	return &Resolver{sessions: sessions, now: time.Now}, nil
}

// ResolveCurrent returns the identity bound to token. An empty, unknown or
// expired token yields Unauthorized; store failures are returned as
// unclassified errors and surface as Unhandled.
func (r *Resolver) ResolveCurrent(ctx context.Context, token string) (identity.Identity, error) {
	if token == "" {
		return identity.Identity{}, apierr.Unauthorized()
	}

	session, err := r.sessions.Get(ctx, HashSessionToken(token))
	if err != nil {
		return identity.Identity{}, oops.Code("AUTH_RESOLVE_FAILED").
			With("operation", "get session").
			Wrap(err)
	}
	if session == nil || session.IsExpiredAt(r.now()) {
		return identity.Identity{}, apierr.Unauthorized()
	}
	return session.Identity, nil
}
