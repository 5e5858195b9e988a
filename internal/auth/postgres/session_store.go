// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package postgres implements auth.SessionStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/auth"
	"github.com/deckhand/deckhand/internal/store"
)

// SessionStore keeps sessions in the sessions table, keyed by token hash.
type SessionStore struct {
	db  store.DB
	now func() time.Time
}

// Option configures a SessionStore.
type Option func(*SessionStore)

// WithClock overrides the time source used to decide expiry.
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) {
		s.now = now
	}
}

// NewSessionStore creates a SessionStore over db.
func NewSessionStore(db store.DB, opts ...Option) *SessionStore {
	s := &SessionStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put inserts the session or replaces the row with the same id.
func (s *SessionStore) Put(ctx context.Context, session *auth.Session) error {
	if session == nil {
		return oops.Code("SESSION_PUT_FAILED").Errorf("session is nil")
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, email, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    email = EXCLUDED.email,
		    expires_at = EXCLUDED.expires_at
	`,
		session.ID,
		session.Identity.ID,
		session.Identity.Email,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return oops.Code("SESSION_PUT_FAILED").
			With("operation", "upsert session").
			With("user_id", session.Identity.ID).
			Wrap(err)
	}
	return nil
}

// Get returns the live session for id, or nil when it is absent or expired.
func (s *SessionStore) Get(ctx context.Context, id string) (*auth.Session, error) {
	var session auth.Session
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, email, expires_at, created_at
		FROM sessions
		WHERE id = $1 AND expires_at > $2
	`, id, s.now()).Scan(
		&session.ID,
		&session.Identity.ID,
		&session.Identity.Email,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("operation", "select session").Wrap(err)
	}
	return &session, nil
}

// Delete removes the session. Deleting a missing id is not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").With("operation", "delete session").Wrap(err)
	}
	return nil
}

// DeleteExpired removes every session whose expiry has passed.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").With("operation", "delete expired sessions").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var _ auth.SessionStore = (*SessionStore)(nil)
