// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package memory provides an in-process auth.SessionStore for tests and
// single-node development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/deckhand/deckhand/internal/auth"
)

// Store is a map-backed session store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]auth.Session
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{sessions: make(map[string]auth.Session), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores a copy of session, replacing any session with the same id.
func (s *Store) Put(_ context.Context, session *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

// Get returns a copy of the session, or nil if absent or expired.
func (s *Store) Get(_ context.Context, id string) (*auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || session.IsExpiredAt(s.now()) {
		return nil, nil
	}
	return &session, nil
}

// Delete removes the session. Missing ids are ignored.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// DeleteExpired removes every expired session.
func (s *Store) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for id, session := range s.sessions {
		if session.IsExpiredAt(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ auth.SessionStore = (*Store)(nil)
