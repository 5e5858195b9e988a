// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/apierr"
	"github.com/deckhand/deckhand/internal/identity"
)

// Service provides authentication operations.
type Service struct {
	*Resolver

	users     UserDirectory
	hasher    PasswordHasher
	ttl       time.Duration
	logger    *slog.Logger
	dummyHash string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSessionTTL sets the lifetime of new sessions.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewAuthService creates a Service. The hasher is used once up front to
// produce the decoy hash verified when a login names an unknown user, so
// both failure paths cost the same.
func NewAuthService(users UserDirectory, sessions SessionStore, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, ErrNilUserDirectory
	}
	if hasher == nil {
		return nil, ErrNilHasher
	}
	resolver, err := NewResolver(sessions)
	if err != nil {
		return nil, err
	}

	token, _, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(token)
	if err != nil {
		return nil, oops.Code("AUTH_INIT_FAILED").With("operation", "hash decoy password").Wrap(err)
	}

	s := &Service{
		Resolver:  resolver,
		users:     users,
		hasher:    hasher,
		ttl:       DefaultSessionTTL,
		logger:    slog.Default(),
		dummyHash: dummy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the lifetime given to new sessions.
func (s *Service) TTL() time.Duration { return s.ttl }

// Login verifies cred and creates a session.
// Returns the session, the plaintext token, and any error. An unknown email
// and a wrong password fail identically with InvalidCredentials.
func (s *Service) Login(ctx context.Context, cred identity.Credential) (*Session, string, error) {
	record, lookupErr := s.users.FindByEmail(ctx, cred.Email)

	var targetHash string
	userExists := false
	switch {
	case lookupErr == nil && record != nil:
		targetHash = record.PasswordHash
		userExists = true
	case lookupErr == nil, errors.Is(lookupErr, apierr.ErrUserNotFound):
		targetHash = s.dummyHash
	default:
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by email").
			Wrap(lookupErr)
	}

	// Always verify, whether or not the user exists.
	valid, verifyErr := s.hasher.Verify(cred.Password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, "", apierr.InvalidCredentials()
		}
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", record.ID).
			Wrap(verifyErr)
	}
	if !userExists || !valid {
		s.logger.InfoContext(ctx, "login rejected", "credential", cred)
		return nil, "", apierr.InvalidCredentials()
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	now := s.now()
	session, err := NewSession(tokenHash, record.Identity(), now, now.Add(s.ttl))
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "login succeeded", "user_id", record.ID)
	return session, token, nil
}

// Logout destroys the session bound to token. It succeeds when token is
// empty or no such session exists.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, HashSessionToken(token)); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// Register creates a user with the password replaced by its hash. It does
// not create a session.
func (s *Service) Register(ctx context.Context, cred identity.Credential) (identity.Identity, error) {
	hash, err := s.hasher.Hash(cred.Password)
	if err != nil {
		return identity.Identity{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	id, err := s.users.Create(ctx, cred.Email, hash)
	if err != nil {
		return identity.Identity{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", id.ID)
	return id, nil
}
