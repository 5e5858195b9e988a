// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

// Package broker assembles the action registry, the dispatcher and the
// services registered on it.
package broker

import (
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/action"
	"github.com/deckhand/deckhand/internal/auth"
	authactions "github.com/deckhand/deckhand/internal/auth/actions"
	"github.com/deckhand/deckhand/internal/users"
)

// Config selects the collaborators of a broker. Exactly one of Users and
// UsersTransport must be set.
type Config struct {
	// Users serves users.* in this process.
	Users users.Repository

	// UsersTransport forwards users.* to a peer.
	UsersTransport action.Transport

	Sessions    auth.SessionStore
	Hasher      auth.PasswordHasher
	SessionTTL  time.Duration
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Broker is a sealed registry with its dispatcher.
type Broker struct {
	Registry   *action.Registry
	Dispatcher *action.Dispatcher
	Auth       *auth.Service
}

// New builds the full broker: auth.* and users.* (local or remote).
func New(cfg Config) (*Broker, error) {
	if (cfg.Users == nil) == (cfg.UsersTransport == nil) {
		return nil, oops.Code("BROKER_CONFIG_INVALID").Errorf("exactly one of a users repository or a users transport is required")
	}
	if cfg.Sessions == nil {
		return nil, auth.ErrNilSessionStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = auth.NewArgon2idHasher()
	}

	resolver, err := auth.NewResolver(cfg.Sessions)
	if err != nil {
		return nil, err
	}

	registry := action.NewRegistry()
	dispatcher, err := newDispatcher(registry, resolver, cfg.CallTimeout, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Users != nil {
		err = users.RegisterActions(registry, cfg.Users, logger)
	} else {
		err = registry.RegisterRemote(cfg.UsersTransport, users.Names...)
	}
	if err != nil {
		return nil, oops.Code("BROKER_INIT_FAILED").With("service", "users").Wrap(err)
	}

	opts := []auth.ServiceOption{auth.WithServiceLogger(logger)}
	if cfg.SessionTTL > 0 {
		opts = append(opts, auth.WithSessionTTL(cfg.SessionTTL))
	}
	svc, err := auth.NewAuthService(users.NewCallerDirectory(dispatcher.Internal()), cfg.Sessions, hasher, opts...)
	if err != nil {
		return nil, err
	}
	if err := authactions.RegisterActions(registry, svc, logger); err != nil {
		return nil, oops.Code("BROKER_INIT_FAILED").With("service", "auth").Wrap(err)
	}

	if err := registry.Seal(); err != nil {
		return nil, oops.Code("BROKER_INIT_FAILED").Wrap(err)
	}
	return &Broker{Registry: registry, Dispatcher: dispatcher, Auth: svc}, nil
}

// NewUsers builds a broker that serves only users.*, for a process that
// other brokers reach over the remote transport. sessions resolves the
// callers of users.me.
func NewUsers(repo users.Repository, sessions auth.SessionStore, logger *slog.Logger) (*Broker, error) {
	if sessions == nil {
		return nil, auth.ErrNilSessionStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	resolver, err := auth.NewResolver(sessions)
	if err != nil {
		return nil, err
	}

	registry := action.NewRegistry()
	dispatcher, err := newDispatcher(registry, resolver, 0, logger)
	if err != nil {
		return nil, err
	}
	if err := users.RegisterActions(registry, repo, logger); err != nil {
		return nil, oops.Code("BROKER_INIT_FAILED").With("service", "users").Wrap(err)
	}
	if err := registry.Seal(); err != nil {
		return nil, oops.Code("BROKER_INIT_FAILED").Wrap(err)
	}
	return &Broker{Registry: registry, Dispatcher: dispatcher}, nil
}

func newDispatcher(registry *action.Registry, resolver action.IdentityResolver, timeout time.Duration, logger *slog.Logger) (*action.Dispatcher, error) {
	opts := []action.DispatcherOption{
		action.WithIdentityResolver(resolver),
		action.WithAfterHook("users", users.StripPassword()),
		action.WithLogger(logger),
	}
	if timeout > 0 {
		opts = append(opts, action.WithCallTimeout(timeout))
	}
	return action.NewDispatcher(registry, opts...)
}
