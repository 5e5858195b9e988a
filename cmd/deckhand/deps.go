// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/deckhand/deckhand/internal/auth"
	authmemory "github.com/deckhand/deckhand/internal/auth/memory"
	authpostgres "github.com/deckhand/deckhand/internal/auth/postgres"
	authredis "github.com/deckhand/deckhand/internal/auth/redis"
	"github.com/deckhand/deckhand/internal/config"
	"github.com/deckhand/deckhand/internal/observability"
	"github.com/deckhand/deckhand/internal/store"
	"github.com/deckhand/deckhand/internal/users"
	"github.com/deckhand/deckhand/internal/users/memory"
	userspg "github.com/deckhand/deckhand/internal/users/postgres"
)

// Deps holds the dependencies of the long-running commands.
// All fields are optional; nil values use production defaults.
type Deps struct {
	// Connect opens the Postgres pool.
	Connect func(ctx context.Context, url string) (*pgxpool.Pool, error)

	// DialRedis opens the Redis session store.
	DialRedis func(ctx context.Context, url string) (*authredis.Store, error)

	// Listen opens the listeners of the HTTP and gRPC servers.
	Listen func(network, addr string) (net.Listener, error)

	// ObservabilityServerFactory creates the metrics/health server.
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, reg *prometheus.Registry, opts ...observability.Option) ObservabilityServer

	// Hasher overrides the password hasher.
	Hasher auth.PasswordHasher
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.Connect == nil {
		out.Connect = store.Connect
	}
	if out.DialRedis == nil {
		out.DialRedis = func(ctx context.Context, url string) (*authredis.Store, error) {
			return authredis.Dial(ctx, url)
		}
	}
	if out.Listen == nil {
		out.Listen = net.Listen
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, reg *prometheus.Registry, opts ...observability.Option) ObservabilityServer {
			return observability.NewServer(addr, ready, reg, opts...)
		}
	}
	return &out
}

// backends opens the stores a command needs and closes them together.
type backends struct {
	deps    *Deps
	cfg     *config.Config
	logger  *slog.Logger
	pool    *pgxpool.Pool
	checks  []observability.Option
	closers []func()
}

func newBackends(cfg *config.Config, deps *Deps, logger *slog.Logger) *backends {
	return &backends{deps: deps, cfg: cfg, logger: logger}
}

// postgres returns the shared pool, connecting on first use.
func (b *backends) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	pool, err := b.deps.Connect(ctx, b.cfg.Database.URL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	b.pool = pool
	b.checks = append(b.checks, observability.WithCheck("postgres", pool.Ping))
	b.closers = append(b.closers, pool.Close)
	return pool, nil
}

func (b *backends) sessions(ctx context.Context) (auth.SessionStore, error) {
	switch b.cfg.Session.Store {
	case config.StoreRedis:
		s, err := b.deps.DialRedis(ctx, b.cfg.Session.RedisURL)
		if err != nil {
			return nil, err
		}
		b.checks = append(b.checks, observability.WithCheck("redis", s.Ping))
		b.closers = append(b.closers, func() {
			if err := s.Close(); err != nil {
				b.logger.Warn("failed to close redis session store", "error", err)
			}
		})
		return s, nil
	case config.StorePostgres:
		pool, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return authpostgres.NewSessionStore(pool), nil
	default:
		return authmemory.NewStore(), nil
	}
}

func (b *backends) users(ctx context.Context) (users.Repository, error) {
	if b.cfg.Users.Store == config.StorePostgres {
		pool, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return userspg.New(pool), nil
	}
	return memory.New(), nil
}

// Checks returns readiness checks for the connections opened so far.
func (b *backends) Checks() []observability.Option {
	return b.checks
}

// Close releases everything opened, most recent first.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
