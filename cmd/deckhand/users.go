// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package main

import (
	"context"
	"crypto/tls"
	"sync/atomic"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/action"
	"github.com/deckhand/deckhand/internal/broker"
	"github.com/deckhand/deckhand/internal/config"
	"github.com/deckhand/deckhand/internal/grpc"
	"github.com/deckhand/deckhand/internal/observability"
)

// NewUsersCmd creates the users subcommand.
func NewUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "Start the users service over gRPC",
		Long: `Start a process that serves the users.* actions over gRPC for gateways
running with --users-mode=remote. Both sides must share the session store so
that users.me can resolve the caller's session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := notifyContext(cmd.Context())
			defer stop()
			return runUsersWithDeps(ctx, cfg, cmd, nil)
		},
	}
}

// runUsersWithDeps serves users.* until ctx is cancelled or the server fails.
func runUsersWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *Deps) error {
	if err := cfg.ValidateUsers(); err != nil {
		return err
	}
	deps = deps.withDefaults()

	logger, err := setupLogging(cfg, cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	be := newBackends(cfg, deps, logger)
	defer be.Close()

	sessions, err := be.sessions(ctx)
	if err != nil {
		return oops.Code("SESSION_STORE_FAILED").With("store", cfg.Session.Store).Wrap(err)
	}
	repo, err := be.users(ctx)
	if err != nil {
		return oops.Code("USERS_STORE_FAILED").With("store", cfg.Users.Store).Wrap(err)
	}

	b, err := broker.NewUsers(repo, sessions, logger)
	if err != nil {
		return oops.Code("BROKER_INIT_FAILED").Wrap(err)
	}

	var tlsConfig *tls.Config
	if files := tlsFiles(cfg); files.Enabled() {
		tlsConfig, err = files.ServerTLS()
		if err != nil {
			return err
		}
	} else {
		logger.Warn("users transport is not using TLS", "addr", cfg.GRPC.Addr)
	}

	registry := observability.NewRegistry()
	action.RegisterMetrics(registry)

	grpcServer := grpc.NewServer(b.Dispatcher, grpc.WithServerLogger(logger)).NewGRPCServer(tlsConfig)

	listener, err := deps.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.GRPC.Addr).Wrap(err)
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		defer close(grpcErrCh)
		if err := grpcServer.Serve(listener); err != nil {
			grpcErrCh <- err
		}
	}()
	go monitorServerErrors(ctx, cancel, grpcErrCh, "users", logger)

	var ready atomic.Bool
	obsServer, err := startObservability(ctx, cancel, cfg, deps, &ready, registry, be.Checks(), cmd, logger)
	if err != nil {
		grpcServer.Stop()
		return err
	}

	ready.Store(true)
	logger.Info("users service started",
		"addr", listener.Addr().String(),
		"tls", tlsConfig != nil,
		"users_store", cfg.Users.Store,
	)
	cmd.Printf("Users service listening on %s\n", listener.Addr())

	<-ctx.Done()
	ready.Store(false)
	cmd.Println("Shutting down users service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("users service did not drain in time, forcing stop")
		grpcServer.Stop()
	}

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	cmd.Println("Users service stopped")
	return nil
}
