// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/action"
	"github.com/deckhand/deckhand/internal/auth"
	"github.com/deckhand/deckhand/internal/broker"
	"github.com/deckhand/deckhand/internal/config"
	"github.com/deckhand/deckhand/internal/gateway"
	"github.com/deckhand/deckhand/internal/grpc"
	"github.com/deckhand/deckhand/internal/observability"
)

// shutdownTimeout bounds graceful shutdown of every server.
const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Long: `Start the HTTP gateway. It authenticates requests with signed session
cookies and dispatches them to the auth and users services, either in this
process or, with --users-mode=remote, over gRPC to a "deckhand users" process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := notifyContext(cmd.Context())
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}
}

// runServeWithDeps runs the gateway until ctx is cancelled or a server fails.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *Deps) error {
	if err := cfg.ValidateServe(); err != nil {
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

	bcfg := broker.Config{
		Sessions:    sessions,
		Hasher:      deps.Hasher,
		SessionTTL:  cfg.Session.TTL,
		CallTimeout: cfg.Broker.CallTimeout,
		Logger:      logger,
	}
	if cfg.Users.Mode == config.UsersRemote {
		transport, err := dialUsers(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := transport.Close(); err != nil {
				logger.Warn("failed to close users transport", "error", err)
			}
		}()
		bcfg.UsersTransport = transport
	} else {
		repo, err := be.users(ctx)
		if err != nil {
			return oops.Code("USERS_STORE_FAILED").With("store", cfg.Users.Store).Wrap(err)
		}
		bcfg.Users = repo
	}

	b, err := broker.New(bcfg)
	if err != nil {
		return oops.Code("BROKER_INIT_FAILED").Wrap(err)
	}

	registry := observability.NewRegistry()
	action.RegisterMetrics(registry)

	handler, err := gateway.NewHandler(gateway.Config{
		Dispatcher:     b.Dispatcher,
		Secret:         []byte(cfg.Session.Secret),
		SessionTTL:     cfg.Session.TTL,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		SecureCookies:  cfg.HTTP.SecureCookies,
		Metrics:        observability.NewHTTPMetrics(registry),
		Logger:         logger,
	})
	if err != nil {
		return oops.Code("GATEWAY_INIT_FAILED").Wrap(err)
	}

	sweeper, err := auth.NewSweeper(sessions,
		auth.WithSweepInterval(cfg.Session.SweepInterval),
		auth.WithSweepLogger(logger),
	)
	if err != nil {
		return oops.Code("SWEEPER_INIT_FAILED").Wrap(err)
	}
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		if err := sweeper.Run(ctx); err != nil {
			logger.Error("session sweeper stopped", "error", err)
		}
	}()

	listener, err := deps.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		cancel()
		<-sweepDone
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErrCh := make(chan error, 1)
	go func() {
		defer close(httpErrCh)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- err
		}
	}()
	go monitorServerErrors(ctx, cancel, httpErrCh, "gateway", logger)

	var ready atomic.Bool
	obsServer, err := startObservability(ctx, cancel, cfg, deps, &ready, registry, be.Checks(), cmd, logger)
	if err != nil {
		cancel()
		_ = httpServer.Close()
		<-sweepDone
		return err
	}

	ready.Store(true)
	logger.Info("gateway started",
		"addr", listener.Addr().String(),
		"users_mode", cfg.Users.Mode,
		"session_store", cfg.Session.Store,
	)
	cmd.Printf("Gateway listening on %s\n", listener.Addr())

	<-ctx.Done()
	ready.Store(false)
	cmd.Println("Shutting down gateway...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping gateway", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	<-sweepDone

	cmd.Println("Gateway stopped")
	return nil
}

// dialUsers opens the gRPC transport to a users process.
func dialUsers(cfg *config.Config) (*grpc.Client, error) {
	ccfg := grpc.ClientConfig{Address: cfg.Users.Addr}
	files := tlsFiles(cfg)
	if files.Enabled() {
		tlsConfig, err := files.ClientTLS(cfg.GRPC.ServerName)
		if err != nil {
			return nil, err
		}
		ccfg.TLSConfig = tlsConfig
	}
	client, err := grpc.NewClient(ccfg)
	if err != nil {
		return nil, oops.Code("USERS_DIAL_FAILED").With("addr", cfg.Users.Addr).Wrap(err)
	}
	return client, nil
}

func tlsFiles(cfg *config.Config) grpc.TLSFiles {
	return grpc.TLSFiles{
		CertFile: cfg.GRPC.CertFile,
		KeyFile:  cfg.GRPC.KeyFile,
		CAFile:   cfg.GRPC.CAFile,
	}
}

// startObservability starts the metrics/health server unless metrics.addr is
// empty. A nil server means it is disabled.
func startObservability(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	deps *Deps,
	ready *atomic.Bool,
	registry *prometheus.Registry,
	checks []observability.Option,
	cmd *cobra.Command,
	logger *slog.Logger,
) (ObservabilityServer, error) {
	if cfg.Metrics.Addr == "" {
		return nil, nil
	}
	opts := append([]observability.Option{observability.WithLogger(logger)}, checks...)
	srv := deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load, registry, opts...)
	errCh, err := srv.Start()
	if err != nil {
		return nil, oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, errCh, "observability", logger)
	cmd.Printf("Observability server listening on %s\n", srv.Addr())
	return srv, nil
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
