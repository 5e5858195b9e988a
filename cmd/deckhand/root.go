// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/config"
	"github.com/deckhand/deckhand/internal/logging"
	"github.com/deckhand/deckhand/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Deckhand CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultMigrator)
}

func newRootCmd(openMigrator migratorFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deckhand",
		Short: "Deckhand - session-authenticated users backend",
		Long: `Deckhand serves registration, login and the current user over HTTP with
signed session cookies. Requests are dispatched as schema-validated actions,
and the users service can run in its own process behind gRPC.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/deckhand/config.yaml)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewUsersCmd())
	cmd.AddCommand(newMigrateCmd(openMigrator))
	cmd.AddCommand(NewCertsCmd())

	return cmd
}

// loadConfig layers the config file, the environment and the flags of cmd.
// Without --config, $XDG_CONFIG_HOME/deckhand/config.yaml is used if present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.FindConfig()
		if err != nil {
			return nil, err
		}
		path = found
	}
	return config.Load(path, cmd.Flags())
}

// setupLogging installs the process logger writing to the command's stderr.
func setupLogging(cfg *config.Config, cmd *cobra.Command) (*slog.Logger, error) {
	return logging.SetDefault(logging.Options{
		Service: "deckhand",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
}

// notifyContext is cancelled on SIGINT or SIGTERM.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
