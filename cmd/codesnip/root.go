// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/codesnip/codesnip/internal/config"
	"github.com/codesnip/codesnip/internal/logging"
	"github.com/codesnip/codesnip/internal/xdg"
)

const serviceName = "codesnip"

// configFile is the --config flag shared by every subcommand.
var configFile string

// NewRootCmd creates the root command for the CodeSnip CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codesnip",
		Short: "CodeSnip account and session service",
		Long: `CodeSnip manages accounts and sessions: registration, login with
rotating refresh tokens, email verification, and password reset.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML, default $XDG_CONFIG_HOME/codesnip/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewAdminCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads configuration using the flags of cmd. Without --config the
// XDG config file is used when present.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		path, _ = xdg.FindConfigFile()
	}
	//nolint:wrapcheck // config errors carry their own oops codes
	return config.Load(path, cmd.Flags())
}

// setupLogging installs the process logger for cfg.
func setupLogging(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	//nolint:wrapcheck // logging errors carry their own oops codes
	return logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
}
