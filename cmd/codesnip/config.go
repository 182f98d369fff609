// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/codesnip/codesnip/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := config.Render(cfg.Redacted())
			if err != nil {
				return err //nolint:wrapcheck // render errors carry their own codes
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err //nolint:wrapcheck // stdout write failure needs no context
		},
	}
}
