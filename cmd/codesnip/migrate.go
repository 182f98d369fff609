// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/codesnip/codesnip/internal/store"
)

// migrator wraps the methods used from store.Migrator.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// migratorFactory opens a migrator; tests replace it.
var migratorFactory = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the credential store schema",
	}

	var all bool
	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default one step)",
		Long: `Roll back the most recent migration, or the given number of steps.
With --all every migration is rolled back and all account data is dropped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m migrator) error {
				if all {
					if err := m.Down(); err != nil {
						return err //nolint:wrapcheck // migrator errors carry their own codes
					}
					cmd.Println("All migrations rolled back")
					return nil
				}
				steps := 1
				if len(args) == 1 {
					n, err := parseSteps(args[0])
					if err != nil {
						return err
					}
					steps = n
				}
				if err := m.Steps(-steps); err != nil {
					return err //nolint:wrapcheck // migrator errors carry their own codes
				}
				cmd.Printf("Rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m migrator) error {
					if err := m.Up(); err != nil {
						return err //nolint:wrapcheck // migrator errors carry their own codes
					}
					cmd.Println("Migrations completed successfully")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m migrator) error {
					status, err := m.Status()
					if err != nil {
						return err //nolint:wrapcheck // migrator errors carry their own codes
					}
					printStatus(cmd, status)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark VERSION as applied without running it (dirty schema recovery)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := parseForceVersion(args[0])
				if err != nil {
					return err
				}
				return withMigrator(cmd, func(m migrator) error {
					if err := m.Force(version); err != nil {
						return err //nolint:wrapcheck // migrator errors carry their own codes
					}
					cmd.Printf("Forced schema version to %d\n", version)
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(migrator) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, err := migratorFactory(cfg.Database.URL)
	if err != nil {
		return err //nolint:wrapcheck // migrator errors carry their own codes
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

func printStatus(cmd *cobra.Command, status *store.Status) {
	state := "clean"
	if status.Dirty {
		state = "DIRTY (repair, then run migrate force)"
	}
	cmd.Printf("Schema version: %d (%s)\n", status.Version, state)
	for _, v := range status.Applied {
		name, _ := store.MigrationName(v) //nolint:errcheck // name is decoration only
		cmd.Printf("  [x] %s\n", name)
	}
	for _, v := range status.Pending {
		name, _ := store.MigrationName(v) //nolint:errcheck // name is decoration only
		cmd.Printf("  [ ] %s\n", name)
	}
	if len(status.Pending) == 0 {
		cmd.Println("Up to date")
	}
}

func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be a non-negative integer")
	}
	return v, nil
}

func parseSteps(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, oops.Code("INVALID_STEPS").With("input", s).Errorf("steps must be a positive integer")
	}
	return n, nil
}
