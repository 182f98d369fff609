// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/codesnip/codesnip/internal/auth"
	"github.com/codesnip/codesnip/internal/auth/postgres"
	"github.com/codesnip/codesnip/internal/store"
)

// adminPasswordEnv supplies the password for admin create without exposing it
// in the process list.
const adminPasswordEnv = "CODESNIP_ADMIN_PASSWORD"

// NewAdminCmd creates the admin subcommand.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	var username, email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a verified admin account, or promote an existing one",
		Long: `Create a verified account with the admin role. If an account with the
email already exists it is promoted to admin and marked verified; its password
is left unchanged. The password is read from ` + adminPasswordEnv + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := store.Open(cmd.Context(), cfg.Database.URL, cfg.PoolConfig())
			if err != nil {
				return err //nolint:wrapcheck // store errors carry their own codes
			}
			defer db.Close()

			hasher, err := auth.NewArgon2idHasherWithParams(cfg.HasherParams())
			if err != nil {
				return err //nolint:wrapcheck // hasher errors carry their own codes
			}
			created, err := ensureAdmin(cmd.Context(), postgres.NewIdentityRepository(db), hasher,
				username, email, os.Getenv(adminPasswordEnv), time.Now())
			if err != nil {
				return err
			}
			if created {
				cmd.Printf("Created admin %s <%s>\n", username, auth.NormalizeEmail(email))
			} else {
				cmd.Printf("Promoted <%s> to admin\n", auth.NormalizeEmail(email))
			}
			return nil
		},
	}
	create.Flags().StringVar(&username, "username", "admin", "username for a new account")
	create.Flags().StringVar(&email, "email", "", "account email (required)")
	_ = create.MarkFlagRequired("email") //nolint:errcheck // flag is defined above

	cmd.AddCommand(create)
	return cmd
}

// ensureAdmin promotes the identity with email to a verified admin, creating
// it with password when it does not exist. It reports whether it created one.
func ensureAdmin(
	ctx context.Context,
	identities auth.IdentityRepository,
	hasher auth.PasswordHasher,
	username, email, password string,
	now time.Time,
) (bool, error) {
	existing, err := identities.FindByEmail(ctx, auth.NormalizeEmail(email))
	switch {
	case err == nil:
		existing.Role = auth.RoleAdmin
		existing.IsVerified = true
		existing.UpdatedAt = now
		if err := identities.Save(ctx, existing); err != nil {
			return false, oops.Code("ADMIN_PROMOTE_FAILED").With("email", existing.Email).Wrap(err)
		}
		return false, nil
	case !errors.Is(err, auth.ErrNotFound):
		return false, oops.Code("ADMIN_LOOKUP_FAILED").Wrap(err)
	}

	if password == "" {
		return false, oops.Code("ADMIN_PASSWORD_REQUIRED").Errorf("%s must be set to create an admin", adminPasswordEnv)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return false, err //nolint:wrapcheck // validation errors carry their own codes
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return false, oops.Code("ADMIN_CREATE_FAILED").With("operation", "hash password").Wrap(err)
	}
	identity, err := auth.NewIdentity(username, email, hash, now)
	if err != nil {
		return false, err //nolint:wrapcheck // validation errors carry their own codes
	}
	identity.Role = auth.RoleAdmin
	identity.IsVerified = true
	if err := identities.Create(ctx, identity); err != nil {
		return false, oops.Code("ADMIN_CREATE_FAILED").With("email", identity.Email).Wrap(err)
	}
	return true, nil
}
