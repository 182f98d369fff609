// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codesnip/codesnip/internal/auth"
)

const identityColumns = `id, username, email, password_hash, is_verified, role, avatar, created_at, updated_at`

// IdentityRepository implements auth.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	db DBTX
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(db DBTX) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// FindByEmailOrUsername returns an identity holding either value. An email
// match is preferred so callers can report which field conflicts.
func (r *IdentityRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*auth.Identity, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE email = $1 OR username = $2
		ORDER BY (email = $1) DESC
		LIMIT 1
	`, email, username)
	return r.one(row, "find identity by email or username")
}

// FindByID retrieves an identity by ID.
func (r *IdentityRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
	`, id.String())
	identity, err := r.one(row, "find identity by id")
	if err != nil {
		return nil, oops.With("id", id.String()).Wrap(err)
	}
	return identity, nil
}

// FindByEmail retrieves an identity by its normalized email.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE email = $1
	`, email)
	return r.one(row, "find identity by email")
}

// FindConflicting returns another identity holding email or username.
func (r *IdentityRepository) FindConflicting(ctx context.Context, excludeID ulid.ULID, email, username string) (*auth.Identity, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id <> $1 AND (email = $2 OR username = $3)
		ORDER BY (email = $2) DESC
		LIMIT 1
	`, excludeID.String(), email, username)
	return r.one(row, "find conflicting identity")
}

// Create stores a new identity. A duplicate email or username wraps auth.ErrAlreadyExists.
func (r *IdentityRepository) Create(ctx context.Context, identity *auth.Identity) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		identity.ID.String(),
		identity.Username,
		identity.Email,
		identity.PasswordHash,
		identity.IsVerified,
		string(identity.Role),
		identity.Avatar,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if constraint, ok := uniqueViolation(err); ok {
		return oops.Code("IDENTITY_ALREADY_EXISTS").
			With("constraint", constraint).
			Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("IDENTITY_CREATE_FAILED").
			With("operation", "insert identity").
			With("id", identity.ID.String()).
			Wrap(err)
	}
	return nil
}

// Save overwrites every mutable column of an existing identity.
func (r *IdentityRepository) Save(ctx context.Context, identity *auth.Identity) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE identities
		SET username = $2, email = $3, password_hash = $4, is_verified = $5, role = $6, avatar = $7, updated_at = $8
		WHERE id = $1
	`,
		identity.ID.String(),
		identity.Username,
		identity.Email,
		identity.PasswordHash,
		identity.IsVerified,
		string(identity.Role),
		identity.Avatar,
		identity.UpdatedAt,
	)
	if constraint, ok := uniqueViolation(err); ok {
		return oops.Code("IDENTITY_ALREADY_EXISTS").
			With("constraint", constraint).
			Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("IDENTITY_SAVE_FAILED").
			With("operation", "update identity").
			With("id", identity.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("IDENTITY_NOT_FOUND").
			With("id", identity.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func (r *IdentityRepository) one(row pgx.Row, operation string) (*auth.Identity, error) {
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("IDENTITY_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_QUERY_FAILED").With("operation", operation).Wrap(err)
	}
	return identity, nil
}

func scanIdentity(row pgx.Row) (*auth.Identity, error) {
	var (
		identity auth.Identity
		idStr    string
		role     string
	)
	if err := row.Scan(
		&idStr,
		&identity.Username,
		&identity.Email,
		&identity.PasswordHash,
		&identity.IsVerified,
		&role,
		&identity.Avatar,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("column", "id").With("value", idStr).Wrap(err)
	}
	identity.ID = id
	identity.Role = auth.Role(role)
	return &identity, nil
}

var _ auth.IdentityRepository = (*IdentityRepository)(nil)
