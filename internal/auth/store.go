// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// IdentityRepository persists identities.
// Lookups return ErrNotFound when nothing matches. Emails are stored normalized.
type IdentityRepository interface {
	// FindByEmailOrUsername returns an identity holding either the email or the username.
	FindByEmailOrUsername(ctx context.Context, email, username string) (*Identity, error)

	FindByID(ctx context.Context, id ulid.ULID) (*Identity, error)

	FindByEmail(ctx context.Context, email string) (*Identity, error)

	// FindConflicting returns an identity other than excludeID holding the email or the username.
	FindConflicting(ctx context.Context, excludeID ulid.ULID, email, username string) (*Identity, error)

	// Create stores a new identity. Returns an error wrapping ErrAlreadyExists on a
	// uniqueness violation.
	Create(ctx context.Context, identity *Identity) error

	// Save persists the mutable fields of an existing identity.
	Save(ctx context.Context, identity *Identity) error
}

// SessionRepository persists refresh token session records.
type SessionRepository interface {
	Create(ctx context.Context, record *SessionRecord) error

	// FindActive returns the record for tokenHash owned by ownerID, excluding
	// revoked records and records whose expiry is not after now.
	FindActive(ctx context.Context, tokenHash string, ownerID ulid.ULID, now time.Time) (*SessionRecord, error)

	// Revoke marks a record revoked. It returns ErrNotFound when the record does
	// not exist or is already revoked, so two concurrent rotations cannot both win.
	Revoke(ctx context.Context, id ulid.ULID) error

	// RevokeAll revokes every non-revoked record owned by ownerID.
	RevokeAll(ctx context.Context, ownerID ulid.ULID) (int64, error)

	// DeleteExpired physically removes records that expired before the cutoff.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
