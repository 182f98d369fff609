// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionRecord is the persisted backing record of a refresh token.
// Only the SHA-256 of the serialized token is stored.
type SessionRecord struct {
	ID        ulid.ULID
	OwnerID   ulid.ULID
	TokenHash string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
}

// NewSessionRecord creates an active record for a freshly issued refresh token.
func NewSessionRecord(ownerID ulid.ULID, refreshToken string, expiresAt, now time.Time) (*SessionRecord, error) {
	if ownerID.IsZero() {
		return nil, oops.Code("SESSION_INVALID_OWNER").Errorf("owner ID cannot be zero")
	}
	if refreshToken == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("refresh token cannot be empty")
	}
	if !expiresAt.After(now) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").
			With("expires_at", expiresAt).
			Errorf("expiry must be in the future")
	}
	return &SessionRecord{
		ID:        ulid.Make(),
		OwnerID:   ownerID,
		TokenHash: HashRefreshToken(refreshToken),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// IsActiveAt reports whether the record is neither revoked nor expired at t.
func (r *SessionRecord) IsActiveAt(t time.Time) bool {
	return !r.IsRevoked && t.Before(r.ExpiresAt)
}

// HashRefreshToken returns the SHA-256 hex digest used as the record's lookup key.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
