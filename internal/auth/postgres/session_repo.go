// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codesnip/codesnip/internal/auth"
)

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new session record.
func (r *SessionRepository) Create(ctx context.Context, record *auth.SessionRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO session_records (id, owner_id, token_hash, expires_at, is_revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		record.ID.String(),
		record.OwnerID.String(),
		record.TokenHash,
		record.ExpiresAt,
		record.IsRevoked,
		record.CreatedAt,
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session record").
			With("owner_id", record.OwnerID.String()).
			Wrap(err)
	}
	return nil
}

// FindActive returns the unrevoked, unexpired record for tokenHash owned by ownerID.
func (r *SessionRepository) FindActive(ctx context.Context, tokenHash string, ownerID ulid.ULID, now time.Time) (*auth.SessionRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, owner_id, token_hash, expires_at, is_revoked, created_at
		FROM session_records
		WHERE token_hash = $1 AND owner_id = $2 AND NOT is_revoked AND expires_at > $3
	`, tokenHash, ownerID.String(), now)

	record, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("owner_id", ownerID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_QUERY_FAILED").
			With("operation", "find active session record").
			Wrap(err)
	}
	return record, nil
}

// Revoke marks a record revoked. Only one caller can revoke a given record;
// the rest get auth.ErrNotFound.
func (r *SessionRepository) Revoke(ctx context.Context, id ulid.ULID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE session_records SET is_revoked = TRUE
		WHERE id = $1 AND NOT is_revoked
	`, id.String())
	if err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke session record").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RevokeAll revokes every active record of ownerID and returns how many changed.
func (r *SessionRepository) RevokeAll(ctx context.Context, ownerID ulid.ULID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE session_records SET is_revoked = TRUE
		WHERE owner_id = $1 AND NOT is_revoked
	`, ownerID.String())
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("operation", "revoke all session records").
			With("owner_id", ownerID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes records that expired at or before the cutoff.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM session_records WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired session records").
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*auth.SessionRecord, error) {
	var (
		record   auth.SessionRecord
		idStr    string
		ownerStr string
	)
	if err := row.Scan(&idStr, &ownerStr, &record.TokenHash, &record.ExpiresAt, &record.IsRevoked, &record.CreatedAt); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}

	var err error
	if record.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.With("column", "id").With("value", idStr).Wrap(err)
	}
	if record.OwnerID, err = ulid.Parse(ownerStr); err != nil {
		return nil, oops.With("column", "owner_id").With("value", ownerStr).Wrap(err)
	}
	return &record, nil
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
