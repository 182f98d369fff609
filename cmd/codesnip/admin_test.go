// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesnip/codesnip/internal/auth"
	"github.com/codesnip/codesnip/internal/auth/authtest"
	"github.com/codesnip/codesnip/pkg/errutil"
)

var adminEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fastHasher(t *testing.T) auth.PasswordHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
	require.NoError(t, err)
	return h
}

func TestEnsureAdmin_CreatesVerifiedAdmin(t *testing.T) {
	store := authtest.NewMemoryStore()
	hasher := fastHasher(t)

	created, err := ensureAdmin(t.Context(), store, hasher, "root", "Root@Example.com", "Correct-Horse-Battery-9", adminEpoch)
	require.NoError(t, err)
	assert.True(t, created)

	identity, err := store.FindByEmail(t.Context(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, identity.Role)
	assert.True(t, identity.IsVerified)
	assert.Equal(t, "root", identity.Username)

	ok, err := hasher.Verify("Correct-Horse-Battery-9", identity.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnsureAdmin_PromotesExistingIdentity(t *testing.T) {
	store := authtest.NewMemoryStore()
	existing, err := auth.NewIdentity("alice", "alice@example.com", "original-hash", adminEpoch)
	require.NoError(t, err)
	require.NoError(t, store.Create(t.Context(), existing))

	later := adminEpoch.Add(time.Hour)
	created, err := ensureAdmin(t.Context(), store, fastHasher(t), "ignored", "alice@example.com", "", later)
	require.NoError(t, err)
	assert.False(t, created)

	identity, err := store.FindByEmail(t.Context(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, identity.Role)
	assert.True(t, identity.IsVerified)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, "original-hash", identity.PasswordHash, "promotion keeps the password")
	assert.Equal(t, later, identity.UpdatedAt)
}

func TestEnsureAdmin_Failures(t *testing.T) {
	t.Run("password required for a new account", func(t *testing.T) {
		_, err := ensureAdmin(t.Context(), authtest.NewMemoryStore(), fastHasher(t), "root", "root@example.com", "", adminEpoch)
		errutil.AssertErrorCode(t, err, "ADMIN_PASSWORD_REQUIRED")
	})

	t.Run("weak password", func(t *testing.T) {
		_, err := ensureAdmin(t.Context(), authtest.NewMemoryStore(), fastHasher(t), "root", "root@example.com", "short", adminEpoch)
		assert.Equal(t, auth.KindInvalidInput, auth.KindOf(err))
	})

	t.Run("invalid email", func(t *testing.T) {
		_, err := ensureAdmin(t.Context(), authtest.NewMemoryStore(), fastHasher(t), "root", "not-an-email", "Correct-Horse-Battery-9", adminEpoch)
		assert.Equal(t, auth.KindInvalidInput, auth.KindOf(err))
	})

	t.Run("store unavailable", func(t *testing.T) {
		store := authtest.NewMemoryStore()
		store.Fail()
		_, err := ensureAdmin(t.Context(), store, fastHasher(t), "root", "root@example.com", "Correct-Horse-Battery-9", adminEpoch)
		errutil.AssertErrorCode(t, err, "ADMIN_LOOKUP_FAILED")
	})
}

func TestAdminCreate_RequiresEmail(t *testing.T) {
	setValidEnv(t)
	_, err := execute(t, "admin", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}
