// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/codesnip/codesnip/internal/auth"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher that asserts its expectations on cleanup.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash implements auth.PasswordHasher.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

// Verify implements auth.PasswordHasher.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	ret := m.Called(password, hash)
	return ret.Bool(0), ret.Error(1)
}

// NeedsUpgrade implements auth.PasswordHasher.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	ret := m.Called(hash)
	return ret.Bool(0)
}

// MockIdentityRepository is a mock auth.IdentityRepository.
type MockIdentityRepository struct {
	mock.Mock
}

// NewMockIdentityRepository creates a MockIdentityRepository that asserts its expectations on cleanup.
func NewMockIdentityRepository(t testingT) *MockIdentityRepository {
	m := &MockIdentityRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// FindByEmailOrUsername implements auth.IdentityRepository.
func (m *MockIdentityRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*auth.Identity, error) {
	ret := m.Called(ctx, email, username)
	return identityResult(ret)
}

// FindByID implements auth.IdentityRepository.
func (m *MockIdentityRepository) FindByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	ret := m.Called(ctx, id)
	return identityResult(ret)
}

// FindByEmail implements auth.IdentityRepository.
func (m *MockIdentityRepository) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	ret := m.Called(ctx, email)
	return identityResult(ret)
}

// FindConflicting implements auth.IdentityRepository.
func (m *MockIdentityRepository) FindConflicting(ctx context.Context, excludeID ulid.ULID, email, username string) (*auth.Identity, error) {
	ret := m.Called(ctx, excludeID, email, username)
	return identityResult(ret)
}

// Create implements auth.IdentityRepository.
func (m *MockIdentityRepository) Create(ctx context.Context, identity *auth.Identity) error {
	return m.Called(ctx, identity).Error(0)
}

// Save implements auth.IdentityRepository.
func (m *MockIdentityRepository) Save(ctx context.Context, identity *auth.Identity) error {
	return m.Called(ctx, identity).Error(0)
}

// MockSessionRepository is a mock auth.SessionRepository.
type MockSessionRepository struct {
	mock.Mock
}

// NewMockSessionRepository creates a MockSessionRepository that asserts its expectations on cleanup.
func NewMockSessionRepository(t testingT) *MockSessionRepository {
	m := &MockSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Create implements auth.SessionRepository.
func (m *MockSessionRepository) Create(ctx context.Context, record *auth.SessionRecord) error {
	return m.Called(ctx, record).Error(0)
}

// FindActive implements auth.SessionRepository.
func (m *MockSessionRepository) FindActive(ctx context.Context, tokenHash string, ownerID ulid.ULID, now time.Time) (*auth.SessionRecord, error) {
	ret := m.Called(ctx, tokenHash, ownerID, now)
	var record *auth.SessionRecord
	if v := ret.Get(0); v != nil {
		record = v.(*auth.SessionRecord)
	}
	return record, ret.Error(1)
}

// Revoke implements auth.SessionRepository.
func (m *MockSessionRepository) Revoke(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

// RevokeAll implements auth.SessionRepository.
func (m *MockSessionRepository) RevokeAll(ctx context.Context, ownerID ulid.ULID) (int64, error) {
	ret := m.Called(ctx, ownerID)
	return ret.Get(0).(int64), ret.Error(1)
}

// DeleteExpired implements auth.SessionRepository.
func (m *MockSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ret := m.Called(ctx, before)
	return ret.Get(0).(int64), ret.Error(1)
}

func identityResult(ret mock.Arguments) (*auth.Identity, error) {
	var identity *auth.Identity
	if v := ret.Get(0); v != nil {
		identity = v.(*auth.Identity)
	}
	return identity, ret.Error(1)
}

// Verify interfaces are satisfied.
var (
	_ auth.PasswordHasher     = (*MockPasswordHasher)(nil)
	_ auth.IdentityRepository = (*MockIdentityRepository)(nil)
	_ auth.SessionRepository  = (*MockSessionRepository)(nil)
)
