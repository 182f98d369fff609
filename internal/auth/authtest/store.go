// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

// Package authtest provides in-memory test doubles for the auth package.
package authtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codesnip/codesnip/internal/auth"
)

// ErrUnavailable is returned by a MemoryStore after Fail has been called.
var ErrUnavailable = errors.New("memory store unavailable")

// MemoryStore is an in-memory IdentityRepository and SessionRepository.
// Returned values are copies, so callers cannot mutate stored state.
type MemoryStore struct {
	mu         sync.Mutex
	identities map[ulid.ULID]auth.Identity
	sessions   map[ulid.ULID]auth.SessionRecord
	failing    bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[ulid.ULID]auth.Identity),
		sessions:   make(map[ulid.ULID]auth.SessionRecord),
	}
}

// Fail makes every subsequent call return ErrUnavailable until Recover is called.
func (s *MemoryStore) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = true
}

// Recover undoes Fail.
func (s *MemoryStore) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = false
}

// Delete removes an identity, simulating deletion by another subsystem.
func (s *MemoryStore) Delete(id ulid.ULID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, id)
}

// Sessions returns a copy of every session record owned by ownerID.
func (s *MemoryStore) Sessions(ownerID ulid.ULID) []auth.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.SessionRecord
	for _, r := range s.sessions {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out
}

// FindByEmailOrUsername implements auth.IdentityRepository.
func (s *MemoryStore) FindByEmailOrUsername(_ context.Context, email, username string) (*auth.Identity, error) {
	return s.findIdentity(func(i auth.Identity) bool {
		return i.Email == auth.NormalizeEmail(email) || i.Username == username
	})
}

// FindByID implements auth.IdentityRepository.
func (s *MemoryStore) FindByID(_ context.Context, id ulid.ULID) (*auth.Identity, error) {
	return s.findIdentity(func(i auth.Identity) bool { return i.ID == id })
}

// FindByEmail implements auth.IdentityRepository.
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*auth.Identity, error) {
	return s.findIdentity(func(i auth.Identity) bool { return i.Email == auth.NormalizeEmail(email) })
}

// FindConflicting implements auth.IdentityRepository.
func (s *MemoryStore) FindConflicting(_ context.Context, excludeID ulid.ULID, email, username string) (*auth.Identity, error) {
	return s.findIdentity(func(i auth.Identity) bool {
		return i.ID != excludeID && (i.Email == auth.NormalizeEmail(email) || i.Username == username)
	})
}

// Create implements auth.IdentityRepository.
func (s *MemoryStore) Create(_ context.Context, identity *auth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	if s.conflictLocked(identity) {
		return oops.Code("IDENTITY_ALREADY_EXISTS").Wrap(auth.ErrAlreadyExists)
	}
	s.identities[identity.ID] = *identity
	return nil
}

// Save implements auth.IdentityRepository.
func (s *MemoryStore) Save(_ context.Context, identity *auth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	if _, ok := s.identities[identity.ID]; !ok {
		return oops.Code("IDENTITY_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if s.conflictLocked(identity) {
		return oops.Code("IDENTITY_ALREADY_EXISTS").Wrap(auth.ErrAlreadyExists)
	}
	s.identities[identity.ID] = *identity
	return nil
}

// createSession stores a record, rejecting a duplicate token hash.
func (s *MemoryStore) createSession(record *auth.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return ErrUnavailable
	}
	for _, r := range s.sessions {
		if r.TokenHash == record.TokenHash {
			return oops.Code("SESSION_ALREADY_EXISTS").Wrap(auth.ErrAlreadyExists)
		}
	}
	s.sessions[record.ID] = *record
	return nil
}

// SessionStore returns the auth.SessionRepository view of the store.
func (s *MemoryStore) SessionStore() *SessionStore {
	return &SessionStore{s: s}
}

// SessionStore adapts a MemoryStore to auth.SessionRepository.
type SessionStore struct {
	s *MemoryStore
}

// Create implements auth.SessionRepository.
func (v *SessionStore) Create(_ context.Context, record *auth.SessionRecord) error {
	return v.s.createSession(record)
}

// FindActive implements auth.SessionRepository.
func (v *SessionStore) FindActive(_ context.Context, tokenHash string, ownerID ulid.ULID, now time.Time) (*auth.SessionRecord, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.failing {
		return nil, ErrUnavailable
	}
	for _, r := range v.s.sessions {
		if r.TokenHash == tokenHash && r.OwnerID == ownerID && r.IsActiveAt(now) {
			out := r
			return &out, nil
		}
	}
	return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// Revoke implements auth.SessionRepository.
func (v *SessionStore) Revoke(_ context.Context, id ulid.ULID) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.failing {
		return ErrUnavailable
	}
	r, ok := v.s.sessions[id]
	if !ok || r.IsRevoked {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	r.IsRevoked = true
	v.s.sessions[id] = r
	return nil
}

// RevokeAll implements auth.SessionRepository.
func (v *SessionStore) RevokeAll(_ context.Context, ownerID ulid.ULID) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.failing {
		return 0, ErrUnavailable
	}
	var n int64
	for id, r := range v.s.sessions {
		if r.OwnerID == ownerID && !r.IsRevoked {
			r.IsRevoked = true
			v.s.sessions[id] = r
			n++
		}
	}
	return n, nil
}

// DeleteExpired implements auth.SessionRepository.
func (v *SessionStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.failing {
		return 0, ErrUnavailable
	}
	var n int64
	for id, r := range v.s.sessions {
		if r.ExpiresAt.Before(before) {
			delete(v.s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) findIdentity(match func(auth.Identity) bool) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, ErrUnavailable
	}
	for _, i := range s.identities {
		if match(i) {
			out := i
			return &out, nil
		}
	}
	return nil, oops.Code("IDENTITY_NOT_FOUND").Wrap(auth.ErrNotFound)
}

func (s *MemoryStore) conflictLocked(identity *auth.Identity) bool {
	for _, i := range s.identities {
		if i.ID != identity.ID && (i.Email == identity.Email || i.Username == identity.Username) {
			return true
		}
	}
	return false
}

// Verify interfaces are satisfied.
var (
	_ auth.IdentityRepository = (*MemoryStore)(nil)
	_ auth.SessionRepository  = (*SessionStore)(nil)
)
