// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/codesnip/codesnip/internal/auth"
	"github.com/codesnip/codesnip/internal/auth/postgres"
)

func newIdentity(username string) *auth.Identity {
	now := time.Now().UTC().Truncate(time.Microsecond)
	identity, err := auth.NewIdentity(username, username+"@example.com", "$argon2id$hash", now)
	Expect(err).NotTo(HaveOccurred())
	return identity
}

var _ = Describe("IdentityRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.IdentityRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewIdentityRepository(testPool)
		_, err := testPool.Exec(ctx, `TRUNCATE identities CASCADE`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("round-trips an identity", func() {
		identity := newIdentity("alice")
		Expect(repo.Create(ctx, identity)).To(Succeed())

		byID, err := repo.FindByID(ctx, identity.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(byID.Username).To(Equal("alice"))
		Expect(byID.Avatar).To(BeEmpty())
		Expect(byID.CreatedAt.Equal(identity.CreatedAt)).To(BeTrue())

		byEmail, err := repo.FindByEmail(ctx, "alice@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(byEmail.ID).To(Equal(identity.ID))
	})

	It("rejects duplicate email and username", func() {
		Expect(repo.Create(ctx, newIdentity("alice"))).To(Succeed())

		sameUsername := newIdentity("alice")
		sameUsername.Email = "other@example.com"
		Expect(repo.Create(ctx, sameUsername)).To(MatchError(auth.ErrAlreadyExists))

		sameEmail := newIdentity("bob")
		sameEmail.Email = "alice@example.com"
		Expect(repo.Create(ctx, sameEmail)).To(MatchError(auth.ErrAlreadyExists))
	})

	It("prefers the email match when both fields conflict", func() {
		alice := newIdentity("alice")
		bob := newIdentity("bob")
		Expect(repo.Create(ctx, alice)).To(Succeed())
		Expect(repo.Create(ctx, bob)).To(Succeed())

		found, err := repo.FindByEmailOrUsername(ctx, "bob@example.com", "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(found.ID).To(Equal(bob.ID))

		conflict, err := repo.FindConflicting(ctx, alice.ID, "alice@example.com", "bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(conflict.ID).To(Equal(bob.ID))

		_, err = repo.FindConflicting(ctx, alice.ID, "alice@example.com", "alice")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("saves changes and reports missing rows", func() {
		identity := newIdentity("alice")
		Expect(repo.Create(ctx, identity)).To(Succeed())

		identity.IsVerified = true
		identity.Role = auth.RoleAdmin
		identity.Avatar = "https://cdn.example/alice.png"
		Expect(repo.Save(ctx, identity)).To(Succeed())

		stored, err := repo.FindByID(ctx, identity.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.IsVerified).To(BeTrue())
		Expect(stored.Role).To(Equal(auth.RoleAdmin))
		Expect(stored.Avatar).To(Equal("https://cdn.example/alice.png"))

		Expect(repo.Save(ctx, newIdentity("ghost"))).To(MatchError(auth.ErrNotFound))
	})
})

var _ = Describe("SessionRepository", func() {
	var (
		ctx        context.Context
		identities *postgres.IdentityRepository
		sessions   *postgres.SessionRepository
		owner      *auth.Identity
		now        time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		identities = postgres.NewIdentityRepository(testPool)
		sessions = postgres.NewSessionRepository(testPool)
		_, err := testPool.Exec(ctx, `TRUNCATE identities CASCADE`)
		Expect(err).NotTo(HaveOccurred())

		owner = newIdentity("alice")
		Expect(identities.Create(ctx, owner)).To(Succeed())
		now = time.Now().UTC().Truncate(time.Microsecond)
	})

	newRecord := func(token string, ttl time.Duration) *auth.SessionRecord {
		record, err := auth.NewSessionRecord(owner.ID, token, now.Add(ttl), now)
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions.Create(ctx, record)).To(Succeed())
		return record
	}

	It("finds only active records", func() {
		active := newRecord("active", time.Hour)
		newRecord("expired", time.Millisecond)

		found, err := sessions.FindActive(ctx, auth.HashRefreshToken("active"), owner.ID, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(found.ID).To(Equal(active.ID))

		_, err = sessions.FindActive(ctx, auth.HashRefreshToken("expired"), owner.ID, now.Add(time.Second))
		Expect(err).To(MatchError(auth.ErrNotFound))

		_, err = sessions.FindActive(ctx, auth.HashRefreshToken("active"), ulid.Make(), now)
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("lets exactly one concurrent revoke win", func() {
		record := newRecord("contended", time.Hour)

		const racers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				if err := sessions.Revoke(ctx, record.ID); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else {
					Expect(err).To(MatchError(auth.ErrNotFound))
				}
			}()
		}
		wg.Wait()
		Expect(wins).To(Equal(1))
	})

	It("revokes all and purges expired", func() {
		newRecord("one", time.Hour)
		newRecord("two", time.Hour)
		newRecord("old", time.Millisecond)

		n, err := sessions.RevokeAll(ctx, owner.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(3)))

		n, err = sessions.RevokeAll(ctx, owner.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())

		n, err = sessions.DeleteExpired(ctx, now.Add(time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(1)))
	})

	It("rejects a duplicate token hash", func() {
		newRecord("dup", time.Hour)
		record, err := auth.NewSessionRecord(owner.ID, "dup", now.Add(time.Hour), now)
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions.Create(ctx, record)).NotTo(Succeed())
	})
})
