// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

//go:build integration

package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/codesnip/codesnip/internal/store"
	"github.com/codesnip/codesnip/internal/store/storetest"
)

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx       context.Context
		container *storetest.Container
		migrator  *store.Migrator
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = storetest.StartPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())

		migrator, err = store.NewMigrator(container.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if migrator != nil {
			Expect(migrator.Close()).To(Succeed())
		}
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	It("starts at version zero with everything pending", func() {
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(BeZero())
		Expect(status.Applied).To(BeEmpty())
		Expect(status.Pending).To(Equal([]uint{1, 2, 3}))
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(3)))
		Expect(dirty).To(BeFalse())
	})

	It("is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(3)))
	})

	It("creates the tables the repositories use", func() {
		pool, err := store.Open(ctx, container.URL, store.PoolConfig{MaxConns: 2})
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		for _, table := range []string{"identities", "session_records"} {
			var exists bool
			err := pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).
				Scan(&exists)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue(), table)
		}

		Expect(store.NewReadinessCheck(pool, 0).IsReady()).To(BeTrue())
	})

	It("rolls everything back", func() {
		Expect(migrator.Down()).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})
})
