// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

//go:build integration

// Package integration runs the HTTP API end to end against PostgreSQL.
package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/codesnip/codesnip/internal/auth"
	"github.com/codesnip/codesnip/internal/auth/authtest"
	"github.com/codesnip/codesnip/internal/auth/postgres"
	"github.com/codesnip/codesnip/internal/store"
	"github.com/codesnip/codesnip/internal/store/storetest"
	"github.com/codesnip/codesnip/internal/web"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}

// testEnv holds the resources shared by every spec.
type testEnv struct {
	container  *storetest.Container
	pool       *pgxpool.Pool
	identities *postgres.IdentityRepository
	svc        *auth.Service
	notifier   *authtest.RecordingNotifier
	server     *httptest.Server
}

var env *testEnv

var _ = BeforeSuite(func() {
	ctx := context.Background()
	gin.SetMode(gin.TestMode)

	container, err := storetest.StartPostgres(ctx)
	Expect(err).NotTo(HaveOccurred())
	env = &testEnv{container: container}

	migrator, err := store.NewMigrator(container.URL)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	env.pool, err = store.Open(ctx, container.URL, store.PoolConfig{MaxConns: 8})
	Expect(err).NotTo(HaveOccurred())

	codec, err := auth.NewTokenCodec(authtest.TokenConfig())
	Expect(err).NotTo(HaveOccurred())
	hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
	Expect(err).NotTo(HaveOccurred())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.identities = postgres.NewIdentityRepository(env.pool)
	env.notifier = &authtest.RecordingNotifier{}
	env.svc, err = auth.NewService(env.identities, postgres.NewSessionRepository(env.pool), hasher, codec, env.notifier,
		auth.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())

	gate, err := auth.NewGate(codec, env.identities, auth.WithGateLogger(logger))
	Expect(err).NotTo(HaveOccurred())
	router, err := web.NewRouter(web.RouterConfig{
		Service: env.svc,
		Gate:    gate,
		Logger:  logger,
		Ready:   store.NewReadinessCheck(env.pool, 0).IsReady,
	})
	Expect(err).NotTo(HaveOccurred())
	env.server = httptest.NewServer(router)
})

var _ = AfterSuite(func() {
	if env == nil {
		return
	}
	if env.server != nil {
		env.server.Close()
	}
	if env.svc != nil {
		env.svc.Wait()
	}
	if env.pool != nil {
		env.pool.Close()
	}
	if env.container != nil {
		Expect(env.container.Terminate(context.Background())).To(Succeed())
	}
})

// resetDatabase empties both tables between specs.
func resetDatabase() {
	_, err := env.pool.Exec(context.Background(), "TRUNCATE session_records, identities CASCADE")
	Expect(err).NotTo(HaveOccurred())
}
