// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

// Package storetest starts disposable PostgreSQL containers for integration tests.
package storetest

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Container is a running PostgreSQL test database.
type Container struct {
	URL       string
	container *postgres.PostgresContainer
}

// StartPostgres runs a postgres:16-alpine container and returns its connection URL.
func StartPostgres(ctx context.Context) (*Container, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("codesnip_test"),
		postgres.WithUsername("codesnip"),
		postgres.WithPassword("codesnip"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, oops.Code("TEST_CONTAINER_FAILED").With("operation", "start postgres").Wrap(err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx) //nolint:errcheck // connection string error takes precedence
		return nil, oops.Code("TEST_CONTAINER_FAILED").With("operation", "connection string").Wrap(err)
	}
	return &Container{URL: url, container: container}, nil
}

// Terminate stops and removes the container.
func (c *Container) Terminate(ctx context.Context) error {
	return c.container.Terminate(ctx)
}
