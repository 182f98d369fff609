// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/codesnip/codesnip/internal/auth"
	"github.com/codesnip/codesnip/internal/auth/postgres"
	"github.com/codesnip/codesnip/internal/config"
	"github.com/codesnip/codesnip/internal/mail"
	"github.com/codesnip/codesnip/internal/observability"
	"github.com/codesnip/codesnip/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// DatabaseFactory opens the credential store pool.
	// Default: store.Open
	DatabaseFactory func(ctx context.Context, url string, cfg store.PoolConfig) (Database, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, opts ...observability.ServerOption) ObservabilityServer

	// NotifierFactory builds the email transport.
	// Default: SMTP when mail.host is set, otherwise the log notifier.
	NotifierFactory func(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error)

	// HasherFactory builds the password hasher from the configured work factor.
	// Default: auth.NewArgon2idHasherWithParams
	HasherFactory func(params auth.Argon2Params) (auth.PasswordHasher, error)
}

// Database is the pool surface used by the repositories and readiness probe.
type Database interface {
	postgres.DBTX
	Ping(ctx context.Context) error
	Close()
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.AuthMetrics
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.DatabaseFactory == nil {
		out.DatabaseFactory = func(ctx context.Context, url string, cfg store.PoolConfig) (Database, error) {
			return store.Open(ctx, url, cfg)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, opts ...observability.ServerOption) ObservabilityServer {
			return observability.NewServer(addr, ready, opts...)
		}
	}
	if out.NotifierFactory == nil {
		out.NotifierFactory = newNotifier
	}
	if out.HasherFactory == nil {
		out.HasherFactory = func(params auth.Argon2Params) (auth.PasswordHasher, error) {
			hasher, err := auth.NewArgon2idHasherWithParams(params)
			if err != nil {
				return nil, err //nolint:wrapcheck // hasher errors carry their own codes
			}
			return hasher, nil
		}
	}
	return &out
}

// newNotifier sends over SMTP when a host is configured and logs otherwise.
func newNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error) {
	if cfg.Mail.Host == "" {
		logger.Warn("mail.host not set, account emails will be logged instead of sent")
		//nolint:wrapcheck // mail errors carry their own oops codes
		return mail.NewLogNotifier(cfg.Mail.BaseURL, logger)
	}
	//nolint:wrapcheck // mail errors carry their own oops codes
	return mail.NewSMTPNotifier(cfg.MailerConfig(), logger)
}
