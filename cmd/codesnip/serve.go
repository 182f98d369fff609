// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/codesnip/codesnip/internal/auth"
	"github.com/codesnip/codesnip/internal/auth/postgres"
	"github.com/codesnip/codesnip/internal/config"
	"github.com/codesnip/codesnip/internal/observability"
	"github.com/codesnip/codesnip/internal/store"
	"github.com/codesnip/codesnip/internal/web"
	"github.com/codesnip/codesnip/pkg/errutil"
)

const (
	readinessTimeout     = 2 * time.Second
	limiterPruneInterval = time.Minute
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API together with the metrics/health listener and the
expired-session janitor. Apply migrations first with "codesnip migrate up".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := setupLogging(cmd, cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger, nil)
		},
	}
}

// app holds the wired server components.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      Database
	svc     *auth.Service
	router  *gin.Engine
	limiter *web.RateLimiter
	obs     ObservabilityServer
}

// newApp connects to the database and wires every component. The caller owns
// the returned app and must close it.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *ServeDeps) (_ *app, err error) {
	deps = deps.withDefaults()

	db, err := deps.DatabaseFactory(ctx, cfg.Database.URL, cfg.PoolConfig())
	if err != nil {
		return nil, oops.Code("SERVE_DB_FAILED").Wrap(err)
	}
	a := &app{cfg: cfg, logger: logger, db: db}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	var recorder auth.Recorder
	var observer web.RequestObserver
	ready := store.NewReadinessCheck(db, readinessTimeout)
	if cfg.Metrics.Addr != "" {
		a.obs = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.IsReady,
			observability.WithLogger(logger),
			observability.WithBuildInfo(version, commit),
		)
		recorder = a.obs.Metrics()
		observer = a.obs.Metrics()
	}

	codec, err := auth.NewTokenCodec(cfg.AuthTokenConfig())
	if err != nil {
		return nil, oops.Code("SERVE_INIT_FAILED").With("component", "token codec").Wrap(err)
	}
	notifier, err := deps.NotifierFactory(cfg, logger)
	if err != nil {
		return nil, oops.Code("SERVE_INIT_FAILED").With("component", "notifier").Wrap(err)
	}

	hasher, err := deps.HasherFactory(cfg.HasherParams())
	if err != nil {
		return nil, oops.Code("SERVE_INIT_FAILED").With("component", "hasher").Wrap(err)
	}

	identities := postgres.NewIdentityRepository(db)
	a.svc, err = auth.NewService(
		identities,
		postgres.NewSessionRepository(db),
		hasher,
		codec,
		notifier,
		auth.WithLogger(logger),
		auth.WithRecorder(recorder),
		auth.WithNotifyTimeout(cfg.Sessions.NotifyTimeout),
		auth.WithActionTokenTTLs(cfg.Tokens.VerificationTTL, cfg.Tokens.ResetTTL),
	)
	if err != nil {
		return nil, oops.Code("SERVE_INIT_FAILED").With("component", "service").Wrap(err)
	}
	gate, err := auth.NewGate(codec, identities, auth.WithGateLogger(logger), auth.WithGateRecorder(recorder))
	if err != nil {
		return nil, oops.Code("SERVE_INIT_FAILED").With("component", "gate").Wrap(err)
	}

	if cfg.HTTP.RateLimit > 0 {
		a.limiter = web.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
	}
	a.router, err = web.NewRouter(web.RouterConfig{
		Service:        a.svc,
		Gate:           gate,
		Logger:         logger,
		Limiter:        a.limiter,
		Observer:       observer,
		Ready:          ready.IsReady,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		return nil, oops.Code("SERVE_INIT_FAILED").With("component", "router").Wrap(err)
	}
	return a, nil
}

// runServe serves until ctx is cancelled or a listener fails.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *ServeDeps) error {
	a, err := newApp(ctx, cfg, logger, deps)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdown := func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		a.close(shutdownCtx)
	}

	if a.obs != nil {
		obsErrCh, err := a.obs.Start()
		if err != nil {
			shutdown()
			return oops.Code("SERVE_OBSERVABILITY_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", a.logger)
	}

	listener, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		shutdown()
		return oops.Code("SERVE_LISTEN_FAILED").With("addr", a.cfg.HTTP.Addr).Wrap(err)
	}
	httpSrv := &http.Server{
		Handler:           a.router,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: a.cfg.HTTP.ReadTimeout,
		WriteTimeout:      a.cfg.HTTP.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	apiErrCh := make(chan error, 1)
	go func() {
		defer close(apiErrCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrCh <- serveErr
		}
	}()
	a.logger.Info("api listening", "addr", listener.Addr().String())

	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		runJanitor(ctx, a.svc, a.cfg.Sessions.PurgeInterval, a.logger)
	}()
	if a.limiter != nil {
		go a.limiter.Run(ctx, limiterPruneInterval)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case serveErr := <-apiErrCh:
		runErr = oops.Code("SERVE_API_FAILED").Wrap(serveErr)
		errutil.LogError(a.logger, "api server failed", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("error stopping api server", "error", err)
	}
	cancel()
	<-janitorDone
	a.close(shutdownCtx)
	a.logger.Info("shutdown complete")
	return runErr
}

// close drains email side effects and releases listeners and the pool.
func (a *app) close(ctx context.Context) {
	if a.svc != nil {
		a.svc.Wait()
	}
	if a.obs != nil {
		if err := a.obs.Stop(ctx); err != nil {
			a.logger.Warn("error stopping observability server", "error", err)
		}
	}
	a.db.Close()
}

// sessionPurger is the janitor's view of the service.
type sessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// runJanitor deletes expired session records every interval until ctx ends.
// A non-positive interval disables it.
func runJanitor(ctx context.Context, purger sessionPurger, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.PurgeExpiredSessions(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errutil.LogErrorContext(ctx, logger, "purge expired sessions failed", err)
				}
				continue
			}
			if n > 0 {
				logger.InfoContext(ctx, "purged expired sessions", "count", n)
			}
		}
	}
}

// monitorServerErrors cancels ctx when a background server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
