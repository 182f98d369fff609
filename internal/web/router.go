// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package web

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/codesnip/codesnip/internal/auth"
)

// RouterConfig wires the API routes.
type RouterConfig struct {
	Service AccountService
	Gate    *auth.Gate
	Logger  *slog.Logger
	// Limiter, if set, guards the unauthenticated auth routes.
	Limiter  *RateLimiter
	Observer RequestObserver
	// Ready backs GET /healthz. Nil reports ready.
	Ready          func() bool
	TrustedProxies []string
}

// NewRouter builds the gin engine serving the API.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	if cfg.Service == nil || cfg.Gate == nil {
		return nil, oops.Code("WEB_INVALID_DEPENDENCY").Errorf("service and gate are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, oops.Code("WEB_CONFIG_INVALID").With("trusted_proxies", cfg.TrustedProxies).Wrap(err)
	}
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger, cfg.Observer))
	r.NoRoute(func(c *gin.Context) {
		abortWith(c, http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: "route not found"})
	})

	r.GET("/healthz", func(c *gin.Context) {
		if cfg.Ready != nil && !cfg.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := NewAuthHandler(cfg.Service, logger)
	requireAuth := RequireAuth(cfg.Gate, logger)

	api := r.Group("/api/v1")

	public := api.Group("/auth")
	if cfg.Limiter != nil {
		public.Use(cfg.Limiter.Handler())
	}
	{
		public.POST("/register", h.Register)
		public.POST("/login", h.Login)
		public.POST("/refresh-token", h.Refresh)
		public.POST("/verify-email", h.VerifyEmail)
		public.POST("/resend-verification", h.ResendVerification)
		public.POST("/forgot-password", h.ForgotPassword)
		public.POST("/reset-password", h.ResetPassword)
		public.GET("/session", OptionalAuth(cfg.Gate), h.Session)
	}

	account := api.Group("/auth", requireAuth)
	{
		account.POST("/logout", h.Logout)
		account.GET("/me", h.Me)
		account.PUT("/profile", h.UpdateProfile)
		account.POST("/change-password", h.ChangePassword)
	}

	admin := api.Group("/admin", requireAuth, RequireRole(logger, auth.RoleAdmin))
	{
		admin.POST("/users/:id/revoke-sessions", h.RevokeSessions)
	}

	return r, nil
}
