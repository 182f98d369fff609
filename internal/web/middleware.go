// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package web

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codesnip/codesnip/internal/auth"
)

const identityKey = "codesnip.identity"

// RequireAuth rejects requests without a valid bearer access token. On success
// the identity is attached to both the gin context and the request context.
func RequireAuth(gate *auth.Gate, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := gate.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		attach(c, identity)
		c.Next()
	}
}

// OptionalAuth attaches the identity when the request carries a valid token
// and never rejects.
func OptionalAuth(gate *auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if identity, err := gate.Authenticate(c.Request.Context(), c.GetHeader("Authorization")); err == nil {
			attach(c, identity)
		}
		c.Next()
	}
}

// RequireRole rejects requests whose identity holds none of roles. It must run
// after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, _ := CurrentIdentity(c)
		if err := auth.Authorize(identity, roles...); err != nil {
			writeError(c, logger, err)
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity attached by RequireAuth or OptionalAuth.
func CurrentIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok && identity != nil
}

func attach(c *gin.Context, identity *auth.Identity) {
	c.Set(identityKey, identity)
	c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), identity))
}

// RequestObserver counts served requests.
type RequestObserver interface {
	ObserveHTTPRequest(route string, status int)
}

// RequestLogger logs one line per request and reports it to observer, if set.
func RequestLogger(logger *slog.Logger, observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if observer != nil {
			observer.ObserveHTTPRequest(route, status)
		}

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if identity, ok := CurrentIdentity(c); ok {
			attrs = append(attrs, slog.String("identity_id", identity.ID.String()))
		}
		logger.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}
