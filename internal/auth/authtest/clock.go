// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package authtest

import (
	"sync"
	"time"

	"github.com/codesnip/codesnip/internal/auth"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock set to t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TokenConfig returns a codec configuration with distinct test secrets.
func TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  []byte("access-secret-for-tests-0123456789abcdef"),
		RefreshSecret: []byte("refresh-secret-for-tests-0123456789abcdef"),
		ActionSecret:  []byte("action-secret-for-tests-0123456789abcdef"),
		AccessTTL:     auth.DefaultAccessTTL,
		RefreshTTL:    auth.DefaultRefreshTTL,
		Issuer:        "codesnip-test",
	}
}
