// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/codesnip/codesnip/pkg/errutil"
)

// DefaultNotifyTimeout bounds a single email side effect.
const DefaultNotifyTimeout = 30 * time.Second

// Email kinds, used in log context and metrics labels.
const (
	EmailVerification  = "verification"
	EmailPasswordReset = "password_reset"
	EmailWelcome       = "welcome"
)

// Notifier delivers account emails. Calls are made off the request path;
// a returned error is logged and never reaches the operation that triggered it.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, identity *Identity, token string) error
	SendPasswordResetEmail(ctx context.Context, identity *Identity, token string) error
	SendWelcomeEmail(ctx context.Context, identity *Identity) error
}

// dispatcher runs notifier calls as fire-and-forget tasks.
type dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	recorder Recorder
	timeout  time.Duration
	wg       sync.WaitGroup
}

// dispatch runs send on its own goroutine. The request context's values are
// kept but its cancellation is not, so the email outlives the request.
func (d *dispatcher) dispatch(ctx context.Context, kind string, identity *Identity, send func(context.Context, *Identity) error) {
	// Copy so later mutations by the caller are not observed by the sender.
	snapshot := *identity

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		err := safeSend(sendCtx, &snapshot, send)
		d.recorder.ObserveEmail(kind, err == nil)
		if err != nil {
			errutil.LogErrorContext(sendCtx, d.logger, "email delivery failed", oops.Code("AUTH_EMAIL_FAILED").
				With("email_kind", kind).
				With("identity_id", snapshot.ID.String()).
				Wrap(err))
			return
		}
		d.logger.DebugContext(sendCtx, "email dispatched",
			"email_kind", kind,
			"identity_id", snapshot.ID.String())
	}()
}

// safeSend converts a notifier panic into an error.
func safeSend(ctx context.Context, identity *Identity, send func(context.Context, *Identity) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code("AUTH_EMAIL_PANIC").With("panic", r).Errorf("notifier panicked")
		}
	}()
	return send(ctx, identity)
}

// wait blocks until all dispatched sends have finished.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
