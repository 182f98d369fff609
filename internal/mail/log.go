// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package mail

import (
	"context"
	"log/slog"

	"github.com/codesnip/codesnip/internal/auth"
)

// LogNotifier writes account emails to the log instead of sending them.
// It is used when no SMTP host is configured.
type LogNotifier struct {
	links  linkBuilder
	logger *slog.Logger
}

var _ auth.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier that renders links against baseURL.
func NewLogNotifier(baseURL string, logger *slog.Logger) (*LogNotifier, error) {
	links, err := newLinkBuilder(baseURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{links: links, logger: logger}, nil
}

// SendVerificationEmail implements auth.Notifier.
func (n *LogNotifier) SendVerificationEmail(ctx context.Context, identity *auth.Identity, token string) error {
	n.log(ctx, auth.EmailVerification, identity, n.links.verify(token))
	return nil
}

// SendPasswordResetEmail implements auth.Notifier.
func (n *LogNotifier) SendPasswordResetEmail(ctx context.Context, identity *auth.Identity, token string) error {
	n.log(ctx, auth.EmailPasswordReset, identity, n.links.reset(token))
	return nil
}

// SendWelcomeEmail implements auth.Notifier.
func (n *LogNotifier) SendWelcomeEmail(ctx context.Context, identity *auth.Identity) error {
	n.log(ctx, auth.EmailWelcome, identity, n.links.base)
	return nil
}

func (n *LogNotifier) log(ctx context.Context, kind string, identity *auth.Identity, link string) {
	n.logger.InfoContext(ctx, "email not sent, smtp disabled",
		"email_kind", kind,
		"identity_id", identity.ID.String(),
		"to", identity.Email,
		"link", link)
}
