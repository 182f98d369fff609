// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package authtest

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/codesnip/codesnip/internal/auth"
)

// SentEmail is one call recorded by a RecordingNotifier.
type SentEmail struct {
	Kind       string
	IdentityID ulid.ULID
	To         string
	Token      string
}

// RecordingNotifier records every email instead of sending it.
// Set Err to make every send fail after being recorded.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []SentEmail
	Err  error
}

// SendVerificationEmail implements auth.Notifier.
func (n *RecordingNotifier) SendVerificationEmail(_ context.Context, identity *auth.Identity, token string) error {
	return n.record(auth.EmailVerification, identity, token)
}

// SendPasswordResetEmail implements auth.Notifier.
func (n *RecordingNotifier) SendPasswordResetEmail(_ context.Context, identity *auth.Identity, token string) error {
	return n.record(auth.EmailPasswordReset, identity, token)
}

// SendWelcomeEmail implements auth.Notifier.
func (n *RecordingNotifier) SendWelcomeEmail(_ context.Context, identity *auth.Identity) error {
	return n.record(auth.EmailWelcome, identity, "")
}

// Sent returns a copy of the recorded emails.
func (n *RecordingNotifier) Sent() []SentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentEmail(nil), n.sent...)
}

// Last returns the most recent email of the given kind.
func (n *RecordingNotifier) Last(kind string) (SentEmail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i], true
		}
	}
	return SentEmail{}, false
}

func (n *RecordingNotifier) record(kind string, identity *auth.Identity, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, SentEmail{
		Kind:       kind,
		IdentityID: identity.ID,
		To:         identity.Email,
		Token:      token,
	})
	return n.Err
}

var _ auth.Notifier = (*RecordingNotifier)(nil)
