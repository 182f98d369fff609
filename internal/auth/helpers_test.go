// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package auth_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codesnip/codesnip/internal/auth"
	"github.com/codesnip/codesnip/internal/auth/authtest"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// harness wires a Service over in-memory collaborators.
type harness struct {
	svc      *auth.Service
	codec    *auth.TokenCodec
	store    *authtest.MemoryStore
	notifier *authtest.RecordingNotifier
	clock    *authtest.Clock
	logs     *bytes.Buffer
}

func newHarness(t *testing.T, opts ...auth.ServiceOption) *harness {
	t.Helper()

	clock := authtest.NewClock(epoch)
	codec, err := auth.NewTokenCodec(authtest.TokenConfig(), auth.WithCodecClock(clock.Now))
	require.NoError(t, err)

	store := authtest.NewMemoryStore()
	notifier := &authtest.RecordingNotifier{}
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	all := append([]auth.ServiceOption{auth.WithClock(clock.Now), auth.WithLogger(logger)}, opts...)
	svc, err := auth.NewService(store, store.SessionStore(), fastHasher(t), codec, notifier, all...)
	require.NoError(t, err)
	t.Cleanup(svc.Wait)

	return &harness{svc: svc, codec: codec, store: store, notifier: notifier, clock: clock, logs: logs}
}

// verificationToken waits for background sends and returns the newest verification token.
func (h *harness) verificationToken(t *testing.T) string {
	t.Helper()
	h.svc.Wait()
	sent, ok := h.notifier.Last(auth.EmailVerification)
	require.True(t, ok, "expected a verification email")
	return sent.Token
}

// registerVerified registers an identity and completes email verification.
func (h *harness) registerVerified(t *testing.T, username, email, password string) *auth.Identity {
	t.Helper()
	ctx := t.Context()
	res, err := h.svc.Register(ctx, username, email, password)
	require.NoError(t, err)
	_, err = h.svc.VerifyEmail(ctx, h.verificationToken(t))
	require.NoError(t, err)
	return res.Identity
}

// logEntry is one decoded JSON log line.
type logEntry struct {
	Level   string         `json:"level"`
	Msg     string         `json:"msg"`
	Code    string         `json:"code"`
	Context map[string]any `json:"context"`
}

func (h *harness) logEntries(t *testing.T) []logEntry {
	t.Helper()
	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(h.logs.String()), "\n") {
		if line == "" {
			continue
		}
		var e logEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	return entries
}
