// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/codesnip/codesnip/pkg/errutil"
)

// BearerScheme is the credential scheme expected in the Authorization header.
const BearerScheme = "Bearer"

// Gate authenticates bearer credentials and authorizes roles.
type Gate struct {
	codec      *TokenCodec
	identities IdentityRepository
	logger     *slog.Logger
	recorder   Recorder
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the gate logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

// WithGateRecorder sets the gate metrics recorder.
func WithGateRecorder(r Recorder) GateOption {
	return func(g *Gate) { g.recorder = r }
}

// NewGate creates a Gate.
func NewGate(codec *TokenCodec, identities IdentityRepository, opts ...GateOption) (*Gate, error) {
	if codec == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("token codec is required")
	}
	if identities == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("identity repository is required")
	}
	g := &Gate{codec: codec, identities: identities}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.recorder == nil {
		g.recorder = nopRecorder{}
	}
	return g, nil
}

// ExtractBearer returns the token from an Authorization header value of the
// form "Bearer <token>". The scheme is matched case-insensitively.
func ExtractBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, BearerScheme) {
		return "", newError(KindMissingCredential)
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", newError(KindMissingCredential)
	}
	return token, nil
}

// Authenticate resolves the identity behind an Authorization header value.
// A valid signature is not enough: the subject must still exist.
func (g *Gate) Authenticate(ctx context.Context, authorization string) (identity *Identity, err error) {
	defer func() { g.recorder.ObserveGateDecision(KindOf(err)) }()

	token, err := ExtractBearer(authorization)
	if err != nil {
		return nil, err
	}

	claims, err := g.codec.VerifyAccess(token)
	if err != nil {
		return nil, err
	}

	identity, err = g.identities.FindByID(ctx, claims.SubjectID)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindSubjectGone, "identity_id", claims.SubjectID.String())
	}
	if err != nil {
		err = storeError("find identity by id", err)
		errutil.LogErrorContext(ctx, g.logger, "authenticate failed", err)
		return nil, err
	}
	return identity, nil
}

// Authorize fails with Forbidden unless the identity holds one of the allowed roles.
func Authorize(identity *Identity, allowed ...Role) error {
	if identity == nil {
		return newError(KindMissingCredential)
	}
	if !identity.HasRole(allowed...) {
		return newError(KindForbidden, "identity_id", identity.ID.String(), "role", string(identity.Role))
	}
	return nil
}

type identityContextKey struct{}

// WithIdentity returns a context carrying the authenticated identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok && identity != nil
}
