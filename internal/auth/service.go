// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/codesnip/codesnip/pkg/errutil"
)

// Operation names, used in log context and metrics labels.
const (
	OpRegister           = "register"
	OpLogin              = "login"
	OpRefresh            = "refresh"
	OpLogout             = "logout"
	OpVerifyEmail        = "verify_email"
	OpResendVerification = "resend_verification"
	OpRequestReset       = "request_password_reset"
	OpResetPassword      = "reset_password"
	OpChangePassword     = "change_password"
	OpUpdateProfile      = "update_profile"
	OpRevokeSessions     = "revoke_sessions"
	OpPurgeSessions      = "purge_sessions"
)

// TokenPair is an access token together with its refresh token.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	Identity        *Identity
	AccessToken     string
	AccessExpiresAt time.Time
}

// LoginResult is returned by Login.
type LoginResult struct {
	Identity *Identity
	Tokens   TokenPair
}

// ProfileUpdate carries the profile fields to change. Nil fields are left
// untouched; an empty Avatar clears it.
type ProfileUpdate struct {
	Username *string
	Email    *string
	Avatar   *string
}

// Service is the session manager: it drives registration, login, token
// rotation, revocation, email verification, and password reset.
type Service struct {
	identities      IdentityRepository
	sessions        SessionRepository
	hasher          PasswordHasher
	codec           *TokenCodec
	notify          *dispatcher
	logger          *slog.Logger
	recorder        Recorder
	now             func() time.Time
	verificationTTL time.Duration
	resetTTL        time.Duration

	// decoy is verified when no identity matches a login email, so the
	// response time does not reveal whether the email is registered. It is
	// produced by the configured hasher and never matches any password.
	decoyMu sync.Mutex
	decoy   string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the service clock used for record expiry.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithNotifyTimeout bounds each email side effect.
func WithNotifyTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.notify.timeout = d
		}
	}
}

// WithActionTokenTTLs overrides the verification and reset token lifetimes.
func WithActionTokenTTLs(verification, reset time.Duration) ServiceOption {
	return func(s *Service) {
		if verification > 0 {
			s.verificationTTL = verification
		}
		if reset > 0 {
			s.resetTTL = reset
		}
	}
}

// NewService creates a Service. All dependencies are required.
func NewService(
	identities IdentityRepository,
	sessions SessionRepository,
	hasher PasswordHasher,
	codec *TokenCodec,
	notifier Notifier,
	opts ...ServiceOption,
) (*Service, error) {
	switch {
	case identities == nil:
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("identity repository is required")
	case sessions == nil:
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("session repository is required")
	case hasher == nil:
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	case codec == nil:
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("token codec is required")
	case notifier == nil:
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("notifier is required")
	}

	s := &Service{
		identities:      identities,
		sessions:        sessions,
		hasher:          hasher,
		codec:           codec,
		notify:          &dispatcher{notifier: notifier, timeout: DefaultNotifyTimeout},
		now:             time.Now,
		verificationTTL: DefaultVerificationTokenTTL,
		resetTTL:        DefaultResetTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.notify.logger = s.logger
	s.notify.recorder = s.recorder
	return s, nil
}

// Wait blocks until every in-flight email side effect has finished.
func (s *Service) Wait() {
	s.notify.wait()
}

// Register creates an unverified identity, issues an access token, and sends
// a verification email in the background.
func (s *Service) Register(ctx context.Context, username, email, password string) (res *RegisterResult, err error) {
	defer s.observe(ctx, OpRegister, &err)

	email = NormalizeEmail(email)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	existing, err := s.identities.FindByEmailOrUsername(ctx, email, username)
	switch {
	case err == nil:
		return nil, newError(KindAlreadyExists, "field", conflictField(existing, email))
	case !errors.Is(err, ErrNotFound):
		return nil, storeError("find identity by email or username", err)
	}

	hash, err := s.hash(password)
	if err != nil {
		return nil, internalError("hash password", err)
	}

	identity, err := NewIdentity(username, email, hash, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, newError(KindAlreadyExists, "operation", "create identity")
		}
		return nil, storeError("create identity", err)
	}

	access, accessExp, err := s.codec.IssueAccess(identity)
	if err != nil {
		return nil, err
	}

	s.sendVerification(ctx, identity)

	s.logger.InfoContext(ctx, "identity registered", "identity_id", identity.ID.String())
	return &RegisterResult{Identity: identity, AccessToken: access, AccessExpiresAt: accessExp}, nil
}

// Login exchanges an email and password for a token pair. Unknown emails and
// wrong passwords fail with the same InvalidCredentials error.
func (s *Service) Login(ctx context.Context, email, password string) (res *LoginResult, err error) {
	defer s.observe(ctx, OpLogin, &err)

	identity, lookupErr := s.identities.FindByEmail(ctx, NormalizeEmail(email))

	var targetHash string
	exists := false
	switch {
	case lookupErr == nil:
		targetHash = identity.PasswordHash
		exists = true
	case errors.Is(lookupErr, ErrNotFound):
		if targetHash, err = s.decoyHash(); err != nil {
			return nil, internalError("prepare decoy hash", err)
		}
	default:
		return nil, storeError("find identity by email", lookupErr)
	}

	// Always verify, even against the decoy hash, to keep timing uniform.
	valid, verifyErr := s.verify(password, targetHash)
	if verifyErr != nil {
		if !exists {
			return nil, newError(KindInvalidCredentials)
		}
		return nil, internalError("verify password", verifyErr)
	}
	if !exists || !valid {
		return nil, newError(KindInvalidCredentials)
	}

	// Checked only after the password is known to be correct.
	if !identity.IsVerified {
		return nil, newError(KindEmailNotVerified, "identity_id", identity.ID.String())
	}

	s.upgradeHash(ctx, identity, password)

	pair, err := s.issuePair(ctx, identity)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "identity logged in", "identity_id", identity.ID.String())
	return &LoginResult{Identity: identity, Tokens: *pair}, nil
}

// Refresh rotates a refresh token: the presented token's record is revoked
// before a new pair is issued, so each refresh token is usable exactly once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	defer s.observe(ctx, OpRefresh, &err)

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, newError(KindInvalidToken, "reason", KindOf(err).String())
	}

	now := s.now()
	record, err := s.sessions.FindActive(ctx, HashRefreshToken(refreshToken), claims.SubjectID, now)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindInvalidToken, "reason", "no active session record")
	}
	if err != nil {
		return nil, storeError("find active session record", err)
	}
	// The stored record is authoritative; re-check it against our own clock.
	if record.OwnerID != claims.SubjectID || !record.IsActiveAt(now) {
		return nil, newError(KindInvalidToken, "reason", "session record inactive")
	}

	identity, err := s.identities.FindByID(ctx, claims.SubjectID)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindInvalidToken, "reason", "subject no longer exists")
	}
	if err != nil {
		return nil, storeError("find identity by id", err)
	}

	if err := s.sessions.Revoke(ctx, record.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Another request rotated this token first.
			return nil, newError(KindInvalidToken, "reason", "session record already revoked")
		}
		return nil, storeError("revoke session record", err)
	}

	return s.issuePair(ctx, identity)
}

// Logout revokes every active session record of the subject.
func (s *Service) Logout(ctx context.Context, subjectID ulid.ULID) (err error) {
	defer s.observe(ctx, OpLogout, &err)

	_, err = s.revokeAll(ctx, subjectID)
	return err
}

// RevokeSessions revokes every active session record of the subject and
// reports how many were revoked.
func (s *Service) RevokeSessions(ctx context.Context, subjectID ulid.ULID) (n int64, err error) {
	defer s.observe(ctx, OpRevokeSessions, &err)

	return s.revokeAll(ctx, subjectID)
}

// VerifyEmail marks the identity named by a verification token as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (identity *Identity, err error) {
	defer s.observe(ctx, OpVerifyEmail, &err)

	claims, err := s.codec.VerifyAction(token, PurposeEmailVerification)
	if err != nil {
		return nil, newError(KindInvalidToken, "reason", KindOf(err).String())
	}

	identity, err = s.identities.FindByID(ctx, claims.SubjectID)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindInvalidToken, "reason", "subject no longer exists")
	}
	if err != nil {
		return nil, storeError("find identity by id", err)
	}
	if identity.IsVerified {
		return nil, newError(KindAlreadyVerified, "identity_id", identity.ID.String())
	}
	if claims.Email != identity.Email {
		return nil, newError(KindInvalidToken, "reason", "email changed since issuance")
	}

	identity.IsVerified = true
	identity.UpdatedAt = s.now()
	if err := s.identities.Save(ctx, identity); err != nil {
		return nil, storeError("save identity", err)
	}

	s.notify.dispatch(ctx, EmailWelcome, identity, s.notify.notifier.SendWelcomeEmail)

	s.logger.InfoContext(ctx, "email verified", "identity_id", identity.ID.String())
	return identity, nil
}

// ResendVerification sends a fresh verification email to an unverified
// identity. It reports success whether or not the email is registered.
func (s *Service) ResendVerification(ctx context.Context, email string) (err error) {
	defer s.observe(ctx, OpResendVerification, &err)

	identity, err := s.identities.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeError("find identity by email", err)
	}
	if !identity.IsVerified {
		s.sendVerification(ctx, identity)
	}
	return nil
}

// RequestPasswordReset emails a reset token if the email is registered. It
// reports success whether or not the email is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer s.observe(ctx, OpRequestReset, &err)

	identity, err := s.identities.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeError("find identity by email", err)
	}

	token, err := s.codec.IssueAction(identity, PurposePasswordReset, s.resetTTL)
	if err != nil {
		// Failing here would reveal that the email is registered.
		errutil.LogErrorContext(ctx, s.logger, "issue password reset token", err)
		return nil
	}

	s.notify.dispatch(ctx, EmailPasswordReset, identity, func(ctx context.Context, id *Identity) error {
		return s.notify.notifier.SendPasswordResetEmail(ctx, id, token)
	})
	return nil
}

// ResetPassword replaces the password named by a reset token and revokes all
// of the identity's sessions. A reset token stops working once the password changes.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer s.observe(ctx, OpResetPassword, &err)

	claims, err := s.codec.VerifyAction(token, PurposePasswordReset)
	if err != nil {
		return newError(KindInvalidToken, "reason", KindOf(err).String())
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	identity, err := s.identities.FindByID(ctx, claims.SubjectID)
	if errors.Is(err, ErrNotFound) {
		return newError(KindInvalidToken, "reason", "subject no longer exists")
	}
	if err != nil {
		return storeError("find identity by id", err)
	}
	fingerprint := PasswordFingerprint(identity.PasswordHash)
	if subtle.ConstantTimeCompare([]byte(fingerprint), []byte(claims.PasswordFingerprint)) != 1 {
		return newError(KindInvalidToken, "reason", "password changed since issuance")
	}

	if err := s.replacePassword(ctx, identity, newPassword); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset", "identity_id", identity.ID.String())
	return nil
}

// ChangePassword replaces the password of an authenticated subject after
// checking the current one, then revokes all of its sessions.
func (s *Service) ChangePassword(ctx context.Context, subjectID ulid.ULID, currentPassword, newPassword string) (err error) {
	defer s.observe(ctx, OpChangePassword, &err)

	identity, err := s.findSubject(ctx, subjectID)
	if err != nil {
		return err
	}

	valid, err := s.verify(currentPassword, identity.PasswordHash)
	if err != nil {
		return internalError("verify password", err)
	}
	if !valid {
		return newError(KindInvalidCredentials)
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	return s.replacePassword(ctx, identity, newPassword)
}

// UpdateProfile changes the username, email, and avatar of a subject. An email
// change leaves IsVerified as it is; an unverified subject gets a fresh
// verification email at the new address.
func (s *Service) UpdateProfile(ctx context.Context, subjectID ulid.ULID, update ProfileUpdate) (identity *Identity, err error) {
	defer s.observe(ctx, OpUpdateProfile, &err)

	identity, err = s.findSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	username, email, avatar := identity.Username, identity.Email, identity.Avatar
	if update.Username != nil {
		username = *update.Username
		if err := ValidateUsername(username); err != nil {
			return nil, err
		}
	}
	if update.Email != nil {
		email = NormalizeEmail(*update.Email)
		if err := ValidateEmail(email); err != nil {
			return nil, err
		}
	}
	if update.Avatar != nil {
		avatar = strings.TrimSpace(*update.Avatar)
		if err := ValidateAvatar(avatar); err != nil {
			return nil, err
		}
	}
	if username == identity.Username && email == identity.Email && avatar == identity.Avatar {
		return identity, nil
	}

	if username != identity.Username || email != identity.Email {
		conflict, err := s.identities.FindConflicting(ctx, identity.ID, email, username)
		switch {
		case err == nil:
			return nil, newError(KindAlreadyExists, "field", conflictField(conflict, email))
		case !errors.Is(err, ErrNotFound):
			return nil, storeError("find conflicting identity", err)
		}
	}

	emailChanged := email != identity.Email
	identity.Username = username
	identity.Email = email
	identity.Avatar = avatar
	identity.UpdatedAt = s.now()

	if err := s.identities.Save(ctx, identity); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, newError(KindAlreadyExists, "operation", "save identity")
		}
		return nil, storeError("save identity", err)
	}

	// Pending verification links name the old address and no longer match.
	if emailChanged && !identity.IsVerified {
		s.sendVerification(ctx, identity)
	}

	s.logger.InfoContext(ctx, "profile updated", "identity_id", identity.ID.String())
	return identity, nil
}

// CurrentIdentity returns the identity of an authenticated subject.
func (s *Service) CurrentIdentity(ctx context.Context, subjectID ulid.ULID) (*Identity, error) {
	return s.findSubject(ctx, subjectID)
}

// PurgeExpiredSessions deletes session records that have expired.
// Validity never depends on this running.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (n int64, err error) {
	defer s.observe(ctx, OpPurgeSessions, &err)

	n, err = s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, storeError("delete expired session records", err)
	}
	return n, nil
}

func (s *Service) issuePair(ctx context.Context, identity *Identity) (*TokenPair, error) {
	access, accessExp, err := s.codec.IssueAccess(identity)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.codec.IssueRefresh(identity)
	if err != nil {
		return nil, err
	}

	record, err := NewSessionRecord(identity.ID, refresh, refreshExp, s.now())
	if err != nil {
		return nil, internalError("build session record", err)
	}
	if err := s.sessions.Create(ctx, record); err != nil {
		return nil, storeError("create session record", err)
	}

	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) revokeAll(ctx context.Context, subjectID ulid.ULID) (int64, error) {
	n, err := s.sessions.RevokeAll(ctx, subjectID)
	if err != nil {
		return 0, storeError("revoke all session records", err)
	}
	s.logger.InfoContext(ctx, "sessions revoked", "identity_id", subjectID.String(), "count", n)
	return n, nil
}

func (s *Service) replacePassword(ctx context.Context, identity *Identity, newPassword string) error {
	hash, err := s.hash(newPassword)
	if err != nil {
		return internalError("hash password", err)
	}
	identity.PasswordHash = hash
	identity.UpdatedAt = s.now()
	if err := s.identities.Save(ctx, identity); err != nil {
		return storeError("save identity", err)
	}
	// Sessions opened under the old password must not survive it.
	if _, err := s.revokeAll(ctx, identity.ID); err != nil {
		return err
	}
	return nil
}

func (s *Service) findSubject(ctx context.Context, subjectID ulid.ULID) (*Identity, error) {
	identity, err := s.identities.FindByID(ctx, subjectID)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindSubjectGone, "identity_id", subjectID.String())
	}
	if err != nil {
		return nil, storeError("find identity by id", err)
	}
	return identity, nil
}

// upgradeHash rehashes the password when the stored hash uses outdated
// parameters. Failures are logged; login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, identity *Identity, password string) {
	if !s.hasher.NeedsUpgrade(identity.PasswordHash) {
		return
	}
	hash, err := s.hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password hash upgrade failed", err)
		return
	}
	identity.PasswordHash = hash
	identity.UpdatedAt = s.now()
	if err := s.identities.Save(ctx, identity); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password hash upgrade failed", oops.
			With("identity_id", identity.ID.String()).
			Wrap(err))
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "identity_id", identity.ID.String())
}

func (s *Service) sendVerification(ctx context.Context, identity *Identity) {
	token, err := s.codec.IssueAction(identity, PurposeEmailVerification, s.verificationTTL)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "issue verification token", err)
		return
	}
	s.notify.dispatch(ctx, EmailVerification, identity, func(ctx context.Context, id *Identity) error {
		return s.notify.notifier.SendVerificationEmail(ctx, id, token)
	})
}

// decoyHash returns a hash of a random secret made with the service's hasher,
// so unknown-email logins pay the same work factor as real ones. A failed
// attempt is retried on the next call.
func (s *Service) decoyHash() (string, error) {
	s.decoyMu.Lock()
	defer s.decoyMu.Unlock()
	if s.decoy != "" {
		return s.decoy, nil
	}
	hash, err := s.hasher.Hash(rand.Text())
	if err != nil {
		return "", err //nolint:wrapcheck // wrapped by caller
	}
	s.decoy = hash
	return hash, nil
}

func (s *Service) hash(password string) (string, error) {
	start := time.Now()
	defer func() { s.recorder.ObserveHash("hash", time.Since(start)) }()
	return s.hasher.Hash(password)
}

func (s *Service) verify(password, hash string) (bool, error) {
	start := time.Now()
	defer func() { s.recorder.ObserveHash("verify", time.Since(start)) }()
	return s.hasher.Verify(password, hash)
}

// observe records the outcome of an operation and logs failures that the
// caller will only see as a generic error.
func (s *Service) observe(ctx context.Context, operation string, errp *error) {
	kind := KindOf(*errp)
	s.recorder.ObserveOperation(operation, kind)
	switch kind {
	case KindStoreUnavailable, KindInternal:
		errutil.LogErrorContext(ctx, s.logger, operation+" failed", *errp)
	case KindNone:
	default:
		s.logger.DebugContext(ctx, operation+" rejected", "kind", kind.String())
	}
}

func conflictField(existing *Identity, email string) string {
	if existing != nil && existing.Email == email {
		return "email"
	}
	return "username"
}
