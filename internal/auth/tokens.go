// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token lifetimes.
const (
	DefaultAccessTTL            = 15 * time.Minute
	DefaultRefreshTTL           = 7 * 24 * time.Hour
	DefaultVerificationTokenTTL = 24 * time.Hour
	DefaultResetTokenTTL        = time.Hour
)

// MinSecretLength is the minimum HS256 key length accepted by NewTokenCodec.
const MinSecretLength = 32

// Purpose scopes a single-use action token to one operation.
type Purpose string

// Action token purposes.
const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// Token classes, used in error context and metrics labels.
const (
	tokenClassAccess  = "access"
	tokenClassRefresh = "refresh"
	tokenClassAction  = "action"
)

// TokenConfig configures a TokenCodec. Each token class has its own secret.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	ActionSecret  []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// AccessClaims are embedded in access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  Role   `json:"role"`

	SubjectID ulid.ULID `json:"-"`
}

// RefreshClaims are embedded in refresh tokens.
type RefreshClaims struct {
	jwt.RegisteredClaims

	SubjectID ulid.ULID `json:"-"`
}

// ActionClaims are embedded in single-purpose tokens (email verification, password reset).
type ActionClaims struct {
	jwt.RegisteredClaims
	Purpose Purpose `json:"purpose"`
	// Email binds a verification token to the address it was sent to.
	Email string `json:"email,omitempty"`
	// PasswordFingerprint binds a reset token to the password hash current at issuance.
	PasswordFingerprint string `json:"pwh,omitempty"`

	SubjectID ulid.ULID `json:"-"`
}

// TokenCodec signs and verifies HS256 bearer tokens.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	actionSecret  []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithCodecClock overrides the clock used for issuance and expiry checks.
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec validates cfg and creates a TokenCodec.
func NewTokenCodec(cfg TokenConfig, opts ...CodecOption) (*TokenCodec, error) {
	secrets := map[string][]byte{
		tokenClassAccess:  cfg.AccessSecret,
		tokenClassRefresh: cfg.RefreshSecret,
		tokenClassAction:  cfg.ActionSecret,
	}
	for class, secret := range secrets {
		if len(secret) < MinSecretLength {
			return nil, oops.Code("TOKEN_CONFIG_INVALID").
				With("token_class", class).
				Errorf("%s secret must be at least %d bytes", class, MinSecretLength)
		}
	}
	if subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 ||
		subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.ActionSecret) == 1 ||
		subtle.ConstantTimeCompare(cfg.RefreshSecret, cfg.ActionSecret) == 1 {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").Errorf("token secrets must be distinct")
	}

	c := &TokenCodec{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		actionSecret:  cfg.ActionSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
	if c.accessTTL <= 0 {
		c.accessTTL = DefaultAccessTTL
	}
	if c.refreshTTL <= 0 {
		c.refreshTTL = DefaultRefreshTTL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

// IssueAccess signs an access token for the identity.
func (c *TokenCodec) IssueAccess(id *Identity) (string, time.Time, error) {
	claims := &AccessClaims{
		RegisteredClaims: c.registered(id, c.accessTTL),
		Email:            id.Email,
		Role:             id.Role,
	}
	token, err := c.sign(claims, c.accessSecret, tokenClassAccess)
	return token, claims.ExpiresAt.Time, err
}

// IssueRefresh signs a refresh token for the identity.
func (c *TokenCodec) IssueRefresh(id *Identity) (string, time.Time, error) {
	claims := &RefreshClaims{RegisteredClaims: c.registered(id, c.refreshTTL)}
	token, err := c.sign(claims, c.refreshSecret, tokenClassRefresh)
	return token, claims.ExpiresAt.Time, err
}

// IssueAction signs a single-purpose token. Verification tokens are bound to
// the identity's email and reset tokens to its current password hash.
func (c *TokenCodec) IssueAction(id *Identity, purpose Purpose, ttl time.Duration) (string, error) {
	claims := &ActionClaims{
		RegisteredClaims: c.registered(id, ttl),
		Purpose:          purpose,
	}
	switch purpose {
	case PurposeEmailVerification:
		claims.Email = id.Email
	case PurposePasswordReset:
		claims.PasswordFingerprint = PasswordFingerprint(id.PasswordHash)
	}
	return c.sign(claims, c.actionSecret, tokenClassAction)
}

// VerifyAccess checks an access token's signature and expiry.
func (c *TokenCodec) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(token, claims, c.accessSecret, tokenClassAccess); err != nil {
		return nil, err
	}
	subject, err := parseSubject(claims.Subject, tokenClassAccess)
	if err != nil {
		return nil, err
	}
	claims.SubjectID = subject
	return claims, nil
}

// VerifyRefresh checks a refresh token's signature and expiry.
func (c *TokenCodec) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(token, claims, c.refreshSecret, tokenClassRefresh); err != nil {
		return nil, err
	}
	subject, err := parseSubject(claims.Subject, tokenClassRefresh)
	if err != nil {
		return nil, err
	}
	claims.SubjectID = subject
	return claims, nil
}

// VerifyAction checks an action token's signature, expiry, and purpose.
func (c *TokenCodec) VerifyAction(token string, purpose Purpose) (*ActionClaims, error) {
	claims := &ActionClaims{}
	if err := c.parse(token, claims, c.actionSecret, tokenClassAction); err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, newError(KindInvalidToken,
			"token_class", tokenClassAction,
			"reason", "purpose mismatch",
			"purpose", string(claims.Purpose))
	}
	subject, err := parseSubject(claims.Subject, tokenClassAction)
	if err != nil {
		return nil, err
	}
	claims.SubjectID = subject
	return claims, nil
}

func (c *TokenCodec) registered(id *Identity, ttl time.Duration) jwt.RegisteredClaims {
	now := c.now()
	return jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   id.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		// A unique ID keeps two tokens issued within the same second distinct.
		ID: ulid.Make().String(),
	}
}

func (c *TokenCodec) sign(claims jwt.Claims, secret []byte, class string) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", internalError("sign "+class+" token", err)
	}
	return signed, nil
}

func (c *TokenCodec) parse(token string, claims jwt.Claims, secret []byte, class string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err == nil {
		return nil
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return newError(KindExpired, "token_class", class)
	}
	return newError(KindInvalidToken, "token_class", class, "reason", err.Error())
}

func parseSubject(sub, class string) (ulid.ULID, error) {
	id, err := ulid.Parse(sub)
	if err != nil {
		return ulid.ULID{}, newError(KindInvalidToken, "token_class", class, "reason", "malformed subject")
	}
	return id, nil
}

// PasswordFingerprint returns a short digest of a password hash. It changes
// whenever the password is replaced, which retires outstanding reset tokens.
func PasswordFingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:16])
}
