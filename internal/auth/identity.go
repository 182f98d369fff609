// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package auth

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the authorization role of an identity.
type Role string

// Roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole converts s into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", oops.Code(KindInvalidInput.Code()).With("role", s).Wrapf(ErrInvalidInput, "unknown role")
	}
	return r, nil
}

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// MaxAvatarLength bounds the stored avatar URL.
const MaxAvatarLength = 2048

// Password validation constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Identity is a registered account.
type Identity struct {
	ID           ulid.ULID
	Username     string
	Email        string
	PasswordHash string
	IsVerified   bool
	Role         Role
	// Avatar is an absolute http(s) image URL, or empty for none.
	Avatar    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewIdentity creates an unverified identity with the default role.
// The email is normalized; username and email are validated.
func NewIdentity(username, email, passwordHash string, now time.Time) (*Identity, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code(KindInvalidInput.Code()).Wrapf(ErrInvalidInput, "password hash cannot be empty")
	}
	return &Identity{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsVerified:   false,
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasRole reports whether the identity's role is in allowed.
func (i *Identity) HasRole(allowed ...Role) bool {
	for _, r := range allowed {
		if i.Role == r {
			return true
		}
	}
	return false
}

// NormalizeEmail lowercases and trims an email address. Emails compare case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername checks the username is MinUsernameLength to MaxUsernameLength
// characters of letters, digits, and underscores.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return oops.Code(KindInvalidInput.Code()).
			With("field", "username").
			Wrapf(ErrInvalidInput, "username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code(KindInvalidInput.Code()).
			With("field", "username").
			Wrapf(ErrInvalidInput, "username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code(KindInvalidInput.Code()).
			With("field", "username").
			Wrapf(ErrInvalidInput, "username can only contain letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail checks the address is a bare RFC 5322 address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return oops.Code(KindInvalidInput.Code()).
			With("field", "email").
			Wrapf(ErrInvalidInput, "invalid email address")
	}
	return nil
}

// ValidateAvatar checks the avatar is empty or an absolute http(s) URL.
func ValidateAvatar(avatar string) error {
	if avatar == "" {
		return nil
	}
	u, err := url.Parse(avatar)
	if err != nil || len(avatar) > MaxAvatarLength || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return oops.Code(KindInvalidInput.Code()).
			With("field", "avatar").
			Wrapf(ErrInvalidInput, "avatar must be a valid http or https url")
	}
	return nil
}

// ValidatePassword enforces password strength: length bounds plus at least one
// uppercase letter, one lowercase letter, one digit, and one symbol.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return oops.Code(KindInvalidInput.Code()).
			With("field", "password").
			Wrapf(ErrInvalidInput, "password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return oops.Code(KindInvalidInput.Code()).
			With("field", "password").
			Wrapf(ErrInvalidInput, "password must contain uppercase, lowercase, digit, and special characters")
	}
	return nil
}
