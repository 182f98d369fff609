// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrorKind is the closed set of failures the auth core reports to its callers.
type ErrorKind int

// Error kinds. KindNone is reported for a nil error.
const (
	KindNone ErrorKind = iota
	KindAlreadyExists
	KindInvalidCredentials
	KindEmailNotVerified
	KindInvalidToken
	KindExpired
	KindAlreadyVerified
	KindSubjectGone
	KindForbidden
	KindMissingCredential
	KindInvalidInput
	KindStoreUnavailable
	KindInternal
)

// Sentinel errors, one per kind. Every error returned by the auth core wraps
// exactly one of these so callers can classify it with errors.Is or KindOf.
var (
	ErrAlreadyExists      = errors.New("identity already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpired            = errors.New("token expired")
	ErrAlreadyVerified    = errors.New("email address already verified")
	ErrSubjectGone        = errors.New("token subject no longer exists")
	ErrForbidden          = errors.New("insufficient role")
	ErrMissingCredential  = errors.New("missing bearer credential")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
	ErrInternal           = errors.New("internal error")
)

var kindTable = []struct {
	kind ErrorKind
	name string
	code string
	err  error
}{
	{KindAlreadyExists, "AlreadyExists", "AUTH_ALREADY_EXISTS", ErrAlreadyExists},
	{KindInvalidCredentials, "InvalidCredentials", "AUTH_INVALID_CREDENTIALS", ErrInvalidCredentials},
	{KindEmailNotVerified, "EmailNotVerified", "AUTH_EMAIL_NOT_VERIFIED", ErrEmailNotVerified},
	{KindInvalidToken, "InvalidToken", "AUTH_INVALID_TOKEN", ErrInvalidToken},
	{KindExpired, "Expired", "AUTH_TOKEN_EXPIRED", ErrExpired},
	{KindAlreadyVerified, "AlreadyVerified", "AUTH_ALREADY_VERIFIED", ErrAlreadyVerified},
	{KindSubjectGone, "SubjectGone", "AUTH_SUBJECT_GONE", ErrSubjectGone},
	{KindForbidden, "Forbidden", "AUTH_FORBIDDEN", ErrForbidden},
	{KindMissingCredential, "MissingCredential", "AUTH_MISSING_CREDENTIAL", ErrMissingCredential},
	{KindInvalidInput, "InvalidInput", "AUTH_INVALID_INPUT", ErrInvalidInput},
	{KindStoreUnavailable, "StoreUnavailable", "AUTH_STORE_UNAVAILABLE", ErrStoreUnavailable},
	{KindInternal, "Internal", "AUTH_INTERNAL", ErrInternal},
}

// String returns the kind name.
func (k ErrorKind) String() string {
	if k == KindNone {
		return "None"
	}
	for _, e := range kindTable {
		if e.kind == k {
			return e.name
		}
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Code returns the stable oops error code for the kind.
func (k ErrorKind) Code() string {
	for _, e := range kindTable {
		if e.kind == k {
			return e.code
		}
	}
	return "AUTH_INTERNAL"
}

// Err returns the sentinel error for the kind.
func (k ErrorKind) Err() error {
	for _, e := range kindTable {
		if e.kind == k {
			return e.err
		}
	}
	return ErrInternal
}

// KindOf classifies err. Errors that wrap none of the sentinels are Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, e := range kindTable {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return KindInternal
}

// newError builds an oops error of the given kind carrying optional key/value context.
func newError(kind ErrorKind, kv ...any) error {
	b := oops.Code(kind.Code())
	if len(kv) > 0 {
		b = b.With(kv...)
	}
	return b.Wrap(kind.Err())
}

// storeError wraps a repository failure as StoreUnavailable, keeping the cause in the chain.
func storeError(operation string, err error) error {
	return oops.Code(KindStoreUnavailable.Code()).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}

// internalError wraps an unexpected failure as Internal.
func internalError(operation string, err error) error {
	return oops.Code(KindInternal.Code()).
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", ErrInternal, err))
}
