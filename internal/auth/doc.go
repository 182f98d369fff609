// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

// Package auth implements the CodeSnip authentication and session-token lifecycle.
//
// # Components
//
//   - PasswordHasher - argon2id hashing with transparent upgrade of legacy bcrypt hashes
//   - TokenCodec - HS256 access, refresh, and single-purpose action tokens, each
//     class signed with its own secret
//   - Service - registration, login, refresh rotation, logout, email verification,
//     and password reset over the credential store
//   - Gate - bearer credential authentication and role authorization
//
// # Credential Store
//
// IdentityRepository and SessionRepository are implemented by the postgres
// subpackage and by an in-memory store in authtest. Only the SHA-256 of each
// refresh token is persisted.
//
// # Errors
//
// Every failure wraps one sentinel of the closed ErrorKind set. Use KindOf to
// classify an error; transport layers switch on the kind.
//
// # Side Effects
//
// Emails are dispatched by the Service on background goroutines. A failed
// delivery is logged and never fails the operation that triggered it. Call
// Service.Wait during shutdown to let in-flight deliveries finish.
package auth
