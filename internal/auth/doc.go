// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

// Package auth implements credential management for the Protec Rescue
// training platform.
//
// # Domain Types
//
// CredentialRecord, LockoutRecord and SessionHandle are owned by exactly one
// component each: CredentialStore mutates credential records, LockoutGuard
// mutates lockout records, and SessionIssuer creates and destroys session
// handles. The three share the case-normalized identifier as a join key but
// never write each other's records.
//
// # Services
//
// Service is the caller-facing facade consumed by the HTTP layer:
//   - Register - password policy check, credential creation, session issuance
//   - Login - lockout gate, verification (with lazy legacy migration),
//     session issuance
//   - Logout - session invalidation
//   - CheckStrength - password strength heuristic
//
// All expected outcomes (duplicate identifier, weak password, wrong password,
// locked account) are ordinary returned errors; only persistence failures
// propagate as hard errors.
package auth
