// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateIdentifier is returned when registering an identifier that
// already has a credential record.
var ErrDuplicateIdentifier = errors.New("identifier already registered")

// ErrInvalidCredentials is returned for both unknown identifiers and wrong
// passwords. The two cases are deliberately indistinguishable so that login
// failures do not reveal whether an account exists.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrNoStrategy is returned when no key derivation strategy in the configured
// chain is available.
var ErrNoStrategy = errors.New("no key derivation strategy available")

// WeakPasswordError is returned when a candidate password scores below the
// policy threshold. It carries the computed strength so callers can explain
// the rejection.
type WeakPasswordError struct {
	Strength Strength
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("password too weak (level %d, %s)", e.Strength.Level, e.Strength.Label)
}

// AccountLockedError is returned when a login attempt is blocked by the
// lockout guard. RetryAfter is the remaining lockout window.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %ds", e.Seconds())
}

// Seconds returns the remaining lockout window in whole seconds, rounded up.
func (e *AccountLockedError) Seconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}
