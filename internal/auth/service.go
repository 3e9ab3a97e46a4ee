// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/protecrescue/rescueauth/internal/observability"
)

// Service wires the credential core together in the canonical order: a login
// hits the lockout guard first, then the credential store, and on success
// clears the guard and issues a session. A registration hits the password
// policy, then the credential store, then issues a session.
type Service struct {
	creds    *CredentialStore
	guard    *LockoutGuard
	sessions *SessionIssuer
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(creds *CredentialStore, guard *LockoutGuard, sessions *SessionIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		creds:    creds,
		guard:    guard,
		sessions: sessions,
		logger:   logger,
	}
}

// Register creates a credential for the identifier and issues a session.
// Returns WeakPasswordError or ErrDuplicateIdentifier as ordinary outcomes.
func (s *Service) Register(ctx context.Context, identifier, password string) (string, error) {
	if NormalizeIdentifier(identifier) == "" {
		return "", oops.Code("AUTH_MISSING_IDENTIFIER").Errorf("identifier is required")
	}

	strength := EvaluateStrength(password)
	if strength.Level < MinAcceptedLevel {
		observability.RecordRegistration("weak_password")
		return "", &WeakPasswordError{Strength: strength}
	}

	if _, err := s.creds.Create(ctx, identifier, password); err != nil {
		if errors.Is(err, ErrDuplicateIdentifier) {
			observability.RecordRegistration("duplicate")
		}
		return "", err
	}

	token, err := s.sessions.Issue(ctx, identifier)
	if err != nil {
		return "", err
	}

	observability.RecordRegistration("success")
	s.logger.Info("credential registered", "identifier", NormalizeIdentifier(identifier))
	return token, nil
}

// Login verifies the password and issues a session. Locked accounts are
// rejected before verification; failures feed the lockout guard. Unknown
// identifiers and wrong passwords are indistinguishable in the returned
// error.
func (s *Service) Login(ctx context.Context, identifier, password string) (string, error) {
	remaining, err := s.guard.CheckLocked(ctx, identifier)
	if err != nil {
		return "", err
	}
	if remaining > 0 {
		observability.RecordLoginAttempt("locked")
		return "", &AccountLockedError{RetryAfter: time.Duration(remaining) * time.Second}
	}

	result, err := s.creds.Verify(ctx, identifier, password)
	if err != nil {
		return "", err
	}
	if result.Degraded {
		observability.RecordDegradedDerivation()
	}

	if !result.OK {
		// Unknown identifiers accrue failures too, so probing an address
		// costs attempts just like guessing a password.
		locked, failErr := s.guard.RecordFailure(ctx, identifier)
		if failErr != nil {
			return "", failErr
		}
		if locked > 0 {
			observability.RecordLockout()
			observability.RecordLoginAttempt("locked")
			return "", &AccountLockedError{RetryAfter: time.Duration(locked) * time.Second}
		}
		observability.RecordLoginAttempt("invalid")
		return "", oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	if err := s.guard.Clear(ctx, identifier); err != nil {
		return "", err
	}

	token, err := s.sessions.Issue(ctx, identifier)
	if err != nil {
		return "", err
	}

	observability.RecordLoginAttempt("success")
	if result.Migrated {
		observability.RecordMigration()
	}
	return token, nil
}

// Logout invalidates the session token. Idempotent.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Invalidate(ctx, token)
}

// CheckStrength scores a candidate password.
func (s *Service) CheckStrength(password string) Strength {
	return EvaluateStrength(password)
}

// Identity resolves a session token to its identifier. Returns ErrNotFound
// for unknown tokens.
func (s *Service) Identity(ctx context.Context, token string) (string, error) {
	return s.sessions.Resolve(ctx, token)
}
