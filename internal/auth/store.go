// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/protecrescue/rescueauth/internal/kv"
)

// dummySalt is derived against when an identifier has no record, so that a
// login probe for an unknown account costs the same as a wrong password for
// a known one. It is never persisted and never matches anything.
var dummySalt = make([]byte, SaltLength)

// VerifyResult is the outcome of a verification attempt.
type VerifyResult struct {
	// OK is true when the password matched.
	OK bool

	// Migrated is true when this verification migrated a legacy plaintext
	// record to the hashed form.
	Migrated bool

	// Degraded is true when the derivation used a weaker-than-primary
	// strategy. Operator signal, never surfaced to the end user.
	Degraded bool
}

// CredentialStore owns credential records: it creates them, verifies login
// attempts against them, and migrates legacy records on first successful
// verification. It knows nothing about lockout state.
type CredentialStore struct {
	store      kv.Store
	deriver    *Deriver
	iterations int
	clock      func() time.Time
	locks      *keyedMutex
	logger     *slog.Logger
}

// CredentialOption configures a CredentialStore.
type CredentialOption func(*CredentialStore)

// WithIterations overrides the KDF stretch factor for new and migrated
// records.
func WithIterations(iterations int) CredentialOption {
	return func(s *CredentialStore) {
		if iterations > 0 {
			s.iterations = iterations
		}
	}
}

// WithCredentialClock injects a clock. Test hook.
func WithCredentialClock(clock func() time.Time) CredentialOption {
	return func(s *CredentialStore) {
		s.clock = clock
	}
}

// NewCredentialStore creates a CredentialStore over the given store and
// deriver.
func NewCredentialStore(store kv.Store, deriver *Deriver, logger *slog.Logger, opts ...CredentialOption) *CredentialStore {
	s := &CredentialStore{
		store:      store,
		deriver:    deriver,
		iterations: DefaultIterations,
		clock:      time.Now,
		locks:      newKeyedMutex(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Create registers a new credential record. Returns ErrDuplicateIdentifier
// if one already exists. The record is built completely before the single
// Put; a store failure leaves nothing behind.
func (s *CredentialStore) Create(ctx context.Context, identifier, password string) (*CredentialRecord, error) {
	identifier = NormalizeIdentifier(identifier)
	unlock := s.locks.lock(identifier)
	defer unlock()

	_, err := s.load(ctx, identifier)
	if err == nil {
		return nil, oops.Code("AUTH_DUPLICATE_IDENTIFIER").
			With("identifier", identifier).
			Wrap(ErrDuplicateIdentifier)
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}

	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}

	derived, err := s.deriver.Derive(password, salt, s.iterations)
	if err != nil {
		return nil, err
	}
	if derived.Degraded {
		s.logger.Warn("credential created with degraded derivation",
			"identifier", identifier,
			"strategy", derived.Strategy)
	}

	now := s.clock()
	record := &CredentialRecord{
		ID:            ulid.Make(),
		Identifier:    identifier,
		DerivedSecret: derived.Secret,
		Salt:          base64.StdEncoding.EncodeToString(salt),
		Iterations:    s.iterations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// ImportLegacy stores a record in the pre-hashing format: identifier plus
// bare plaintext. Used by operators seeding an old export; Verify migrates
// the record on its first successful login.
func (s *CredentialStore) ImportLegacy(ctx context.Context, identifier, plaintext string) (*CredentialRecord, error) {
	identifier = NormalizeIdentifier(identifier)
	unlock := s.locks.lock(identifier)
	defer unlock()

	_, err := s.load(ctx, identifier)
	if err == nil {
		return nil, oops.Code("AUTH_DUPLICATE_IDENTIFIER").
			With("identifier", identifier).
			Wrap(ErrDuplicateIdentifier)
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}

	now := s.clock()
	record := &CredentialRecord{
		ID:              ulid.Make(),
		Identifier:      identifier,
		LegacyPlaintext: plaintext,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Verify checks a password against the identifier's record.
//
// Unknown identifiers report ok=false exactly like wrong passwords, and
// still pay for a derivation, so neither the result shape nor the response
// time reveals whether an account exists.
//
// A legacy record that matches is migrated in place, once: fresh salt,
// derived secret at the configured iteration count, plaintext cleared. The
// migration write is a single Put; if it fails the attempt fails and the
// record is unchanged.
func (s *CredentialStore) Verify(ctx context.Context, identifier, password string) (VerifyResult, error) {
	identifier = NormalizeIdentifier(identifier)
	unlock := s.locks.lock(identifier)
	defer unlock()

	record, err := s.load(ctx, identifier)
	if errors.Is(err, kv.ErrNotFound) {
		// Burn a derivation against the dummy salt to keep timing flat.
		derived, deriveErr := s.deriver.Derive(password, dummySalt, s.iterations)
		if deriveErr != nil {
			return VerifyResult{}, deriveErr
		}
		return VerifyResult{Degraded: derived.Degraded}, nil
	}
	if err != nil {
		return VerifyResult{}, err
	}

	if record.IsLegacy() {
		return s.verifyLegacy(ctx, record, password)
	}

	salt, err := base64.StdEncoding.DecodeString(record.Salt)
	if err != nil {
		return VerifyResult{}, oops.Code("AUTH_CORRUPT_RECORD").
			With("identifier", identifier).
			Wrap(err)
	}

	iterations := record.Iterations
	if iterations <= 0 {
		iterations = s.iterations
	}

	derived, err := s.deriver.Derive(password, salt, iterations)
	if err != nil {
		return VerifyResult{}, err
	}

	ok := constantTimeEqual(derived.Secret, record.DerivedSecret)
	return VerifyResult{OK: ok, Degraded: derived.Degraded}, nil
}

// verifyLegacy compares against the stored plaintext and, on match, performs
// the one-way, one-time migration to the hashed form.
func (s *CredentialStore) verifyLegacy(ctx context.Context, record *CredentialRecord, password string) (VerifyResult, error) {
	if !constantTimeEqual(password, record.LegacyPlaintext) {
		return VerifyResult{}, nil
	}

	salt, err := NewSalt()
	if err != nil {
		return VerifyResult{}, err
	}

	derived, err := s.deriver.Derive(password, salt, s.iterations)
	if err != nil {
		return VerifyResult{}, err
	}

	record.DerivedSecret = derived.Secret
	record.Salt = base64.StdEncoding.EncodeToString(salt)
	record.Iterations = s.iterations
	record.LegacyPlaintext = ""
	record.UpdatedAt = s.clock()

	if err := s.save(ctx, record); err != nil {
		return VerifyResult{}, err
	}

	s.logger.Info("legacy credential migrated",
		"identifier", record.Identifier,
		"strategy", derived.Strategy)

	return VerifyResult{OK: true, Migrated: true, Degraded: derived.Degraded}, nil
}

// Get returns the record for an identifier, or ErrNotFound.
func (s *CredentialStore) Get(ctx context.Context, identifier string) (*CredentialRecord, error) {
	record, err := s.load(ctx, NormalizeIdentifier(identifier))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, oops.Code("AUTH_CREDENTIAL_NOT_FOUND").Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *CredentialStore) load(ctx context.Context, identifier string) (*CredentialRecord, error) {
	raw, err := s.store.Get(ctx, kv.Credentials, identifier)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, err //nolint:wrapcheck // sentinel passthrough for callers
		}
		return nil, oops.Code("AUTH_CREDENTIAL_READ_FAILED").
			With("identifier", identifier).
			Wrap(err)
	}

	var record CredentialRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, oops.Code("AUTH_CREDENTIAL_DECODE_FAILED").
			With("identifier", identifier).
			Wrap(err)
	}
	return &record, nil
}

func (s *CredentialStore) save(ctx context.Context, record *CredentialRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return oops.Code("AUTH_CREDENTIAL_ENCODE_FAILED").
			With("identifier", record.Identifier).
			Wrap(err)
	}
	if err := s.store.Put(ctx, kv.Credentials, record.Identifier, raw); err != nil {
		return oops.Code("AUTH_CREDENTIAL_WRITE_FAILED").
			With("identifier", record.Identifier).
			Wrap(err)
	}
	return nil
}

// constantTimeEqual compares two canonical secret encodings without
// short-circuiting on the first mismatching byte.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
