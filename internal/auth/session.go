// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/protecrescue/rescueauth/internal/kv"
)

// SessionTokenBytes is the entropy of an issued token (hex-encoded to twice
// this many characters).
const SessionTokenBytes = 32

// SessionHandle maps an issued token to an identifier. Only the SHA-256
// hash of the token is persisted; the plaintext token exists once, in the
// response to the caller. The core does not expire sessions by time; that is
// the transport layer's concern.
type SessionHandle struct {
	ID         ulid.ULID `json:"id"`
	Identifier string    `json:"identifier"`
	TokenHash  string    `json:"token_hash"`
	IssuedAt   time.Time `json:"issued_at"`
}

// SessionIssuer creates and destroys session handles.
type SessionIssuer struct {
	store kv.Store
	clock func() time.Time
}

// NewSessionIssuer creates a SessionIssuer over the given store.
func NewSessionIssuer(store kv.Store) *SessionIssuer {
	return &SessionIssuer{store: store, clock: time.Now}
}

// Issue creates a session for the identifier and returns the plaintext
// token.
func (s *SessionIssuer) Issue(ctx context.Context, identifier string) (string, error) {
	token, hash, err := generateSessionToken()
	if err != nil {
		return "", err
	}

	handle := SessionHandle{
		ID:         ulid.Make(),
		Identifier: NormalizeIdentifier(identifier),
		TokenHash:  hash,
		IssuedAt:   s.clock(),
	}

	raw, err := json.Marshal(handle)
	if err != nil {
		return "", oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}
	if err := s.store.Put(ctx, kv.Sessions, hash, raw); err != nil {
		return "", oops.Code("SESSION_WRITE_FAILED").Wrap(err)
	}

	return token, nil
}

// Resolve answers "does this token currently map to an identifier".
// Returns ErrNotFound for unknown tokens.
func (s *SessionIssuer) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", oops.Code("SESSION_TOKEN_EMPTY").Wrap(ErrNotFound)
	}

	raw, err := s.store.Get(ctx, kv.Sessions, hashSessionToken(token))
	if errors.Is(err, kv.ErrNotFound) {
		return "", oops.Code("SESSION_NOT_FOUND").Wrap(ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("SESSION_READ_FAILED").Wrap(err)
	}

	var handle SessionHandle
	if err := json.Unmarshal(raw, &handle); err != nil {
		return "", oops.Code("SESSION_DECODE_FAILED").Wrap(err)
	}
	return handle.Identifier, nil
}

// Invalidate destroys the session for the token. Idempotent: invalidating
// an unknown token is not an error.
func (s *SessionIssuer) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.Delete(ctx, kv.Sessions, hashSessionToken(token)); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	return nil
}

// generateSessionToken creates a random token and its storage hash.
func generateSessionToken() (token, hash string, err error) {
	buf := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_FAILED").
			With("operation", "crypto/rand.Read").
			Wrap(err)
	}
	token = hex.EncodeToString(buf)
	return token, hashSessionToken(token), nil
}

// hashSessionToken computes the storage key for a token.
func hashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
