// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package auth

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// CredentialRecord is the durable secret artifact for one identifier.
//
// Exactly one of DerivedSecret or LegacyPlaintext is meaningful at any time:
// a record carrying DerivedSecret never retains LegacyPlaintext. Salt is
// unique per record and per rehash; Iterations is never silently lowered.
type CredentialRecord struct {
	ID              ulid.ULID `json:"id"`
	Identifier      string    `json:"identifier"`
	DerivedSecret   string    `json:"derived_secret,omitempty"`
	Salt            string    `json:"salt,omitempty"`
	Iterations      int       `json:"iterations,omitempty"`
	LegacyPlaintext string    `json:"legacy_plaintext,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsLegacy reports whether the record still stores an unhashed password and
// is awaiting migration.
func (r *CredentialRecord) IsLegacy() bool {
	return r.DerivedSecret == "" && r.LegacyPlaintext != ""
}

// NormalizeIdentifier canonicalizes an email or username for use as a store
// key. Lookup, lockout and session state all join on the normalized form.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
