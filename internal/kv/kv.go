// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

// Package kv defines the key-value persistence boundary the credential core
// reads and writes through, plus the available drivers (memory, redis,
// postgres). Records are opaque serialized bytes; the wire encoding is the
// host's choice and the core always uses JSON.
package kv

import (
	"context"
	"errors"
)

// Collection names a logical record namespace.
type Collection string

// Collections used by the credential core.
const (
	Credentials Collection = "credentials"
	Lockouts    Collection = "lockouts"
	Sessions    Collection = "sessions"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// Store is the narrow contract the credential core requires from its host.
//
// Delete is idempotent: deleting an absent key is not an error. This matters
// for lazy lockout expiry, where concurrent readers may both treat an expired
// record as the deletion trigger.
type Store interface {
	// Get returns the record stored under (collection, key), or ErrNotFound.
	Get(ctx context.Context, collection Collection, key string) ([]byte, error)

	// Put stores the record under (collection, key), replacing any previous
	// record atomically.
	Put(ctx context.Context, collection Collection, key string, record []byte) error

	// Delete removes the record under (collection, key) if present.
	Delete(ctx context.Context, collection Collection, key string) error

	// Close releases driver resources.
	Close() error
}
