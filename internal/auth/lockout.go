// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/samber/oops"

	"github.com/protecrescue/rescueauth/internal/kv"
)

// Lockout defaults.
const (
	// DefaultLockThreshold is the number of failures that triggers a lockout.
	DefaultLockThreshold = 3

	// DefaultLockDuration is the length of the lockout window.
	DefaultLockDuration = 30 * time.Second
)

// LockoutRecord tracks failed attempts for one identifier. Ephemeral: it is
// created on first failure, deleted on success or lock expiry.
//
// FailureCount measures failures since the last lock or success, never
// cumulative lifetime failures: it resets to zero whenever LockedUntil is
// set and whenever a successful verification clears the record.
type LockoutRecord struct {
	FailureCount int        `json:"failure_count"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
}

// LockoutGuard gates repeated failed attempts per identifier. States per
// identifier: open (no record, or expired lock), warning (1..threshold-1
// failures), locked (LockedUntil in the future).
type LockoutGuard struct {
	store     kv.Store
	threshold int
	duration  time.Duration
	clock     func() time.Time
	locks     *keyedMutex
}

// LockoutOption configures a LockoutGuard.
type LockoutOption func(*LockoutGuard)

// WithLockThreshold overrides the failure threshold.
func WithLockThreshold(threshold int) LockoutOption {
	return func(g *LockoutGuard) {
		if threshold > 0 {
			g.threshold = threshold
		}
	}
}

// WithLockDuration overrides the lockout window length.
func WithLockDuration(d time.Duration) LockoutOption {
	return func(g *LockoutGuard) {
		if d > 0 {
			g.duration = d
		}
	}
}

// WithLockoutClock injects a clock. Test hook.
func WithLockoutClock(clock func() time.Time) LockoutOption {
	return func(g *LockoutGuard) {
		g.clock = clock
	}
}

// NewLockoutGuard creates a LockoutGuard over the given store.
func NewLockoutGuard(store kv.Store, opts ...LockoutOption) *LockoutGuard {
	g := &LockoutGuard{
		store:     store,
		threshold: DefaultLockThreshold,
		duration:  DefaultLockDuration,
		clock:     time.Now,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckLocked returns the remaining lockout in whole seconds (rounded up),
// or 0 when the identifier is open. A record whose lock has expired is
// deleted on read; there is no background sweep.
func (g *LockoutGuard) CheckLocked(ctx context.Context, identifier string) (int, error) {
	identifier = NormalizeIdentifier(identifier)
	unlock := g.locks.lock(identifier)
	defer unlock()

	record, err := g.load(ctx, identifier)
	if err != nil {
		return 0, err
	}
	if record == nil || record.LockedUntil == nil {
		return 0, nil
	}

	now := g.clock()
	if !record.LockedUntil.After(now) {
		// Expired lock reads as open. Deletion is idempotent, so a
		// concurrent reader observing the same expiry is harmless.
		if err := g.store.Delete(ctx, kv.Lockouts, identifier); err != nil {
			return 0, oops.Code("LOCKOUT_EXPIRE_FAILED").
				With("identifier", identifier).
				Wrap(err)
		}
		return 0, nil
	}

	return ceilSeconds(record.LockedUntil.Sub(now)), nil
}

// RecordFailure registers a failed attempt. When the count reaches the
// threshold the identifier transitions to locked and the counter resets, so
// "three strikes" is exact: the state space is {0..threshold-1, locked}.
// Returns the remaining lockout in seconds if this failure locked the
// identifier, 0 otherwise.
func (g *LockoutGuard) RecordFailure(ctx context.Context, identifier string) (int, error) {
	identifier = NormalizeIdentifier(identifier)
	unlock := g.locks.lock(identifier)
	defer unlock()

	record, err := g.load(ctx, identifier)
	if err != nil {
		return 0, err
	}
	if record == nil {
		record = &LockoutRecord{}
	}

	record.FailureCount++

	locked := 0
	if record.FailureCount >= g.threshold {
		until := g.clock().Add(g.duration)
		record.LockedUntil = &until
		record.FailureCount = 0
		locked = ceilSeconds(g.duration)
	}

	if err := g.save(ctx, identifier, record); err != nil {
		return 0, err
	}
	return locked, nil
}

// Clear removes all failure state for the identifier. Called on successful
// verification.
func (g *LockoutGuard) Clear(ctx context.Context, identifier string) error {
	identifier = NormalizeIdentifier(identifier)
	unlock := g.locks.lock(identifier)
	defer unlock()

	if err := g.store.Delete(ctx, kv.Lockouts, identifier); err != nil {
		return oops.Code("LOCKOUT_CLEAR_FAILED").
			With("identifier", identifier).
			Wrap(err)
	}
	return nil
}

func (g *LockoutGuard) load(ctx context.Context, identifier string) (*LockoutRecord, error) {
	raw, err := g.store.Get(ctx, kv.Lockouts, identifier)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("LOCKOUT_READ_FAILED").
			With("identifier", identifier).
			Wrap(err)
	}

	var record LockoutRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, oops.Code("LOCKOUT_DECODE_FAILED").
			With("identifier", identifier).
			Wrap(err)
	}
	return &record, nil
}

func (g *LockoutGuard) save(ctx context.Context, identifier string, record *LockoutRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return oops.Code("LOCKOUT_ENCODE_FAILED").
			With("identifier", identifier).
			Wrap(err)
	}
	if err := g.store.Put(ctx, kv.Lockouts, identifier, raw); err != nil {
		return oops.Code("LOCKOUT_WRITE_FAILED").
			With("identifier", identifier).
			Wrap(err)
	}
	return nil
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
