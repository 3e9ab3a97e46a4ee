// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

// brokenStrategy reports itself unavailable, forcing the chain past it.
type brokenStrategy struct{}

func (brokenStrategy) name() string                      { return "broken" }
func (brokenStrategy) degraded() bool                    { return false }
func (brokenStrategy) available() bool                   { return false }
func (brokenStrategy) derive(string, []byte, int) []byte { panic("unreachable") }

func TestDeriver_PrimaryPath(t *testing.T) {
	d := NewDeriver(nil)
	salt := []byte("0123456789abcdef")

	result, err := d.Derive("correct horse", salt, 1000)
	require.NoError(t, err)

	assert.Equal(t, "pbkdf2-sha256", result.Strategy)
	assert.False(t, result.Degraded)

	expected := pbkdf2.Key([]byte("correct horse"), salt, 1000, 32, sha256.New)
	assert.Equal(t, base64.StdEncoding.EncodeToString(expected), result.Secret)
}

func TestDeriver_Deterministic(t *testing.T) {
	d := NewDeriver(nil)
	salt := []byte("0123456789abcdef")

	first, err := d.Derive("hunter2hunter2", salt, 1000)
	require.NoError(t, err)
	second, err := d.Derive("hunter2hunter2", salt, 1000)
	require.NoError(t, err)

	assert.Equal(t, first.Secret, second.Secret)
}

func TestDeriver_SaltChangesSecret(t *testing.T) {
	d := NewDeriver(nil)

	a, err := d.Derive("hunter2hunter2", []byte("aaaaaaaaaaaaaaaa"), 1000)
	require.NoError(t, err)
	b, err := d.Derive("hunter2hunter2", []byte("bbbbbbbbbbbbbbbb"), 1000)
	require.NoError(t, err)

	assert.NotEqual(t, a.Secret, b.Secret)
}

func TestDeriver_DigestFallback(t *testing.T) {
	d := NewDeriver(nil, withChain(brokenStrategy{}, digestStrategy{}))
	salt := []byte("0123456789abcdef")

	result, err := d.Derive("hunter2", salt, 1000)
	require.NoError(t, err)

	assert.Equal(t, "sha256-digest", result.Strategy)
	assert.True(t, result.Degraded, "digest fallback should be flagged degraded")

	payload := "hunter2-" + base64.StdEncoding.EncodeToString(salt)
	digest := sha256.Sum256([]byte(payload))
	assert.Equal(t, base64.StdEncoding.EncodeToString(digest[:]), result.Secret)
}

func TestDeriver_PlainFallbackDisabledByDefault(t *testing.T) {
	d := NewDeriver(nil)

	for _, strategy := range d.chain {
		_, plain := strategy.(plainStrategy)
		assert.False(t, plain, "plain encoding must be opt-in")
	}
}

func TestDeriver_PlainFallback(t *testing.T) {
	d := NewDeriver(nil, withChain(brokenStrategy{}, brokenStrategy{}, plainStrategy{}))
	salt := []byte("0123456789abcdef")

	result, err := d.Derive("hunter2", salt, 1000)
	require.NoError(t, err)

	assert.Equal(t, "plain-encoding", result.Strategy)
	assert.True(t, result.Degraded)

	payload := "hunter2-" + base64.StdEncoding.EncodeToString(salt)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(payload)), result.Secret)
}

func TestDeriver_NoStrategyAvailable(t *testing.T) {
	d := NewDeriver(nil, withChain(brokenStrategy{}))

	_, err := d.Derive("hunter2", []byte("0123456789abcdef"), 1000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoStrategy))
}

func TestWithPlainFallback_AppendsLast(t *testing.T) {
	d := NewDeriver(nil, WithPlainFallback())

	require.Len(t, d.chain, 3)
	_, plain := d.chain[2].(plainStrategy)
	assert.True(t, plain, "plain encoding should be the last resort")
}

func TestNewSalt(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		salt, err := NewSalt()
		require.NoError(t, err)
		assert.Len(t, salt, SaltLength)

		key := string(salt)
		assert.False(t, seen[key], "salts should not repeat")
		seen[key] = true
	}
}
