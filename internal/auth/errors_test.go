// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccountLockedError_SecondsRoundsUp(t *testing.T) {
	tests := []struct {
		retryAfter time.Duration
		seconds    int
	}{
		{30 * time.Second, 30},
		{29500 * time.Millisecond, 30},
		{500 * time.Millisecond, 1},
		{0, 0},
	}

	for _, tt := range tests {
		err := &AccountLockedError{RetryAfter: tt.retryAfter}
		assert.Equal(t, tt.seconds, err.Seconds(), "retry after %v", tt.retryAfter)
	}
}

func TestWeakPasswordError_Message(t *testing.T) {
	err := &WeakPasswordError{Strength: Strength{Level: 1, Label: "weak"}}
	assert.Contains(t, err.Error(), "weak")
}
