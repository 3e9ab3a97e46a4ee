// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package auth

import "unicode"

// Strength levels.
const (
	StrengthWeak   = 1
	StrengthMedium = 2
	StrengthStrong = 3
)

// MinAcceptedLevel is the lowest strength level the policy accepts at
// registration.
const MinAcceptedLevel = StrengthMedium

// Strength is the computed strength of a candidate password.
type Strength struct {
	Level int    `json:"level"`
	Label string `json:"label"`
}

// EvaluateStrength scores a password against five boolean rules: length of
// at least 8, mixed upper and lower case, a digit, a symbol, and length of
// at least 12. Level is ceil(score/2) clamped to 1..3.
//
// This is a coarse heuristic, not entropy estimation. It catches the worst
// candidates and nothing more.
func EvaluateStrength(password string) Strength {
	runes := []rune(password)

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range runes {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	rules := []bool{
		len(runes) >= 8,
		hasUpper && hasLower,
		hasDigit,
		hasSymbol,
		len(runes) >= 12,
	}

	score := 0
	for _, ok := range rules {
		if ok {
			score++
		}
	}

	level := (score + 1) / 2 // ceil(score/2)
	if level < StrengthWeak {
		level = StrengthWeak
	}
	if level > StrengthStrong {
		level = StrengthStrong
	}

	return Strength{Level: level, Label: strengthLabel(level)}
}

// AcceptPassword reports whether the password meets the policy threshold.
func AcceptPassword(password string) bool {
	return EvaluateStrength(password).Level >= MinAcceptedLevel
}

func strengthLabel(level int) string {
	switch level {
	case StrengthWeak:
		return "weak"
	case StrengthMedium:
		return "medium"
	default:
		return "strong"
	}
}
