// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters.
const (
	// DefaultIterations is the PBKDF2 stretch factor used for new and
	// migrated credentials.
	DefaultIterations = 200000

	// SaltLength is the per-record salt length in bytes.
	SaltLength = 16

	// derivedKeyLength is the PBKDF2 output length in bytes (256-bit).
	derivedKeyLength = 32
)

// kdfStrategy is one step of the derivation fallback chain. Strategies are
// tried in order; the first available one wins.
type kdfStrategy interface {
	// name identifies the strategy in logs and derivation results.
	name() string

	// degraded reports whether the strategy is weaker than the primary KDF.
	degraded() bool

	// available reports whether the host environment supports the strategy.
	available() bool

	// derive computes the secret for (password, salt, iterations).
	derive(password string, salt []byte, iterations int) []byte
}

// pbkdf2Strategy is the primary path: PBKDF2-HMAC-SHA256 with iterated
// stretching and a 256-bit output.
type pbkdf2Strategy struct{}

func (pbkdf2Strategy) name() string    { return "pbkdf2-sha256" }
func (pbkdf2Strategy) degraded() bool  { return false }
func (pbkdf2Strategy) available() bool { return true }

func (pbkdf2Strategy) derive(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, derivedKeyLength, sha256.New)
}

// digestStrategy is the first fallback: a single SHA-256 digest over
// password || "-" || base64(salt). No iterated stretching, so offline brute
// force is cheaper than against the primary path.
type digestStrategy struct{}

func (digestStrategy) name() string    { return "sha256-digest" }
func (digestStrategy) degraded() bool  { return true }
func (digestStrategy) available() bool { return true }

func (digestStrategy) derive(password string, salt []byte, _ int) []byte {
	digest := sha256.Sum256(fallbackPayload(password, salt))
	return digest[:]
}

// plainStrategy is the last resort: a reversible encoding with no
// cryptographic property at all. It exists so the system stays functional in
// a crippled host environment, never so it stays secure, and must be enabled
// explicitly by configuration.
type plainStrategy struct{}

func (plainStrategy) name() string    { return "plain-encoding" }
func (plainStrategy) degraded() bool  { return true }
func (plainStrategy) available() bool { return true }

func (plainStrategy) derive(password string, salt []byte, _ int) []byte {
	return fallbackPayload(password, salt)
}

func fallbackPayload(password string, salt []byte) []byte {
	return []byte(password + "-" + base64.StdEncoding.EncodeToString(salt))
}

// Derivation is the outcome of one derive call. Secret is the canonical
// base64 form under which secrets are stored and compared.
type Derivation struct {
	Secret   string
	Strategy string
	Degraded bool
}

// Deriver turns (password, salt, iterations) into a derived secret through
// an ordered strategy chain. Derivation is deterministic for fixed inputs
// and a fixed chain.
type Deriver struct {
	chain  []kdfStrategy
	logger *slog.Logger
}

// DeriverOption configures a Deriver.
type DeriverOption func(*Deriver)

// WithPlainFallback appends the last-resort reversible encoding to the
// chain. Off by default; silent degradation to a non-cryptographic encoding
// is an operator decision, not a built-in.
func WithPlainFallback() DeriverOption {
	return func(d *Deriver) {
		d.chain = append(d.chain, plainStrategy{})
	}
}

// withChain replaces the whole chain. Test hook.
func withChain(chain ...kdfStrategy) DeriverOption {
	return func(d *Deriver) {
		d.chain = chain
	}
}

// NewDeriver creates a Deriver with the standard chain: PBKDF2-HMAC-SHA256,
// then the unstretched digest fallback.
func NewDeriver(logger *slog.Logger, opts ...DeriverOption) *Deriver {
	d := &Deriver{
		chain:  []kdfStrategy{pbkdf2Strategy{}, digestStrategy{}},
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Derive computes the secret for (password, salt, iterations) using the
// first available strategy. A degraded strategy succeeds but is logged so
// operators see the reduced security, not the end user.
func (d *Deriver) Derive(password string, salt []byte, iterations int) (Derivation, error) {
	for _, strategy := range d.chain {
		if !strategy.available() {
			continue
		}

		secret := strategy.derive(password, salt, iterations)
		result := Derivation{
			Secret:   base64.StdEncoding.EncodeToString(secret),
			Strategy: strategy.name(),
			Degraded: strategy.degraded(),
		}

		if result.Degraded {
			if _, plain := strategy.(plainStrategy); plain {
				// The reversible encoding provides no secrecy at all. Flag it
				// louder than the digest fallback.
				d.logger.Error("degraded key derivation", "strategy", result.Strategy)
			} else {
				d.logger.Warn("degraded key derivation", "strategy", result.Strategy)
			}
		}

		return result, nil
	}

	return Derivation{}, oops.Code("AUTH_NO_KDF").Wrap(ErrNoStrategy)
}

// NewSalt returns a fresh random salt. Salts are never reused across records
// or across rehashes of the same record.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}
	return salt, nil
}
