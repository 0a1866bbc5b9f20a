// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/samber/oops"
)

// Challenge token configuration.
const (
	ChallengeTokenBytes = 32        // 32 bytes = 64 hex chars
	ChallengeTokenTTL   = time.Hour // validity window
)

// TokenIssuer generates challenge tokens. It is also the clock every flow
// uses, so expiry decisions and issued expiries agree.
type TokenIssuer struct {
	ttl     time.Duration
	now     func() time.Time
	entropy io.Reader
}

// TokenIssuerOption configures a TokenIssuer.
type TokenIssuerOption func(*TokenIssuer)

// WithTokenTTL overrides the challenge validity window.
func WithTokenTTL(ttl time.Duration) TokenIssuerOption {
	return func(i *TokenIssuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenIssuerOption {
	return func(i *TokenIssuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithEntropy overrides the random source. Tests only.
func WithEntropy(r io.Reader) TokenIssuerOption {
	return func(i *TokenIssuer) {
		if r != nil {
			i.entropy = r
		}
	}
}

// NewTokenIssuer creates a TokenIssuer backed by crypto/rand and the wall clock.
func NewTokenIssuer(opts ...TokenIssuerOption) *TokenIssuer {
	i := &TokenIssuer{
		ttl:     ChallengeTokenTTL,
		now:     time.Now,
		entropy: rand.Reader,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Now returns the current time in UTC.
func (i *TokenIssuer) Now() time.Time {
	return i.now().UTC()
}

// TTL returns the challenge validity window.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a fresh token and the challenge that stores it.
// Returns (plaintext_token, challenge, error).
func (i *TokenIssuer) Issue() (string, *Challenge, error) {
	token, hash, err := i.generate()
	if err != nil {
		return "", nil, oops.Code("CHALLENGE_GENERATE_FAILED").Wrap(err)
	}
	return token, &Challenge{
		TokenHash: hash,
		ExpiresAt: i.Now().Add(i.ttl),
	}, nil
}

func (i *TokenIssuer) generate() (token, hash string, err error) {
	tokenBytes := make([]byte, ChallengeTokenBytes)
	if _, err = io.ReadFull(i.entropy, tokenBytes); err != nil {
		return "", "", oops.With("requested_bytes", ChallengeTokenBytes).Wrap(err)
	}
	token = hex.EncodeToString(tokenBytes)
	return token, HashToken(token), nil
}

// HashToken computes the SHA-256 hex digest under which a token is stored.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

