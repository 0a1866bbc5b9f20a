// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenBytes  = 32             // 32 bytes = 64 hex chars
	SessionTokenExpiry = 24 * time.Hour // 24 hour expiry
)

// Session is a login, or the remains of a failed one when UserID is zero. The
// plaintext token lives in the client cookie; only its hash is stored.
type Session struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	// PendingResetEmail is the email captured by the last login attempt,
	// consumed by a later password reset request from the same session.
	PendingResetEmail string
	UserAgent         string
	IPAddress         string
	ExpiresAt         time.Time
	CreatedAt         time.Time
	LastSeenAt        time.Time
}

// NewSession creates a validated Session.
// UserAgent and IPAddress are optional and may be empty.
func NewSession(userID ulid.ULID, tokenHash, pendingResetEmail, userAgent, ipAddress string, now, expiresAt time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	return newSession(userID, tokenHash, pendingResetEmail, userAgent, ipAddress, now, expiresAt)
}

// NewAnonymousSession creates a session with no user behind it. It exists to
// carry the email of a failed login attempt, which may be empty.
func NewAnonymousSession(tokenHash, pendingResetEmail, userAgent, ipAddress string, now, expiresAt time.Time) (*Session, error) {
	return newSession(ulid.ULID{}, tokenHash, pendingResetEmail, userAgent, ipAddress, now, expiresAt)
}

func newSession(userID ulid.ULID, tokenHash, pendingResetEmail, userAgent, ipAddress string, now, expiresAt time.Time) (*Session, error) {
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() || !expiresAt.After(now) {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry must be after creation time")
	}

	now = now.UTC()
	return &Session{
		ID:                ulid.Make(),
		UserID:            userID,
		TokenHash:         tokenHash,
		PendingResetEmail: pendingResetEmail,
		UserAgent:         userAgent,
		IPAddress:         ipAddress,
		ExpiresAt:         expiresAt.UTC(),
		CreatedAt:         now,
		LastSeenAt:        now,
	}, nil
}

// Anonymous reports whether no user is logged in through the session.
func (s *Session) Anonymous() bool {
	return s.UserID.Compare(ulid.ULID{}) == 0
}

// IsExpiredAt returns true if the session would be expired at the given time.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.UTC().After(s.ExpiresAt.UTC())
}

// GenerateSessionToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
func GenerateSessionToken() (token, hash string, err error) {
	tokenBytes := make([]byte, SessionTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	return token, HashToken(token), nil
}

// SessionRepository manages session persistence.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// SetPendingResetEmail replaces the email a later reset request will use.
	// Returns ErrNotFound if the session does not exist.
	SetPendingResetEmail(ctx context.Context, id ulid.ULID, email string) error

	// UpdateLastSeen updates the LastSeenAt timestamp for a session.
	UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error

	// Delete removes a session by ID. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteExpired removes sessions expired at now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
