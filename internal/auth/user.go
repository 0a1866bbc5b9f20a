// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Challenge is a pending single-use token. Only the SHA-256 hex of the token
// is kept; the plaintext leaves the process in the notification.
type Challenge struct {
	TokenHash string
	ExpiresAt time.Time
}

// ExpiredAt reports whether the challenge is past its validity window at now.
// A challenge resolved exactly at ExpiresAt is still valid.
func (c *Challenge) ExpiredAt(now time.Time) bool {
	return now.UTC().After(c.ExpiresAt.UTC())
}

// User is a registered account.
//
// Challenge is nil when nothing is pending, which keeps the token and its
// expiry set or cleared together.
type User struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	Confirmed    bool
	ConfirmedAt  *time.Time
	Challenge    *Challenge
}

// NewUser creates an unconfirmed user holding its first verification challenge.
func NewUser(name, email, passwordHash string, challenge *Challenge, now time.Time) (*User, error) {
	if name == "" {
		return nil, oops.Code("USER_INVALID_NAME").Errorf("name cannot be empty")
	}
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if challenge == nil || challenge.TokenHash == "" || challenge.ExpiresAt.IsZero() {
		return nil, oops.Code("USER_INVALID_CHALLENGE").Errorf("new users require a verification challenge")
	}

	return &User{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now.UTC(),
		Challenge: &Challenge{
			TokenHash: challenge.TokenHash,
			ExpiresAt: challenge.ExpiresAt.UTC(),
		},
	}, nil
}

// ChallengeExpired reports whether the pending challenge has lapsed at now.
// Returns false when no challenge is pending.
func (u *User) ChallengeExpired(now time.Time) bool {
	return u.Challenge != nil && u.Challenge.ExpiredAt(now)
}

// SetChallenge replaces any pending challenge.
func (u *User) SetChallenge(c *Challenge) {
	u.Challenge = c
}

// Confirm marks the account verified and consumes the challenge.
// ConfirmedAt is only ever set once.
func (u *User) Confirm(now time.Time) {
	if !u.Confirmed {
		confirmedAt := now.UTC()
		u.Confirmed = true
		u.ConfirmedAt = &confirmedAt
	}
	u.Challenge = nil
}

// ReplacePassword installs a new credential digest and consumes the challenge.
func (u *User) ReplacePassword(passwordHash string) {
	u.PasswordHash = passwordHash
	u.Challenge = nil
}

// UserRepository persists users.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicateEmail when the email,
	// compared case-insensitively, is already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email, case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByChallenge retrieves the user holding the challenge with the given
	// token hash. Inside a transaction the row is locked until commit.
	GetByChallenge(ctx context.Context, tokenHash string) (*User, error)

	// Save persists every mutable field of the user in one statement.
	Save(ctx context.Context, user *User) error
}

// Transactor runs fn inside a store transaction. Repository calls made with
// the context passed to fn join the transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
