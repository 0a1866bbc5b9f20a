// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth

import "github.com/oklog/ulid/v2"

// Identity is an authenticated caller.
type Identity interface {
	ID() ulid.ULID
}

// SessionIdentity is the Identity established by a login session.
type SessionIdentity struct {
	userID            ulid.ULID
	sessionID         ulid.ULID
	pendingResetEmail string
}

// NewSessionIdentity binds an identity to a stored session.
func NewSessionIdentity(s *Session) *SessionIdentity {
	return &SessionIdentity{
		userID:            s.UserID,
		sessionID:         s.ID,
		pendingResetEmail: s.PendingResetEmail,
	}
}

// ID returns the authenticated user's ID, zero for an anonymous session.
func (i *SessionIdentity) ID() ulid.ULID { return i.userID }

// Authenticated reports whether a user is logged in through the session.
func (i *SessionIdentity) Authenticated() bool { return i.userID.Compare(ulid.ULID{}) != 0 }

// SessionID returns the backing session.
func (i *SessionIdentity) SessionID() ulid.ULID { return i.sessionID }

// PendingResetEmail returns the email captured by the last login attempt.
func (i *SessionIdentity) PendingResetEmail() string { return i.pendingResetEmail }
