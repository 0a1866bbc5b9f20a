// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package httpapi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/speakdoc/speakdoc/internal/auth"
)

// memStore backs the real services in handler flow tests.
type memStore struct {
	mu       sync.Mutex
	users    map[ulid.ULID]auth.User
	sessions map[ulid.ULID]auth.Session
	sent     []auth.Message
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[ulid.ULID]auth.User),
		sessions: make(map[ulid.ULID]auth.Session),
	}
}

type memUsers struct{ *memStore }

func (m memUsers) Create(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrDuplicateEmail
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m memUsers) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (m memUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m memUsers) GetByChallenge(_ context.Context, tokenHash string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Challenge != nil && u.Challenge.TokenHash == tokenHash {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m memUsers) Save(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	m.users[u.ID] = *u
	return nil
}

type memSessions struct{ *memStore }

func (m memSessions) Create(_ context.Context, s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m memSessions) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash {
			return &s, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m memSessions) SetPendingResetEmail(_ context.Context, id ulid.ULID, email string) error {
	return m.update(id, func(s *auth.Session) { s.PendingResetEmail = email })
}

func (m memSessions) UpdateLastSeen(_ context.Context, id ulid.ULID, lastSeen time.Time) error {
	return m.update(id, func(s *auth.Session) { s.LastSeenAt = lastSeen })
}

func (m memSessions) update(id ulid.ULID, fn func(*auth.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	fn(&s)
	m.sessions[id] = s
	return nil
}

func (m memSessions) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.IsExpiredAt(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// InTransaction runs fn directly; the tests drive one request at a time.
func (m *memStore) InTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (m *memStore) Send(_ context.Context, msg auth.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *memStore) mail() []auth.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]auth.Message(nil), m.sent...)
}
