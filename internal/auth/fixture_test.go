// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/speakdoc/speakdoc/internal/auth"
	"github.com/speakdoc/speakdoc/internal/auth/mocks"
)

// fixture wires the services to mocks and a controllable clock.
type fixture struct {
	users    *mocks.MockUserRepository
	sessions *mocks.MockSessionRepository
	hasher   *mocks.MockPasswordHasher
	notifier *mocks.MockNotifier
	tx       *mocks.MockTransactor
	issuer   *auth.TokenIssuer
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:    mocks.NewMockUserRepository(t),
		sessions: mocks.NewMockSessionRepository(t),
		hasher:   mocks.NewMockPasswordHasher(t),
		notifier: mocks.NewMockNotifier(t),
		tx:       mocks.NewMockTransactor(t),
		now:      time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	f.issuer = auth.NewTokenIssuer(auth.WithClock(func() time.Time { return f.now }))
	f.tx.On("InTransaction", mock.Anything, mock.Anything).
		Return(func(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }).
		Maybe()
	return f
}

func (f *fixture) deps(t *testing.T) auth.Deps {
	t.Helper()
	links, err := auth.NewLinks("https://speakdoc.test")
	require.NoError(t, err)
	return auth.Deps{
		Users:      f.users,
		Sessions:   f.sessions,
		Transactor: f.tx,
		Hasher:     f.hasher,
		Issuer:     f.issuer,
		Notifier:   f.notifier,
		Links:      links,
	}
}

func (f *fixture) verification(t *testing.T) *auth.VerificationService {
	t.Helper()
	svc, err := auth.NewVerificationService(f.deps(t))
	require.NoError(t, err)
	return svc
}

func (f *fixture) reset(t *testing.T) *auth.PasswordResetService {
	t.Helper()
	svc, err := auth.NewPasswordResetService(f.deps(t))
	require.NoError(t, err)
	return svc
}

func (f *fixture) accounts(t *testing.T) *auth.Service {
	t.Helper()
	svc, err := auth.NewAuthService(f.deps(t), f.verification(t))
	require.NoError(t, err)
	return svc
}

// expectSend records the next message sent to addr.
func (f *fixture) expectSend(addr string, err error) *auth.Message {
	var sent auth.Message
	f.notifier.On("Send", mock.Anything, mock.MatchedBy(func(m auth.Message) bool { return m.To == addr })).
		Run(func(args mock.Arguments) { sent = args.Get(1).(auth.Message) }).
		Return(err).
		Once()
	return &sent
}

// pendingUser is an unconfirmed account holding a challenge for token.
func (f *fixture) pendingUser(token string, expiresAt time.Time) *auth.User {
	return &auth.User{
		ID:           ulid.Make(),
		Name:         "Ann",
		Email:        "ann@example.com",
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		CreatedAt:    f.now.Add(-time.Hour),
		Challenge:    &auth.Challenge{TokenHash: auth.HashToken(token), ExpiresAt: expiresAt},
	}
}

// tokenFrom extracts the token at the end of a notification link.
func tokenFrom(t *testing.T, msg *auth.Message) string {
	t.Helper()
	require.NotEmpty(t, msg.Body, "no message was sent")
	return msg.Body[strings.LastIndex(msg.Body, "/")+1:]
}

// recorder collects account events as "kind:label" strings.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Signup()                             { r.add("signup") }
func (r *recorder) Login(outcome string)                { r.add("login:" + outcome) }
func (r *recorder) ChallengeIssued(p string)            { r.add("issued:" + p) }
func (r *recorder) ChallengeResolved(p, outcome string) { r.add("resolved:" + p + ":" + outcome) }
func (r *recorder) NotificationFailed(p string)         { r.add("notify_failed:" + p) }
