// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/speakdoc/speakdoc/internal/auth"
	"github.com/speakdoc/speakdoc/internal/auth/mocks"
	"github.com/speakdoc/speakdoc/pkg/errutil"
)

func TestNewVerificationService_NilDependencies(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name        string
		mutate      func(*auth.Deps)
		expectError string
	}{
		{"nil users", func(d *auth.Deps) { d.Users = nil }, "users repository is required"},
		{"nil transactor", func(d *auth.Deps) { d.Transactor = nil }, "transactor is required"},
		{"nil issuer", func(d *auth.Deps) { d.Issuer = nil }, "token issuer is required"},
		{"nil notifier", func(d *auth.Deps) { d.Notifier = nil }, "notifier is required"},
		{"nil links", func(d *auth.Deps) { d.Links = nil }, "links is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := f.deps(t)
			tt.mutate(&deps)
			svc, err := auth.NewVerificationService(deps)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
			errutil.AssertErrorCode(t, err, "SERVICE_MISCONFIGURED")
		})
	}
}

func TestVerificationService_StartOnSignup(t *testing.T) {
	ctx := context.Background()

	t.Run("creates unconfirmed user and sends link", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)

		var created *auth.User
		f.users.On("Create", mock.Anything, mock.AnythingOfType("*auth.User")).
			Run(func(args mock.Arguments) { created = args.Get(1).(*auth.User) }).
			Return(nil)
		sent := f.expectSend("ann@example.com", nil)

		user, err := svc.StartOnSignup(ctx, "Ann", "ann@example.com", "hash")
		require.NoError(t, err)
		assert.Same(t, created, user)
		assert.False(t, user.Confirmed)
		require.NotNil(t, user.Challenge)
		assert.True(t, user.Challenge.ExpiresAt.Equal(f.now.Add(time.Hour)))

		assert.Equal(t, "Verify Your Email", sent.Subject)
		token := tokenFrom(t, sent)
		assert.Len(t, token, 64)
		assert.Equal(t, auth.HashToken(token), user.Challenge.TokenHash)
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)

		f.users.On("Create", mock.Anything, mock.Anything).
			Return(oops.Code("USER_EMAIL_EXISTS").Wrap(auth.ErrDuplicateEmail))

		user, err := svc.StartOnSignup(ctx, "Ann", "ann@example.com", "hash")
		require.Error(t, err)
		assert.Nil(t, user)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, "ACCOUNT_EMAIL_TAKEN")
		f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("storage failure", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)

		f.users.On("Create", mock.Anything, mock.Anything).Return(auth.ErrStorage)

		_, err := svc.StartOnSignup(ctx, "Ann", "ann@example.com", "hash")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrStorage)
		errutil.AssertErrorCode(t, err, "SIGNUP_FAILED")
	})

	t.Run("notification failure does not fail signup", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)

		f.users.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.expectSend("ann@example.com", errors.New("smtp down"))

		user, err := svc.StartOnSignup(ctx, "Ann", "ann@example.com", "hash")
		require.NoError(t, err)
		assert.NotNil(t, user)
	})
}

func TestVerificationService_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("confirms pending account", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)
		user := f.pendingUser("tok", f.now.Add(time.Minute))

		f.users.On("GetByChallenge", mock.Anything, auth.HashToken("tok")).Return(user, nil)
		f.users.On("Save", mock.Anything, user).Return(nil)

		outcome, err := svc.Resolve(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, auth.VerificationConfirmed, outcome)
		assert.Equal(t, "login", outcome.Action())
		assert.True(t, user.Confirmed)
		require.NotNil(t, user.ConfirmedAt)
		assert.True(t, user.ConfirmedAt.Equal(f.now))
		assert.Nil(t, user.Challenge, "token is single use")
	})

	t.Run("token valid at the exact expiry instant", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)
		user := f.pendingUser("tok", f.now)

		f.users.On("GetByChallenge", mock.Anything, auth.HashToken("tok")).Return(user, nil)
		f.users.On("Save", mock.Anything, user).Return(nil)

		outcome, err := svc.Resolve(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, auth.VerificationConfirmed, outcome)
	})

	t.Run("expired token leaves record untouched", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)
		user := f.pendingUser("tok", f.now.Add(-time.Second))

		f.users.On("GetByChallenge", mock.Anything, auth.HashToken("tok")).Return(user, nil)

		outcome, err := svc.Resolve(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, auth.VerificationExpired, outcome)
		assert.Equal(t, "verify", outcome.Action())
		assert.False(t, user.Confirmed)
		assert.NotNil(t, user.Challenge)
		f.users.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("already confirmed wins over expiry", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)
		user := f.pendingUser("tok", f.now.Add(-time.Hour))
		user.Confirmed = true

		f.users.On("GetByChallenge", mock.Anything, auth.HashToken("tok")).Return(user, nil)

		outcome, err := svc.Resolve(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, auth.VerificationAlreadyConfirmed, outcome)
		assert.Equal(t, "login", outcome.Action())
		f.users.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)

		f.users.On("GetByChallenge", mock.Anything, auth.HashToken("nope")).
			Return(nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound))

		_, err := svc.Resolve(ctx, "nope")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrTokenNotFound)
		errutil.AssertErrorCode(t, err, "TOKEN_NOT_FOUND")
	})

	t.Run("empty token never reaches the store", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)

		_, err := svc.Resolve(ctx, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrTokenNotFound)
	})

	t.Run("storage failure on save", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)
		user := f.pendingUser("tok", f.now.Add(time.Minute))

		f.users.On("GetByChallenge", mock.Anything, mock.Anything).Return(user, nil)
		f.users.On("Save", mock.Anything, user).Return(auth.ErrStorage)

		_, err := svc.Resolve(ctx, "tok")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrStorage)
		errutil.AssertErrorCode(t, err, "VERIFY_FAILED")
	})

	t.Run("runs inside a transaction", func(t *testing.T) {
		f := newFixture(t)
		tx := mocks.NewMockTransactor(t)
		tx.On("InTransaction", mock.Anything, mock.Anything).Return(errors.New("begin failed"))
		deps := f.deps(t)
		deps.Transactor = tx
		svc, err := auth.NewVerificationService(deps)
		require.NoError(t, err)

		_, err = svc.Resolve(ctx, "tok")
		require.Error(t, err)
		f.users.AssertNotCalled(t, "GetByChallenge", mock.Anything, mock.Anything)
	})
}

func TestVerificationService_Resend(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the pending challenge", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)
		user := f.pendingUser("old", f.now.Add(-time.Hour))
		session := &auth.Session{ID: ulid.Make(), UserID: user.ID}

		f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
		f.users.On("Save", mock.Anything, user).Return(nil)
		sent := f.expectSend(user.Email, nil)

		require.NoError(t, svc.Resend(ctx, auth.NewSessionIdentity(session)))

		token := tokenFrom(t, sent)
		require.NotNil(t, user.Challenge)
		assert.Equal(t, auth.HashToken(token), user.Challenge.TokenHash)
		assert.NotEqual(t, auth.HashToken("old"), user.Challenge.TokenHash)
		assert.True(t, user.Challenge.ExpiresAt.Equal(f.now.Add(time.Hour)))
	})

	t.Run("confirmed account", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)
		user := f.pendingUser("old", f.now)
		user.Confirm(f.now)

		f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

		err := svc.Resend(ctx, auth.NewSessionIdentity(&auth.Session{ID: ulid.Make(), UserID: user.ID}))
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrAlreadyConfirmed)
		errutil.AssertErrorCode(t, err, "ACCOUNT_ALREADY_CONFIRMED")
		f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("nil identity", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)

		err := svc.Resend(ctx, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("identity for a deleted user", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)
		id := ulid.Make()

		f.users.On("GetByID", mock.Anything, id).Return(nil, auth.ErrNotFound)

		err := svc.Resend(ctx, auth.NewSessionIdentity(&auth.Session{ID: ulid.Make(), UserID: id}))
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})

	t.Run("save failure sends nothing", func(t *testing.T) {
		f := newFixture(t)
		svc := f.verification(t)
		user := f.pendingUser("old", f.now)

		f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
		f.users.On("Save", mock.Anything, user).Return(auth.ErrStorage)

		err := svc.Resend(ctx, auth.NewSessionIdentity(&auth.Session{ID: ulid.Make(), UserID: user.ID}))
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrStorage)
		errutil.AssertErrorCode(t, err, "RESEND_FAILED")
		f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestVerificationOutcome_String(t *testing.T) {
	assert.Equal(t, "confirmed", auth.VerificationConfirmed.String())
	assert.Equal(t, "already_confirmed", auth.VerificationAlreadyConfirmed.String())
	assert.Equal(t, "expired", auth.VerificationExpired.String())
	assert.Equal(t, "unknown", auth.VerificationOutcome(0).String())
}

func TestVerificationService_RecordsChallengeEvents(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	deps := f.deps(t)
	deps.Metrics = rec
	svc, err := auth.NewVerificationService(deps)
	require.NoError(t, err)

	f.users.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.expectSend("ann@example.com", errors.New("smtp down"))

	_, err = svc.StartOnSignup(context.Background(), "Ann", "ann@example.com", "hash")
	require.NoError(t, err, "a failed send does not undo the signup")
	assert.Equal(t, []string{"issued:verification", "notify_failed:verification"}, rec.all())
}

func TestVerificationService_MailOutlivesCanceledRequest(t *testing.T) {
	f := newFixture(t)
	svc := f.verification(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.users.On("Create", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil)
	var sendErr error
	f.notifier.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sendErr = args.Get(0).(context.Context).Err() }).
		Return(nil).
		Once()

	_, err := svc.StartOnSignup(ctx, "Ann", "ann@example.com", "hash")
	require.NoError(t, err)
	assert.NoError(t, sendErr, "the notifier sees a live context after the client hangs up")
}
