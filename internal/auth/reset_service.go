// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
)

// ResetOutcome is the result of resolving a reset token.
type ResetOutcome int

// Reset outcomes.
const (
	ResetCompleted ResetOutcome = iota + 1
	ResetExpired
)

func (o ResetOutcome) String() string {
	switch o {
	case ResetCompleted:
		return "completed"
	case ResetExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// PasswordResetService issues reset challenges and replaces credentials.
type PasswordResetService struct {
	users    UserRepository
	tx       Transactor
	hasher   PasswordHasher
	issuer   *TokenIssuer
	announce *announcer
	metrics  Recorder
	logger   *slog.Logger
}

// NewPasswordResetService creates a PasswordResetService.
func NewPasswordResetService(deps Deps) (*PasswordResetService, error) {
	if err := checkDeps(
		deps.needUsers(),
		deps.needTransactor(),
		deps.needHasher(),
		deps.needIssuer(),
		deps.needNotifier(),
		deps.needLinks(),
	); err != nil {
		return nil, err
	}
	return &PasswordResetService{
		users:    deps.Users,
		tx:       deps.Transactor,
		hasher:   deps.Hasher,
		issuer:   deps.Issuer,
		announce: deps.announcer(),
		metrics:  deps.metrics(),
		logger:   deps.logger(),
	}, nil
}

// RequestReset issues a reset challenge for the email captured by the
// caller's login. Any pending verification challenge is replaced.
func (s *PasswordResetService) RequestReset(ctx context.Context, pendingEmail string) error {
	if pendingEmail == "" {
		return oops.Code("RESET_NO_PENDING_EMAIL").Wrap(ErrNoPendingEmail)
	}

	var user *User
	var token string
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByEmail(ctx, pendingEmail)
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_USER_NOT_FOUND").Wrap(ErrUserNotFound)
		}
		if err != nil {
			return oops.Code("RESET_REQUEST_FAILED").With("operation", "get user by email").Wrap(err)
		}

		t, challenge, err := s.issuer.Issue()
		if err != nil {
			return oops.Code("RESET_REQUEST_FAILED").With("operation", "issue challenge").Wrap(err)
		}
		u.SetChallenge(challenge)
		if err := s.users.Save(ctx, u); err != nil {
			return oops.Code("RESET_REQUEST_FAILED").
				With("operation", "save user").
				With("user_id", u.ID.String()).
				Wrap(err)
		}
		user, token = u, t
		return nil
	})
	if err != nil {
		return err
	}

	s.announce.announce(ctx, PurposeReset, user.ID, user.Email, token)
	return nil
}

// Resolve consumes a reset token and installs the new password. An expired
// token yields ResetExpired without touching the record or the request body.
func (s *PasswordResetService) Resolve(ctx context.Context, token string, req ChangePasswordRequest) (ResetOutcome, error) {
	ctx, span := tracer.Start(ctx, "auth.reset.resolve")
	outcome, err := s.resolve(ctx, token, req)
	span.SetAttributes(attribute.Bool("auth.reset.expired", err == nil && outcome == ResetExpired))
	endSpan(span, err)
	return outcome, err
}

func (s *PasswordResetService) resolve(ctx context.Context, token string, req ChangePasswordRequest) (ResetOutcome, error) {
	if token == "" {
		return 0, oops.Code("TOKEN_NOT_FOUND").Wrap(ErrTokenNotFound)
	}
	tokenHash := HashToken(token)

	var outcome ResetOutcome
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		user, err := s.users.GetByChallenge(ctx, tokenHash)
		if errors.Is(err, ErrNotFound) {
			return oops.Code("TOKEN_NOT_FOUND").Wrap(ErrTokenNotFound)
		}
		if err != nil {
			return oops.Code("RESET_FAILED").With("operation", "get user by challenge").Wrap(err)
		}

		if user.ChallengeExpired(s.issuer.Now()) {
			outcome = ResetExpired
			return nil
		}

		if err := req.Validate(); err != nil {
			return err
		}

		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return oops.Code("RESET_FAILED").With("operation", "hash password").Wrap(err)
		}
		user.ReplacePassword(hash)
		if err := s.users.Save(ctx, user); err != nil {
			return oops.Code("RESET_FAILED").
				With("operation", "save user").
				With("user_id", user.ID.String()).
				Wrap(err)
		}
		outcome = ResetCompleted
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.ChallengeResolved(string(PurposeReset), outcome.String())
	return outcome, nil
}
