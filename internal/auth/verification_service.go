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

// VerificationOutcome is the result of resolving a verification token.
type VerificationOutcome int

// Verification outcomes.
const (
	VerificationConfirmed VerificationOutcome = iota + 1
	VerificationAlreadyConfirmed
	VerificationExpired
)

// Action tells the client what to do next: "login", or "verify" to request
// a fresh link.
func (o VerificationOutcome) Action() string {
	if o == VerificationExpired {
		return "verify"
	}
	return "login"
}

func (o VerificationOutcome) String() string {
	switch o {
	case VerificationConfirmed:
		return "confirmed"
	case VerificationAlreadyConfirmed:
		return "already_confirmed"
	case VerificationExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// VerificationService issues and resolves email confirmation challenges.
type VerificationService struct {
	users    UserRepository
	tx       Transactor
	issuer   *TokenIssuer
	announce *announcer
	metrics  Recorder
	logger   *slog.Logger
}

// NewVerificationService creates a VerificationService.
func NewVerificationService(deps Deps) (*VerificationService, error) {
	if err := checkDeps(
		deps.needUsers(),
		deps.needTransactor(),
		deps.needIssuer(),
		deps.needNotifier(),
		deps.needLinks(),
	); err != nil {
		return nil, err
	}
	return &VerificationService{
		users:    deps.Users,
		tx:       deps.Transactor,
		issuer:   deps.Issuer,
		announce: deps.announcer(),
		metrics:  deps.metrics(),
		logger:   deps.logger(),
	}, nil
}

// StartOnSignup creates an unconfirmed user with a fresh verification
// challenge and announces it. Returns ErrDuplicateEmail when the email is taken.
func (s *VerificationService) StartOnSignup(ctx context.Context, name, email, passwordHash string) (*User, error) {
	token, challenge, err := s.issuer.Issue()
	if err != nil {
		return nil, oops.Code("SIGNUP_FAILED").With("operation", "issue challenge").Wrap(err)
	}

	user, err := NewUser(name, email, passwordHash, challenge, s.issuer.Now())
	if err != nil {
		return nil, oops.Code("SIGNUP_FAILED").With("operation", "build user").Wrap(err)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code("ACCOUNT_EMAIL_TAKEN").With("email", email).Wrap(ErrDuplicateEmail)
		}
		return nil, oops.Code("SIGNUP_FAILED").With("operation", "create user").Wrap(err)
	}

	s.announce.announce(ctx, PurposeVerification, user.ID, user.Email, token)
	return user, nil
}

// Resolve consumes a verification token. Expired tokens are left in place
// so the outcome can be reported without changing the record.
func (s *VerificationService) Resolve(ctx context.Context, token string) (VerificationOutcome, error) {
	ctx, span := tracer.Start(ctx, "auth.verification.resolve")
	outcome, err := s.resolve(ctx, token)
	if err == nil {
		span.SetAttributes(attribute.String("auth.outcome", outcome.Action()))
	}
	endSpan(span, err)
	return outcome, err
}

func (s *VerificationService) resolve(ctx context.Context, token string) (VerificationOutcome, error) {
	if token == "" {
		return 0, oops.Code("TOKEN_NOT_FOUND").Wrap(ErrTokenNotFound)
	}
	tokenHash := HashToken(token)

	var outcome VerificationOutcome
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		user, err := s.users.GetByChallenge(ctx, tokenHash)
		if errors.Is(err, ErrNotFound) {
			return oops.Code("TOKEN_NOT_FOUND").Wrap(ErrTokenNotFound)
		}
		if err != nil {
			return oops.Code("VERIFY_FAILED").With("operation", "get user by challenge").Wrap(err)
		}

		now := s.issuer.Now()
		switch {
		case user.Confirmed:
			outcome = VerificationAlreadyConfirmed
			return nil
		case user.ChallengeExpired(now):
			outcome = VerificationExpired
			return nil
		}

		user.Confirm(now)
		if err := s.users.Save(ctx, user); err != nil {
			return oops.Code("VERIFY_FAILED").
				With("operation", "save user").
				With("user_id", user.ID.String()).
				Wrap(err)
		}
		outcome = VerificationConfirmed
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.ChallengeResolved(string(PurposeVerification), outcome.String())
	return outcome, nil
}

// Resend replaces the caller's pending challenge with a fresh one.
// Returns ErrAlreadyConfirmed for confirmed accounts.
func (s *VerificationService) Resend(ctx context.Context, id Identity) error {
	if id == nil {
		return oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
	}

	var user *User
	var token string
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByID(ctx, id.ID())
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_UNAUTHENTICATED").With("user_id", id.ID().String()).Wrap(ErrUnauthenticated)
		}
		if err != nil {
			return oops.Code("RESEND_FAILED").With("operation", "get user by id").Wrap(err)
		}
		if u.Confirmed {
			return oops.Code("ACCOUNT_ALREADY_CONFIRMED").With("user_id", u.ID.String()).Wrap(ErrAlreadyConfirmed)
		}

		t, challenge, err := s.issuer.Issue()
		if err != nil {
			return oops.Code("RESEND_FAILED").With("operation", "issue challenge").Wrap(err)
		}
		u.SetChallenge(challenge)
		if err := s.users.Save(ctx, u); err != nil {
			return oops.Code("RESEND_FAILED").
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

	s.announce.announce(ctx, PurposeVerification, user.ID, user.Email, token)
	return nil
}
