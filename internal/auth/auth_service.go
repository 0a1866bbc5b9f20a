// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"github.com/speakdoc/speakdoc/pkg/errutil"
)

// Service provides account and session operations.
type Service struct {
	users        UserRepository
	sessions     SessionRepository
	tx           Transactor
	hasher       PasswordHasher
	issuer       *TokenIssuer
	verification *VerificationService
	sessionTTL   time.Duration
	metrics      Recorder
	logger       *slog.Logger
}

// NewAuthService creates a new Service. Signups start their verification
// challenge through verification.
func NewAuthService(deps Deps, verification *VerificationService) (*Service, error) {
	if err := checkDeps(
		deps.needUsers(),
		deps.needSessions(),
		deps.needTransactor(),
		deps.needHasher(),
		deps.needIssuer(),
		requirement{verification == nil, "verification service"},
	); err != nil {
		return nil, err
	}
	return &Service{
		users:        deps.Users,
		sessions:     deps.Sessions,
		tx:           deps.Transactor,
		hasher:       deps.Hasher,
		issuer:       deps.Issuer,
		verification: verification,
		sessionTTL:   deps.sessionTTL(),
		metrics:      deps.metrics(),
		logger:       deps.logger(),
	}, nil
}

// LoginResult is a successful login.
type LoginResult struct {
	User     *User
	Session  *Session
	Identity *SessionIdentity
	// Token is the plaintext session token for the client.
	Token string
}

// dummyPasswordHash is verified when the email is unknown so that both
// failure paths cost the same.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// SignUp validates the request and creates an unconfirmed account.
func (s *Service) SignUp(ctx context.Context, req SignupRequest) (*User, error) {
	ctx, span := tracer.Start(ctx, "auth.signup")
	user, err := s.signUp(ctx, req)
	endSpan(span, err)
	return user, err
}

func (s *Service) signUp(ctx context.Context, req SignupRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(*req.Password)
	if err != nil {
		return nil, oops.Code("SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := s.verification.StartOnSignup(ctx, *req.Name, *req.Email, hash)
	if err != nil {
		return nil, err
	}

	s.metrics.Signup()
	s.logger.InfoContext(ctx, "account created", "user_id", user.ID.String())
	return user, nil
}

// Login authenticates a user and opens a session. Unknown emails and wrong
// passwords both fail with ErrInvalidCredentials after the same amount of work.
// A failed attempt on a known email still records that email on the caller's
// session, opening an anonymous one if needed; see AttemptError.
func (s *Service) Login(ctx context.Context, req LoginRequest, client ClientInfo) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "auth.login")
	res, err := s.login(ctx, req, client)
	if res != nil {
		span.SetAttributes(attribute.String("user.id", res.User.ID.String()))
	}
	endSpan(span, err)
	return res, err
}

func (s *Service) login(ctx context.Context, req LoginRequest, client ClientInfo) (*LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	email, password := *req.Email, *req.Password

	user, lookupErr := s.users.GetByEmail(ctx, email)

	var targetHash string
	var userExists bool
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
		targetHash = dummyPasswordHash
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && userExists {
		errutil.LogError(s.logger, "stored password hash unreadable", oops.Code("AUTH_INVALID_HASH").
			With("user_id", user.ID.String()).
			Wrap(verifyErr))
	}
	if !userExists || !valid || verifyErr != nil {
		s.metrics.Login("invalid_credentials")
		var pending string
		if userExists {
			pending = user.Email
		}
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(s.rememberAttempt(ctx, pending, client))
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	now := s.issuer.Now()
	session, err := NewSession(user.ID, tokenHash, user.Email, client.UserAgent, client.IPAddress, now, now.Add(s.sessionTTL))
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	s.dropAnonymous(ctx, client.SessionToken)
	s.metrics.Login("success")
	return &LoginResult{
		User:     user,
		Session:  session,
		Identity: NewSessionIdentity(session),
		Token:    token,
	}, nil
}

// rememberAttempt records email on the caller's live session, or opens an
// anonymous session holding it. Unknown emails open the session too, with no
// email, so the reply never hints whether the address is registered. Storage
// failures are logged; the caller still gets a plain credentials failure.
func (s *Service) rememberAttempt(ctx context.Context, email string, client ClientInfo) *AttemptError {
	now := s.issuer.Now()
	if client.SessionToken != "" {
		session, err := s.sessions.GetByTokenHash(ctx, HashToken(client.SessionToken))
		switch {
		case err == nil && !session.IsExpiredAt(now):
			if email == "" {
				return &AttemptError{Session: session}
			}
			if err := s.sessions.SetPendingResetEmail(ctx, session.ID, email); err != nil {
				errutil.LogErrorContext(ctx, s.logger, "recording login attempt failed", oops.Code("AUTH_ATTEMPT_RECORD_FAILED").
					With("session_id", session.ID.String()).
					Wrap(err))
				return &AttemptError{Session: session}
			}
			session.PendingResetEmail = email
			return &AttemptError{Session: session}
		case err != nil && !errors.Is(err, ErrNotFound):
			errutil.LogErrorContext(ctx, s.logger, "recording login attempt failed", oops.Code("AUTH_ATTEMPT_RECORD_FAILED").
				With("operation", "get session by token hash").
				Wrap(err))
			return &AttemptError{}
		}
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "recording login attempt failed", err)
		return &AttemptError{}
	}
	session, err := NewAnonymousSession(tokenHash, email, client.UserAgent, client.IPAddress, now, now.Add(s.sessionTTL))
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "recording login attempt failed", err)
		return &AttemptError{}
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "recording login attempt failed", oops.Code("AUTH_ATTEMPT_RECORD_FAILED").
			With("operation", "persist anonymous session").
			Wrap(err))
		return &AttemptError{}
	}
	return &AttemptError{Token: token, Session: session}
}

// dropAnonymous removes the anonymous session a successful login replaces.
func (s *Service) dropAnonymous(ctx context.Context, token string) {
	if token == "" {
		return
	}
	session, err := s.sessions.GetByTokenHash(ctx, HashToken(token))
	if err != nil || !session.Anonymous() {
		return
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.DebugContext(ctx, "failed to drop anonymous session", "session_id", session.ID.String(), "error", err)
	}
}

// upgradeHash replaces a legacy digest with argon2id. Failures are logged and
// the login proceeds.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogError(s.logger, "password hash upgrade failed", err)
		return
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		current, err := s.users.GetByID(ctx, user.ID)
		if err != nil {
			return oops.With("operation", "get user by id").Wrap(err)
		}
		// A reset may have landed since the lookup.
		if current.PasswordHash != user.PasswordHash {
			return nil
		}
		current.PasswordHash = newHash
		return s.users.Save(ctx, current)
	})
	if err != nil {
		errutil.LogError(s.logger, "password hash upgrade failed", oops.Code("AUTH_HASH_UPGRADE_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err))
		return
	}
	user.PasswordHash = newHash
}

// Logout ends the caller's session. Ending a session that is already gone
// succeeds.
func (s *Service) Logout(ctx context.Context, id *SessionIdentity) error {
	if id == nil {
		return oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
	}

	err := s.sessions.Delete(ctx, id.SessionID())
	if err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", id.SessionID().String()).
			Wrap(err)
	}
	return nil
}

// Authenticate resolves a session token to the identity it was issued for.
// Anonymous sessions fail with ErrUnauthenticated. Also updates the
// LastSeenAt timestamp.
func (s *Service) Authenticate(ctx context.Context, token string) (*SessionIdentity, error) {
	session, err := s.live(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Anonymous() {
		return nil, oops.Code("SESSION_ANONYMOUS").
			With("session_id", session.ID.String()).
			Wrap(ErrUnauthenticated)
	}
	return NewSessionIdentity(session), nil
}

// Resume resolves a session token like Authenticate but also accepts
// anonymous sessions.
func (s *Service) Resume(ctx context.Context, token string) (*SessionIdentity, error) {
	session, err := s.live(ctx, token)
	if err != nil {
		return nil, err
	}
	return NewSessionIdentity(session), nil
}

func (s *Service) live(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, oops.Code("SESSION_TOKEN_EMPTY").Wrap(ErrUnauthenticated)
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code("SESSION_INVALID").Wrap(ErrUnauthenticated)
	}
	if err != nil {
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	now := s.issuer.Now()
	if session.IsExpiredAt(now) {
		return nil, oops.Code("SESSION_EXPIRED").
			With("session_id", session.ID.String()).
			Wrap(ErrUnauthenticated)
	}

	if err := s.sessions.UpdateLastSeen(ctx, session.ID, now); err != nil {
		s.logger.DebugContext(ctx, "failed to update session last seen", "session_id", session.ID.String(), "error", err)
	}
	return session, nil
}

// PruneSessions deletes expired sessions and returns how many were removed.
func (s *Service) PruneSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.issuer.Now())
	if err != nil {
		return 0, oops.Code("SESSION_PRUNE_FAILED").Wrap(err)
	}
	return n, nil
}
