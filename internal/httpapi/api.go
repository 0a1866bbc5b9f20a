// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

// Package httpapi exposes the account flows as a JSON API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/speakdoc/speakdoc/internal/auth"
	"github.com/speakdoc/speakdoc/internal/observability"
)

// Accounts is the signup, login and session surface of auth.Service.
type Accounts interface {
	SignUp(ctx context.Context, req auth.SignupRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest, client auth.ClientInfo) (*auth.LoginResult, error)
	Logout(ctx context.Context, id *auth.SessionIdentity) error
	Authenticate(ctx context.Context, token string) (*auth.SessionIdentity, error)
	Resume(ctx context.Context, token string) (*auth.SessionIdentity, error)
}

// Verifier resolves and reissues verification challenges.
type Verifier interface {
	Resolve(ctx context.Context, token string) (auth.VerificationOutcome, error)
	Resend(ctx context.Context, id auth.Identity) error
}

// Resetter issues and resolves password reset challenges.
type Resetter interface {
	RequestReset(ctx context.Context, pendingEmail string) error
	Resolve(ctx context.Context, token string, req auth.ChangePasswordRequest) (auth.ResetOutcome, error)
}

// DefaultCookieName names the session cookie when Options leaves it empty.
const DefaultCookieName = "speakdoc_session"

// Options configures the API handler.
type Options struct {
	Accounts     Accounts
	Verification Verifier
	Resets       Resetter
	// Metrics is optional.
	Metrics      *observability.Metrics
	Logger       *slog.Logger
	CookieName   string
	CookieSecure bool
}

type api struct {
	accounts     Accounts
	verification Verifier
	resets       Resetter
	logger       *slog.Logger
	cookieName   string
	cookieSecure bool
}

// NewHandler builds the routed, instrumented API handler.
func NewHandler(opts Options) (http.Handler, error) {
	switch {
	case opts.Accounts == nil:
		return nil, oops.Code("HTTPAPI_MISCONFIGURED").Errorf("accounts service is required")
	case opts.Verification == nil:
		return nil, oops.Code("HTTPAPI_MISCONFIGURED").Errorf("verification service is required")
	case opts.Resets == nil:
		return nil, oops.Code("HTTPAPI_MISCONFIGURED").Errorf("reset service is required")
	}

	a := &api{
		accounts:     opts.Accounts,
		verification: opts.Verification,
		resets:       opts.Resets,
		logger:       opts.Logger,
		cookieName:   opts.CookieName,
		cookieSecure: opts.CookieSecure,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.cookieName == "" {
		a.cookieName = DefaultCookieName
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /signup", a.handleSignup)
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("POST /logout", a.handleLogout)
	mux.HandleFunc("POST /verify-email/{token}", a.handleVerifyEmail)
	mux.HandleFunc("POST /resend-verification-email", a.handleResendVerification)
	mux.HandleFunc("POST /forgot-password", a.handleForgotPassword)
	mux.HandleFunc("POST /change-password/{token}", a.handleChangePassword)

	var h http.Handler = mux
	h = logRequests(a.logger, h)
	if opts.Metrics != nil {
		h = recordMetrics(opts.Metrics, h)
	}
	return otelhttp.NewHandler(h, "speakdoc.http"), nil
}
