// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package httpapi

import (
	"errors"
	"net/http"

	"github.com/speakdoc/speakdoc/internal/auth"
	"github.com/speakdoc/speakdoc/pkg/errutil"
)

const (
	msgInvalidCredentials = "Your email or password is incorrect"
	msgUnauthorized       = "Unauthorized access. Please log in."
	msgInvalidToken       = "Invalid token"
	msgAccountConfirmed   = "Account has been confirmed"
	msgUserNotFound       = "User not found"
	msgNoPendingEmail     = "No user email in session"
	msgDatabase           = "Database error occurred"
	msgUnexpected         = "An unexpected error occurred"
)

type failOptions struct {
	email string
}

type failOption func(*failOptions)

// withEmail names the address in a duplicate-email reply.
func withEmail(email *string) failOption {
	return func(o *failOptions) {
		if email != nil {
			o.email = *email
		}
	}
}

// fail writes the reply for err. Server-side failures are logged; their
// details never reach the client.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error, opts ...failOption) {
	var o failOptions
	for _, opt := range opts {
		opt(&o)
	}

	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		a.writeMessage(w, r, http.StatusBadRequest, verr.Message)
	case errors.Is(err, auth.ErrInvalidCredentials):
		a.writeMessage(w, r, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, auth.ErrUnauthenticated):
		a.writeMessage(w, r, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, auth.ErrDuplicateEmail):
		a.writeMessage(w, r, http.StatusConflict, o.email+" already existed")
	case errors.Is(err, auth.ErrTokenNotFound):
		a.writeMessage(w, r, http.StatusNotFound, msgInvalidToken)
	case errors.Is(err, auth.ErrAlreadyConfirmed):
		a.writeMessage(w, r, http.StatusNotFound, msgAccountConfirmed)
	case errors.Is(err, auth.ErrUserNotFound):
		a.writeMessage(w, r, http.StatusNotFound, msgUserNotFound)
	case errors.Is(err, auth.ErrNoPendingEmail):
		a.writeMessage(w, r, http.StatusBadRequest, msgNoPendingEmail)
	case errors.Is(err, auth.ErrStorage):
		errutil.LogErrorContext(r.Context(), a.logger, "database error", err)
		a.writeMessage(w, r, http.StatusInternalServerError, msgDatabase)
	default:
		errutil.LogErrorContext(r.Context(), a.logger, "unexpected error", err)
		a.writeMessage(w, r, http.StatusInternalServerError, msgUnexpected)
	}
}
