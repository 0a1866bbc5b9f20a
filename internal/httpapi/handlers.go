// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package httpapi

import (
	"errors"
	"net"
	"net/http"

	"github.com/speakdoc/speakdoc/internal/auth"
)

// Reply messages.
const (
	msgSignedUp          = "Successfully created an account"
	msgLoggedIn          = "success"
	msgLoggedOut         = "Logged out successfully"
	msgVerified          = "Email verified successfully"
	msgAlreadyConfirmed  = "Account is already confirmed. Please login"
	msgVerifyExpired     = "The verification link is expired. Please verify your account"
	msgResent            = "A new verification email has been sent"
	msgResetSent         = "An email has been sent to change password"
	msgPasswordChanged   = "Successfully changed password"
	msgResetExpired      = "The link is expired. Please try again"
	msgBadBody           = auth.MalformedBodyMessage
	actionChangePassword = "change password"
)

func (a *api) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if err := readJSON(w, r, &req); err != nil {
		a.writeMessage(w, r, http.StatusBadRequest, msgBadBody)
		return
	}

	if _, err := a.accounts.SignUp(r.Context(), req); err != nil {
		a.fail(w, r, err, withEmail(req.Email))
		return
	}
	a.writeMessage(w, r, http.StatusCreated, msgSignedUp)
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := readJSON(w, r, &req); err != nil {
		a.writeMessage(w, r, http.StatusBadRequest, msgBadBody)
		return
	}

	res, err := a.accounts.Login(r.Context(), req, a.clientInfo(r))
	if err != nil {
		// A failed attempt may still hand out a session carrying the email
		// for a later reset request. The reply is the same either way.
		var attempt *auth.AttemptError
		if errors.As(err, &attempt) && attempt.Token != "" {
			a.setCookie(w, attempt.Token, attempt.Session)
		}
		a.fail(w, r, err)
		return
	}

	a.setCookie(w, res.Token, res.Session)
	a.writeJSON(w, r, http.StatusOK, reply{Message: msgLoggedIn, Name: res.User.Name})
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	if err := a.accounts.Logout(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.clearCookie(w)
	a.writeMessage(w, r, http.StatusOK, msgLoggedOut)
}

func (a *api) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	outcome, err := a.verification.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	msg := msgVerified
	switch outcome {
	case auth.VerificationAlreadyConfirmed:
		msg = msgAlreadyConfirmed
	case auth.VerificationExpired:
		msg = msgVerifyExpired
	}
	a.writeJSON(w, r, http.StatusOK, reply{Message: msg, Action: outcome.Action()})
}

func (a *api) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	if err := a.verification.Resend(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeMessage(w, r, http.StatusOK, msgResent)
}

// handleForgotPassword accepts any live session, including the anonymous one
// a failed login leaves behind. Without one there is no pending email and the
// reset service rejects the request.
func (a *api) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var pending string
	if id := a.optionalIdentity(r); id != nil {
		pending = id.PendingResetEmail()
	}

	if err := a.resets.RequestReset(r.Context(), pending); err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeMessage(w, r, http.StatusOK, msgResetSent)
}

// handleChangePassword lets the token decide first: an unknown or expired
// token is reported even when the body is garbage.
func (a *api) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ChangePasswordRequest
	if err := readJSON(w, r, &req); err != nil {
		req = auth.ChangePasswordRequest{Malformed: true}
	}

	outcome, err := a.resets.Resolve(r.Context(), r.PathValue("token"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	msg := msgPasswordChanged
	if outcome == auth.ResetExpired {
		msg = msgResetExpired
	}
	a.writeJSON(w, r, http.StatusOK, reply{Message: msg, Action: actionChangePassword})
}

func (a *api) setCookie(w http.ResponseWriter, token string, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *api) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *api) clientInfo(r *http.Request) auth.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	info := auth.ClientInfo{UserAgent: r.UserAgent(), IPAddress: ip}
	if cookie, err := r.Cookie(a.cookieName); err == nil {
		info.SessionToken = cookie.Value
	}
	return info
}
