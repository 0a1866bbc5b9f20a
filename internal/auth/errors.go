// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrStorage marks failures of the underlying store. Repositories wrap driver
// errors with it so callers can tell persistence failures from bugs.
var ErrStorage = errors.New("storage failure")

// Outcome errors returned by the services.
var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTokenNotFound      = errors.New("token not found")
	ErrAlreadyConfirmed   = errors.New("account already confirmed")
	ErrNoPendingEmail     = errors.New("no pending reset email")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnauthenticated    = errors.New("not authenticated")
)

// AttemptError is a failed login. It matches ErrInvalidCredentials. Token is
// set when the attempt opened a new anonymous session that the client must
// present to request a password reset.
type AttemptError struct {
	Token   string
	Session *Session
}

func (e *AttemptError) Error() string {
	return ErrInvalidCredentials.Error()
}

func (e *AttemptError) Unwrap() error {
	return ErrInvalidCredentials
}

// ValidationError reports a malformed, missing or empty request field.
// Message is safe to show to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalidField(field, message string) error {
	return oops.Code("VALIDATION_FAILED").
		With("field", field).
		Wrap(&ValidationError{Field: field, Message: message})
}
