// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth

import "net/mail"

const mismatchMessage = "Password and confirm password do not match"

// MalformedBodyMessage is reported for a body that is not a JSON object.
const MalformedBodyMessage = "Request body must be a JSON object"

// Request fields are pointers so an absent field and an empty one are
// reported differently.

// SignupRequest is the body of an account creation.
type SignupRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	Password        *string `json:"password"`
	ConfirmPassword *string `json:"confirm_password"`
}

// Validate reports the first problem in field order: name, email,
// password, confirm_password, then the password match.
func (r SignupRequest) Validate() error {
	if r.Name == nil && r.Email == nil && r.Password == nil && r.ConfirmPassword == nil {
		return invalidField("body", "Name, email, password and confirm password are required")
	}

	fields := []struct {
		key   string
		label string
		value *string
	}{
		{"name", "Name", r.Name},
		{"email", "Email", r.Email},
		{"password", "Password", r.Password},
		{"confirm_password", "Confirm_password", r.ConfirmPassword},
	}
	for _, f := range fields {
		if f.value == nil {
			return invalidField(f.key, f.label+" is required")
		}
		if *f.value == "" {
			return invalidField(f.key, f.label+" cannot be empty")
		}
	}

	if addr, err := mail.ParseAddress(*r.Email); err != nil || addr.Address != *r.Email {
		return invalidField("email", "Email is invalid")
	}

	if *r.Password != *r.ConfirmPassword {
		return invalidField("confirm_password", mismatchMessage)
	}
	return nil
}

// LoginRequest is the body of a login.
type LoginRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// Validate checks presence before emptiness.
func (r LoginRequest) Validate() error {
	if r.Email == nil || r.Password == nil {
		return invalidField("body", "Email and password are required")
	}
	if *r.Email == "" {
		return invalidField("email", "Email cannot be empty")
	}
	if *r.Password == "" {
		return invalidField("password", "Password cannot be empty")
	}
	return nil
}

// ChangePasswordRequest is the body that completes a password reset.
type ChangePasswordRequest struct {
	Password        *string `json:"password"`
	ConfirmPassword *string `json:"confirm_password"`
	// Malformed marks a body that could not be decoded. It is reported only
	// once the token is known to be live.
	Malformed bool `json:"-"`
}

// Validate checks decoding, presence, emptiness, then the match.
func (r ChangePasswordRequest) Validate() error {
	if r.Malformed {
		return invalidField("body", MalformedBodyMessage)
	}
	if r.Password == nil || r.ConfirmPassword == nil {
		return invalidField("body", "Password and confirm password are required")
	}
	if *r.Password == "" {
		return invalidField("password", "Password cannot be empty")
	}
	if *r.ConfirmPassword == "" {
		return invalidField("confirm_password", "Confirm password cannot be empty")
	}
	if *r.Password != *r.ConfirmPassword {
		return invalidField("confirm_password", mismatchMessage)
	}
	return nil
}

// ClientInfo describes the client opening a session.
type ClientInfo struct {
	UserAgent string
	IPAddress string
	// SessionToken is the session the client already holds, if any.
	SessionToken string
}
