// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package httpapi

import (
	"context"

	"github.com/speakdoc/speakdoc/internal/auth"
)

type fakeAccounts struct {
	signUp       func(auth.SignupRequest) (*auth.User, error)
	login        func(auth.LoginRequest, auth.ClientInfo) (*auth.LoginResult, error)
	logout       func(*auth.SessionIdentity) error
	authenticate func(string) (*auth.SessionIdentity, error)
	resume       func(string) (*auth.SessionIdentity, error)
}

func (f *fakeAccounts) SignUp(_ context.Context, req auth.SignupRequest) (*auth.User, error) {
	return f.signUp(req)
}

func (f *fakeAccounts) Login(_ context.Context, req auth.LoginRequest, client auth.ClientInfo) (*auth.LoginResult, error) {
	return f.login(req, client)
}

func (f *fakeAccounts) Logout(_ context.Context, id *auth.SessionIdentity) error {
	return f.logout(id)
}

func (f *fakeAccounts) Authenticate(_ context.Context, token string) (*auth.SessionIdentity, error) {
	if f.authenticate == nil {
		return nil, auth.ErrUnauthenticated
	}
	return f.authenticate(token)
}

func (f *fakeAccounts) Resume(ctx context.Context, token string) (*auth.SessionIdentity, error) {
	if f.resume == nil {
		return f.Authenticate(ctx, token)
	}
	return f.resume(token)
}

type fakeVerifier struct {
	resolve func(string) (auth.VerificationOutcome, error)
	resend  func(auth.Identity) error
}

func (f *fakeVerifier) Resolve(_ context.Context, token string) (auth.VerificationOutcome, error) {
	return f.resolve(token)
}

func (f *fakeVerifier) Resend(_ context.Context, id auth.Identity) error {
	return f.resend(id)
}

type fakeResetter struct {
	request func(string) error
	resolve func(string, auth.ChangePasswordRequest) (auth.ResetOutcome, error)
}

func (f *fakeResetter) RequestReset(_ context.Context, pending string) error {
	return f.request(pending)
}

func (f *fakeResetter) Resolve(_ context.Context, token string, req auth.ChangePasswordRequest) (auth.ResetOutcome, error) {
	return f.resolve(token, req)
}
