// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package auth

import (
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Deps are the collaborators shared by the services. Each constructor checks
// only the fields it uses.
type Deps struct {
	Users      UserRepository
	Sessions   SessionRepository
	Transactor Transactor
	Hasher     PasswordHasher
	Issuer     *TokenIssuer
	Notifier   Notifier
	Links      *Links
	// Metrics defaults to a recorder that discards everything.
	Metrics Recorder
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// SessionTTL defaults to SessionTokenExpiry.
	SessionTTL time.Duration
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Recorder receives account events. observability.Metrics implements it.
type Recorder interface {
	Signup()
	Login(outcome string)
	ChallengeIssued(purpose string)
	ChallengeResolved(purpose, outcome string)
	NotificationFailed(purpose string)
}

type nopRecorder struct{}

func (nopRecorder) Signup()                          {}
func (nopRecorder) Login(string)                     {}
func (nopRecorder) ChallengeIssued(string)           {}
func (nopRecorder) ChallengeResolved(string, string) {}
func (nopRecorder) NotificationFailed(string)        {}

func (d Deps) metrics() Recorder {
	if d.Metrics == nil {
		return nopRecorder{}
	}
	return d.Metrics
}

func (d Deps) announcer() *announcer {
	return &announcer{
		notifier: d.Notifier,
		links:    d.Links,
		metrics:  d.metrics(),
		logger:   d.logger(),
	}
}

func (d Deps) sessionTTL() time.Duration {
	if d.SessionTTL <= 0 {
		return SessionTokenExpiry
	}
	return d.SessionTTL
}

type requirement struct {
	missing bool
	what    string
}

func checkDeps(reqs ...requirement) error {
	for _, r := range reqs {
		if r.missing {
			return oops.Code("SERVICE_MISCONFIGURED").Errorf("%s is required", r.what)
		}
	}
	return nil
}

func (d Deps) needUsers() requirement {
	return requirement{d.Users == nil, "users repository"}
}

func (d Deps) needSessions() requirement {
	return requirement{d.Sessions == nil, "sessions repository"}
}

func (d Deps) needTransactor() requirement {
	return requirement{d.Transactor == nil, "transactor"}
}

func (d Deps) needHasher() requirement {
	return requirement{d.Hasher == nil, "password hasher"}
}

func (d Deps) needIssuer() requirement {
	return requirement{d.Issuer == nil, "token issuer"}
}

func (d Deps) needNotifier() requirement {
	return requirement{d.Notifier == nil, "notifier"}
}

func (d Deps) needLinks() requirement {
	return requirement{d.Links == nil, "links"}
}
