// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package main

import (
	"log/slog"

	"github.com/speakdoc/speakdoc/internal/auth"
	"github.com/speakdoc/speakdoc/internal/auth/postgres"
	"github.com/speakdoc/speakdoc/internal/config"
	"github.com/speakdoc/speakdoc/internal/observability"
)

// services are the account flows wired to PostgreSQL.
type services struct {
	accounts     *auth.Service
	verification *auth.VerificationService
	resets       *auth.PasswordResetService
}

// buildServices wires the services. metrics may be nil.
func buildServices(cfg *config.Config, db postgres.DB, notifier auth.Notifier, metrics *observability.Metrics, logger *slog.Logger) (*services, error) {
	links, err := auth.NewLinks(cfg.HTTP.PublicURL)
	if err != nil {
		return nil, err
	}

	deps := auth.Deps{
		Users:      postgres.NewUserRepository(db),
		Sessions:   postgres.NewSessionRepository(db),
		Transactor: postgres.NewTransactor(db),
		Hasher:     auth.NewArgon2idHasher(),
		Issuer:     auth.NewTokenIssuer(auth.WithTokenTTL(cfg.Token.TTL)),
		Notifier:   notifier,
		Links:      links,
		Logger:     logger,
		SessionTTL: cfg.Session.TTL,
	}
	// A nil *Metrics must not become a non-nil Recorder.
	if metrics != nil {
		deps.Metrics = metrics
	}

	verification, err := auth.NewVerificationService(deps)
	if err != nil {
		return nil, err
	}
	resets, err := auth.NewPasswordResetService(deps)
	if err != nil {
		return nil, err
	}
	accounts, err := auth.NewAuthService(deps, verification)
	if err != nil {
		return nil, err
	}
	return &services{accounts: accounts, verification: verification, resets: resets}, nil
}
