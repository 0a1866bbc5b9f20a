// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/speakdoc/speakdoc/internal/config"
	"github.com/speakdoc/speakdoc/internal/logging"
	"github.com/speakdoc/speakdoc/internal/mail"
)

// NewSessionsCmd creates the sessions subcommand.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage login sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadValidConfig(cmd)
			if err != nil {
				return err
			}
			n, err := runPrune(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			cmd.Printf("Pruned %d expired session(s)\n", n)
			return nil
		},
	})

	return cmd
}

func runPrune(ctx context.Context, cfg *config.Config, deps *ServeDeps) (int64, error) {
	deps = deps.withDefaults()
	logger := logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, nil)

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL)
	if err != nil {
		return 0, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	// Pruning never announces anything.
	svc, err := buildServices(cfg, pool, mail.NewLogNotifier(logger), nil, logger)
	if err != nil {
		return 0, err
	}
	return svc.accounts.PruneSessions(ctx)
}
