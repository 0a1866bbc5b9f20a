// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package main

import (
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/speakdoc/speakdoc/internal/store"
)

// migrator is the part of *store.Migrator the commands use.
type migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand. Without a subcommand it
// applies all pending migrations.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply, roll back or inspect the PostgreSQL schema migrations.`,
		RunE:  withMigrator(migrateUp),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(migrateUp),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(migrateDown),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(migrateStatus),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the recorded version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag. Use after
repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(migrateForce),
	})

	return cmd
}

type migrateFunc func(cmd *cobra.Command, m migrator, args []string) error

func withMigrator(fn migrateFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		res, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if res.Config.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database.url (or DATABASE_URL) is required")
		}

		m, err := newMigrator(res.Config.Database.URL)
		if err != nil {
			return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
		}
		defer func() {
			if cerr := m.Close(); cerr != nil {
				cmd.PrintErrln("warning: closing migrator:", cerr)
			}
		}()
		return fn(cmd, m, args)
	}
}

func migrateUp(cmd *cobra.Command, m migrator, _ []string) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func migrateDown(cmd *cobra.Command, m migrator, _ []string) error {
	cmd.Println("Rolling back migrations...")
	if err := m.Down(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
	}
	cmd.Println("Rollback completed successfully")
	return nil
}

func migrateStatus(cmd *cobra.Command, m migrator, _ []string) error {
	st, err := m.Status()
	if err != nil {
		return err
	}

	if st.Version == 0 {
		cmd.Println("Current version: none")
	} else {
		cmd.Printf("Current version: %d (%s)\n", st.Version, st.Name)
	}
	if st.Dirty {
		cmd.Println("WARNING: database is dirty; repair it and run 'speakdoc migrate force VERSION'")
	}
	if len(st.Pending) == 0 {
		cmd.Println("Pending: none")
		return nil
	}
	cmd.Println("Pending:")
	for _, v := range st.Pending {
		name, err := store.MigrationName(v)
		if err != nil {
			name = "?"
		}
		cmd.Printf("  %d (%s)\n", v, name)
	}
	return nil
}

func migrateForce(cmd *cobra.Command, m migrator, args []string) error {
	v, err := parseForceVersion(args[0])
	if err != nil {
		return err
	}
	if err := m.Force(v); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "force").With("version", v).Wrap(err)
	}
	cmd.Printf("Forced version %d\n", v)
	return nil
}

// parseForceVersion accepts a whole number; -1 means no version.
func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer, got %q", s)
	}
	if v < -1 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be -1 or greater, got %d", v)
	}
	return v, nil
}
