// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/speakdoc/speakdoc/internal/store"
)

func startPostgres(ctx context.Context) (string, func()) {
	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("speakdoc_test"),
		postgres.WithUsername("speakdoc"),
		postgres.WithPassword("speakdoc"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	return connStr, func() { _ = container.Terminate(ctx) }
}

var _ = Describe("Migrator", func() {
	var (
		ctx       context.Context
		connStr   string
		terminate func()
		migrator  *store.Migrator
	)

	BeforeEach(func() {
		ctx = context.Background()
		connStr, terminate = startPostgres(ctx)

		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(migrator.Close()).To(Succeed())
		terminate()
	})

	It("reports every migration pending on a fresh database", func() {
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(BeZero())
		Expect(status.Pending).To(Equal([]uint{1, 2, 3}))
	})

	It("applies and rolls back the schema", func() {
		Expect(migrator.Up()).To(Succeed())

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(3)))
		Expect(dirty).To(BeFalse())

		pool, err := store.Connect(ctx, connStr)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		var tables int
		Expect(pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name IN ('users', 'sessions')
		`).Scan(&tables)).To(Succeed())
		Expect(tables).To(Equal(2))

		Expect(migrator.Down()).To(Succeed())
		Expect(pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name IN ('users', 'sessions')
		`).Scan(&tables)).To(Succeed())
		Expect(tables).To(BeZero())
	})

	It("is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Up()).To(Succeed())

		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})
})
