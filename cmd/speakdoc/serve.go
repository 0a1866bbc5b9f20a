// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/speakdoc/speakdoc/internal/auth"
	"github.com/speakdoc/speakdoc/internal/auth/postgres"
	"github.com/speakdoc/speakdoc/internal/config"
	"github.com/speakdoc/speakdoc/internal/httpapi"
	"github.com/speakdoc/speakdoc/internal/logging"
	"github.com/speakdoc/speakdoc/internal/mail"
	"github.com/speakdoc/speakdoc/internal/observability"
	"github.com/speakdoc/speakdoc/internal/store"
)

const (
	serviceName     = "speakdoc"
	shutdownTimeout = 10 * time.Second
)

// Pool is the database handle serve needs.
type Pool interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// Server is a startable listener.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
}

// ObservabilityServer is a Server that also owns the metrics registry.
type ObservabilityServer interface {
	Server
	Metrics() *observability.Metrics
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the database. Default: store.Connect
	PoolFactory func(ctx context.Context, url string) (Pool, error)

	// NotifierFactory builds the mail notifier. Default: mail.New
	NotifierFactory func(opts mail.Options, logger *slog.Logger) (auth.Notifier, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checks []observability.Check, logger *slog.Logger) ObservabilityServer

	// APIServerFactory creates the API server. Default: httpapi.NewServer
	APIServerFactory func(addr string, handler http.Handler) Server
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, url string) (Pool, error) {
			return store.Connect(ctx, url)
		}
	}
	if out.NotifierFactory == nil {
		out.NotifierFactory = mail.New
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, checks []observability.Check, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, checks, observability.WithLogger(logger))
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, handler http.Handler) Server {
			return httpapi.NewServer(addr, handler)
		}
	}
	return &out
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the JSON API server together with the metrics and health
endpoints. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadValidConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, nil)
		},
	}
}

// runServeWithDeps serves until ctx is done or a listener fails.
func runServeWithDeps(ctx context.Context, cfg *config.Config, deps *ServeDeps) error {
	deps = deps.withDefaults()
	logger := logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	notifier, err := deps.NotifierFactory(cfg.MailOptions(), logger)
	if err != nil {
		return oops.Code("MAIL_SETUP_FAILED").Wrap(err)
	}
	// Registered before the API server's stop so it drains after it.
	queue := mail.NewQueue(notifier, mail.DefaultQueueWorkers, mail.DefaultQueueSize, logger)
	defer drainQueue(logger, queue)

	var ready atomic.Bool
	var metrics *observability.Metrics
	var obsErr <-chan error
	if cfg.Metrics.Addr != "" {
		obs := deps.ObservabilityServerFactory(cfg.Metrics.Addr, readinessChecks(&ready, pool, notifier), logger)
		obsErr, err = obs.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		defer stopServer(logger, "observability", obs)
		metrics = obs.Metrics()
	}

	svc, err := buildServices(cfg, pool, queue, metrics, logger)
	if err != nil {
		return err
	}

	handler, err := httpapi.NewHandler(httpapi.Options{
		Accounts:     svc.accounts,
		Verification: svc.verification,
		Resets:       svc.resets,
		Metrics:      metrics,
		Logger:       logger,
		CookieName:   cfg.HTTP.CookieName,
		CookieSecure: cfg.HTTP.CookieSecure,
	})
	if err != nil {
		return err
	}

	api := deps.APIServerFactory(cfg.HTTP.Addr, handler)
	apiErr, err := api.Start()
	if err != nil {
		return oops.Code("HTTP_START_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	defer stopServer(logger, "api", api)

	ready.Store(true)
	logger.Info("speakdoc serving",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"mail_driver", cfg.Mail.Driver)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-apiErr:
		if err != nil {
			runErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
	case err := <-obsErr:
		if err != nil {
			runErr = oops.Code("OBSERVABILITY_SERVE_FAILED").Wrap(err)
		}
	}
	ready.Store(false)
	return runErr
}

// readinessChecks reports the API listener and the database. The mail relay
// is reported when the notifier can be pinged but never blocks readiness.
func readinessChecks(ready *atomic.Bool, pool Pool, notifier auth.Notifier) []observability.Check {
	checks := []observability.Check{
		{Name: "api", Probe: func(context.Context) error {
			if !ready.Load() {
				return oops.Code("API_NOT_SERVING").Errorf("api is not serving")
			}
			return nil
		}},
		{Name: "database", Probe: pool.Ping},
	}
	if p, ok := notifier.(mail.Pinger); ok {
		checks = append(checks, observability.Check{Name: "mail", Probe: p.Ping, Optional: true})
	}
	return checks
}

func drainQueue(logger *slog.Logger, q *mail.Queue) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		logger.Error("mail queue drain failed", "error", err)
	}
}

func stopServer(logger *slog.Logger, name string, s Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		logger.Error("server shutdown failed", "server", name, "error", err)
	}
}
