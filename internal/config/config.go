// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

// Package config loads SpeakDoc settings from defaults, a YAML file, the
// environment and command-line flags, in that order of precedence.
package config

import (
	"net/url"
	"slices"
	"time"

	"github.com/samber/oops"

	"github.com/speakdoc/speakdoc/internal/logging"
	"github.com/speakdoc/speakdoc/internal/mail"
)

// Config is the effective configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" jsonschema:"title=HTTP listener"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Session  SessionConfig  `koanf:"session"`
	Token    TokenConfig    `koanf:"token"`
	Mail     MailConfig     `koanf:"mail"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" jsonschema:"description=listen address"`
	// PublicURL is the externally reachable base used in emailed links.
	PublicURL    string `koanf:"public_url" jsonschema:"description=base URL used in emailed links"`
	CookieName   string `koanf:"cookie_name"`
	CookieSecure bool   `koanf:"cookie_secure"`
}

// MetricsConfig configures the metrics and health listener.
type MetricsConfig struct {
	// Addr may be empty to disable the listener.
	Addr string `koanf:"addr" jsonschema:"description=metrics and health listen address; empty disables"`
}

// DatabaseConfig configures PostgreSQL access.
type DatabaseConfig struct {
	URL string `koanf:"url" jsonschema:"description=PostgreSQL connection URL"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// SessionConfig configures login sessions.
type SessionConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// TokenConfig configures emailed challenge tokens.
type TokenConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// MailConfig configures outbound mail.
type MailConfig struct {
	Driver   string `koanf:"driver" jsonschema:"enum=smtp,enum=log"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" jsonschema:"minimum=1,maximum=65535"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	TLS      string `koanf:"tls" jsonschema:"enum=mandatory,enum=opportunistic,enum=none"`
}

// defaults are loaded first and stored as they would appear in a file.
var defaults = map[string]any{
	"http.addr":          "localhost:8080",
	"http.public_url":    "http://localhost:8080",
	"http.cookie_name":   "speakdoc_session",
	"http.cookie_secure": false,
	"metrics.addr":       "127.0.0.1:9100",
	"database.url":       "",
	"log.format":         "json",
	"log.level":          "info",
	"session.ttl":        "24h",
	"token.ttl":          "1h",
	"mail.driver":        mail.DriverSMTP,
	"mail.host":          "smtp.googlemail.com",
	"mail.port":          587,
	"mail.username":      "",
	"mail.password":      "",
	"mail.from":          "",
	"mail.tls":           mail.TLSMandatory,
}

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	u, err := url.Parse(c.HTTP.PublicURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("http.public_url", "must be an absolute http(s) URL")
	}
	if c.HTTP.CookieName == "" {
		return invalid("http.cookie_name", "is required")
	}
	if c.Database.URL == "" {
		return invalid("database.url", "is required (or set DATABASE_URL)")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be one of debug, info, warn, error")
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl", "must be positive")
	}
	if c.Token.TTL <= 0 {
		return invalid("token.ttl", "must be positive")
	}
	return c.Mail.validate()
}

func (m MailConfig) validate() error {
	switch m.Driver {
	case mail.DriverLog:
		return nil
	case mail.DriverSMTP:
	default:
		return invalid("mail.driver", "must be 'smtp' or 'log'")
	}
	if m.Host == "" {
		return invalid("mail.host", "is required for the smtp driver")
	}
	if m.Port < 1 || m.Port > 65535 {
		return invalid("mail.port", "must be between 1 and 65535")
	}
	if m.From == "" && m.Username == "" {
		return invalid("mail.from", "or mail.username is required for the smtp driver")
	}
	if !slices.Contains([]string{mail.TLSMandatory, mail.TLSOpportunistic, mail.TLSNone}, m.TLS) {
		return invalid("mail.tls", "must be 'mandatory', 'opportunistic' or 'none'")
	}
	return nil
}

func invalid(key, problem string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s %s", key, problem)
}

// MailOptions converts the mail section for mail.New.
func (c *Config) MailOptions() mail.Options {
	return mail.Options{
		Driver:   c.Mail.Driver,
		Host:     c.Mail.Host,
		Port:     c.Mail.Port,
		Username: c.Mail.Username,
		Password: c.Mail.Password,
		From:     c.Mail.From,
		TLS:      c.Mail.TLS,
	}
}
