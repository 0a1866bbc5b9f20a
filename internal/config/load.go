// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SpeakDoc Contributors

package config

import (
	"errors"
	"io/fs"
	"maps"
	"net/url"
	"os"
	"slices"
	"strings"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/speakdoc/speakdoc/internal/xdg"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore: SPEAKDOC_HTTP__PUBLIC_URL sets http.public_url.
const EnvPrefix = "SPEAKDOC_"

const redacted = "REDACTED"

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"public-url":   "http.public_url",
	"metrics-addr": "metrics.addr",
	"database-url": "database.url",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"mail-driver":  "mail.driver",
}

// fallbackEnv lists unprefixed variables honoured when the key is still empty.
var fallbackEnv = []struct{ key, env string }{
	{"database.url", "DATABASE_URL"},
	{"mail.username", "MAIL_USERNAME"},
	{"mail.password", "MAIL_PASSWORD"},
}

// RegisterFlags adds the configuration override flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", "", "HTTP listen address")
	fs.String("public-url", "", "public base URL used in emailed links")
	fs.String("metrics-addr", "", "metrics/health HTTP address")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("mail-driver", "", "mail driver (smtp or log)")
}

// Options controls Load.
type Options struct {
	// File is an explicit config path. When empty the XDG default is tried
	// and may be absent.
	File string
	// Flags holds parsed override flags; only flags set by the user apply.
	Flags *pflag.FlagSet
}

// Result is a loaded configuration.
type Result struct {
	Config *Config
	// File is the path that was read, or empty.
	File string
	k    *koanf.Koanf
}

// Load builds the effective configuration. It does not call Validate.
func Load(opts Options) (*Result, error) {
	k := koanf.New(".")
	for _, key := range slices.Sorted(maps.Keys(defaults)) {
		if err := k.Set(key, defaults[key]); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	path, err := loadFile(k, opts.File)
	if err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "environment")
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "flags")
		}
	}

	for _, fb := range fallbackEnv {
		if k.String(fb.key) != "" {
			continue
		}
		if v := os.Getenv(fb.env); v != "" {
			if err := k.Set(fb.key, v); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", fb.key).Wrap(err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "decode")
	}
	return &Result{Config: cfg, File: path, k: k}, nil
}

func loadFile(k *koanf.Koanf, explicit string) (string, error) {
	path := explicit
	if path == "" {
		p, err := xdg.ConfigFile()
		if err != nil {
			return "", nil //nolint:nilerr // no home directory means no default file
		}
		path = p
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if explicit == "" && errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateDocument(data); err != nil {
		return "", oops.With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
		return "", oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func flagKey(f *pflag.Flag) (string, any) {
	key, ok := flagKeys[f.Name]
	if !ok || !f.Changed {
		return "", nil
	}
	return key, f.Value.String()
}

// YAML renders the effective configuration with secrets redacted.
func (r *Result) YAML() ([]byte, error) {
	k := r.k.Copy()
	if k.String("mail.password") != "" {
		if err := k.Set("mail.password", redacted); err != nil {
			return nil, oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
		}
	}
	if dsn := k.String("database.url"); dsn != "" {
		if err := k.Set("database.url", redactURL(dsn)); err != nil {
			return nil, oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
		}
	}
	out, err := k.Marshal(kyaml.Parser())
	if err != nil {
		return nil, oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	return out, nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return u.Redacted()
}
