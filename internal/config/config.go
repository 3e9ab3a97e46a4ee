// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

// Package config loads service configuration from a YAML file with
// command-line flag overrides, layered over built-in defaults.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Server holds listener addresses.
type Server struct {
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// Store selects and parameterizes the key-value driver.
type Store struct {
	Driver      string `koanf:"driver"`
	RedisAddr   string `koanf:"redis_addr"`
	DatabaseURL string `koanf:"database_url"`
}

// Security holds the credential-core tunables.
type Security struct {
	Iterations         int  `koanf:"iterations"`
	LockThreshold      int  `koanf:"lock_threshold"`
	LockDurationMs     int  `koanf:"lock_duration_ms"`
	AllowPlainFallback bool `koanf:"allow_plain_fallback"`
}

// LockDuration returns the lockout window as a duration.
func (s Security) LockDuration() time.Duration {
	return time.Duration(s.LockDurationMs) * time.Millisecond
}

// Log holds logging options.
type Log struct {
	Format string `koanf:"format"`
}

// Config is the full service configuration.
type Config struct {
	Server   Server   `koanf:"server"`
	Store    Store    `koanf:"store"`
	Security Security `koanf:"security"`
	Log      Log      `koanf:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			ListenAddr:  "127.0.0.1:8080",
			MetricsAddr: "127.0.0.1:9100",
		},
		Store: Store{
			Driver: "memory",
		},
		Security: Security{
			Iterations:     200000,
			LockThreshold:  3,
			LockDurationMs: 30000,
		},
		Log: Log{
			Format: "json",
		},
	}
}

// defaults flattens Default() for the koanf confmap provider.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"server.listen_addr":            d.Server.ListenAddr,
		"server.metrics_addr":           d.Server.MetricsAddr,
		"store.driver":                  d.Store.Driver,
		"store.redis_addr":              d.Store.RedisAddr,
		"store.database_url":            d.Store.DatabaseURL,
		"security.iterations":           d.Security.Iterations,
		"security.lock_threshold":       d.Security.LockThreshold,
		"security.lock_duration_ms":     d.Security.LockDurationMs,
		"security.allow_plain_fallback": d.Security.AllowPlainFallback,
		"log.format":                    d.Log.Format,
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then flags. Flag names mirror config keys ("store.driver",
// "security.iterations"); flags left at their zero default do not override
// file values.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, oops.Code("CONFIG_DEFAULTS_FAILED").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			return oops.Code("CONFIG_INVALID").Errorf("store.redis_addr is required for the redis driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("store.database_url is required for the postgres driver")
		}
	default:
		return oops.Code("CONFIG_INVALID").Errorf("store.driver must be memory, redis or postgres, got %q", c.Store.Driver)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.Security.Iterations <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("security.iterations must be positive")
	}
	if c.Security.LockThreshold <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("security.lock_threshold must be positive")
	}
	if c.Security.LockDurationMs <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("security.lock_duration_ms must be positive")
	}
	return nil
}
