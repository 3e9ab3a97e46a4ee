// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package main

import (
	"context"
	"net"

	"github.com/samber/oops"

	"github.com/protecrescue/rescueauth/internal/config"
	"github.com/protecrescue/rescueauth/internal/kv"
	"github.com/protecrescue/rescueauth/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All nil fields use their default implementations.
type ServeDeps struct {
	// StoreFactory opens the key-value store for the configured driver.
	// Default: openStore.
	StoreFactory func(ctx context.Context, cfg config.Store) (kv.Store, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer.
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen.
	ListenerFactory func(network, address string) (net.Listener, error)
}

// ObservabilityServer interface wraps the methods used from
// observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// openStore opens the configured key-value driver.
func openStore(ctx context.Context, cfg config.Store) (kv.Store, error) {
	switch cfg.Driver {
	case "memory":
		return kv.NewMemoryStore(), nil
	case "redis":
		return kv.NewRedisStore(ctx, cfg.RedisAddr)
	case "postgres":
		return kv.NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return nil, oops.Code("CONFIG_INVALID").Errorf("unknown store driver %q", cfg.Driver)
	}
}
