// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/protecrescue/rescueauth/internal/auth"
	"github.com/protecrescue/rescueauth/internal/config"
	"github.com/protecrescue/rescueauth/internal/httpapi"
	"github.com/protecrescue/rescueauth/internal/kv"
	"github.com/protecrescue/rescueauth/internal/logging"
	"github.com/protecrescue/rescueauth/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential API server",
		Long: `Start the credential API server: registration, login, logout and
password strength endpoints, plus a metrics/health listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	// Flag names mirror config keys so they layer through the config loader.
	cmd.Flags().String("server.listen_addr", "", "API listen address")
	cmd.Flags().String("server.metrics_addr", "", "metrics/health listen address (empty = disabled)")
	cmd.Flags().String("store.driver", "", "key-value driver (memory, redis, postgres)")
	cmd.Flags().String("store.redis_addr", "", "redis address for the redis driver")
	cmd.Flags().String("store.database_url", "", "database URL for the postgres driver")
	cmd.Flags().Int("security.iterations", 0, "KDF iteration count")
	cmd.Flags().Int("security.lock_threshold", 0, "failures before lockout")
	cmd.Flags().Int("security.lock_duration_ms", 0, "lockout window in milliseconds")
	cmd.Flags().Bool("security.allow_plain_fallback", false, "enable the last-resort non-cryptographic derivation")
	cmd.Flags().String("log.format", "", "log format (json or text)")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies. A nil
// deps uses the defaults.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.StoreFactory == nil {
		deps.StoreFactory = openStore
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, rc observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, rc)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}

	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("rescueauth", version, cfg.Log.Format)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := deps.StoreFactory(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("store close failed", "error", closeErr)
		}
	}()

	service := buildService(store, cfg, logger)
	handler := httpapi.NewHandler(service, logger)

	listener, err := deps.ListenerFactory("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return oops.Code("SERVE_LISTEN_FAILED").
			With("addr", cfg.Server.ListenAddr).
			Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			serveErrCh <- serveErr
		}
	}()
	logger.Info("credential API started", "addr", listener.Addr().String(), "driver", cfg.Store.Driver)

	var obsErrCh <-chan error
	var obsServer ObservabilityServer
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, func() bool { return true })
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return err
		}
	}

	// A nil obsErrCh never fires, so the select is safe when the metrics
	// listener is disabled.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-serveErrCh:
		logger.Error("API server failed", "error", err)
	case obsErr, ok := <-obsErrCh:
		if ok {
			logger.Error("observability server failed", "error", obsErr)
			err = obsErr
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := httpSrv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("API shutdown failed", "error", shutdownErr)
	}
	if obsServer != nil {
		if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
			logger.Error("observability shutdown failed", "error", stopErr)
		}
	}

	return err
}

// buildService assembles the credential core from configuration.
func buildService(store kv.Store, cfg config.Config, logger *slog.Logger) *auth.Service {
	var deriverOpts []auth.DeriverOption
	if cfg.Security.AllowPlainFallback {
		logger.Warn("plain derivation fallback enabled; credentials derived through it have no cryptographic protection")
		deriverOpts = append(deriverOpts, auth.WithPlainFallback())
	}
	deriver := auth.NewDeriver(logger, deriverOpts...)

	creds := auth.NewCredentialStore(store, deriver, logger,
		auth.WithIterations(cfg.Security.Iterations))
	guard := auth.NewLockoutGuard(store,
		auth.WithLockThreshold(cfg.Security.LockThreshold),
		auth.WithLockDuration(cfg.Security.LockDuration()))
	sessions := auth.NewSessionIssuer(store)

	return auth.NewService(creds, guard, sessions, logger)
}
