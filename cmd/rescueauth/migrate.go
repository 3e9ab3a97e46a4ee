// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/protecrescue/rescueauth/internal/auth"
	"github.com/protecrescue/rescueauth/internal/config"
	"github.com/protecrescue/rescueauth/internal/kv"
)

const defaultMigrateTimeout = 30 * time.Second

// migrateConfig holds configuration for the migrate subcommand.
type migrateConfig struct {
	down       bool
	seedLegacy string
	timeout    time.Duration
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cfg := &migrateConfig{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run schema migrations for the postgres driver",
		Long: `Apply the kv_records schema to the configured PostgreSQL database.
With --seed-legacy, additionally import an old identifier/password export as
legacy credential records; they are migrated to the hashed form on each
account's first successful login.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.down, "down", false, "roll the schema back instead of applying it")
	cmd.Flags().StringVar(&cfg.seedLegacy, "seed-legacy", "", "JSON file of legacy identifier/password pairs to import")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultMigrateTimeout, "timeout for database operations")

	return cmd
}

func runMigrate(cmd *cobra.Command, migrateCfg *migrateConfig) error {
	cfg, err := config.Load(resolveConfigFile(), nil)
	if err != nil {
		return err
	}
	if cfg.Store.Driver != "postgres" {
		return oops.Code("CONFIG_INVALID").Errorf("migrate requires store.driver=postgres, got %q", cfg.Store.Driver)
	}

	migrator, err := kv.NewMigrator(cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		_ = migrator.Close() //nolint:errcheck // best effort on exit
	}()

	if migrateCfg.down {
		cmd.Println("Rolling back schema...")
		if err := migrator.Down(); err != nil {
			return err
		}
		cmd.Println("Rollback completed")
		return nil
	}

	cmd.Println("Applying schema...")
	if err := migrator.Up(); err != nil {
		return err
	}
	cmd.Println("Schema up to date")

	if migrateCfg.seedLegacy == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), migrateCfg.timeout)
	defer cancel()
	return seedLegacy(ctx, cmd, cfg, migrateCfg.seedLegacy)
}

// seedLegacy imports an old export of bare identifier/password pairs as
// unmigrated legacy records. Existing identifiers are skipped, so re-running
// an import is safe.
func seedLegacy(ctx context.Context, cmd *cobra.Command, cfg config.Config, path string) error {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return oops.Code("SEED_READ_FAILED").With("path", path).Wrap(err)
	}

	var entries []struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return oops.Code("SEED_DECODE_FAILED").With("path", path).Wrap(err)
	}

	store, err := kv.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close() //nolint:errcheck // best effort on exit
	}()

	creds := auth.NewCredentialStore(store, auth.NewDeriver(nil), nil,
		auth.WithIterations(cfg.Security.Iterations))

	imported, skipped := 0, 0
	for _, entry := range entries {
		_, err := creds.ImportLegacy(ctx, entry.Identifier, entry.Password)
		if errors.Is(err, auth.ErrDuplicateIdentifier) {
			skipped++
			continue
		}
		if err != nil {
			return err
		}
		imported++
	}

	cmd.Printf("Imported %d legacy records (%d already present)\n", imported, skipped)
	return nil
}
