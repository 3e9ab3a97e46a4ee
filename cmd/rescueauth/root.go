// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/protecrescue/rescueauth/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// resolveConfigFile returns the --config value, or the config file in the
// XDG config directory when the flag is unset and that file exists.
func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	return xdg.DefaultConfigFile()
}

// NewRootCmd creates the root command for the rescueauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescueauth",
		Short: "rescueauth - credential management for the Protec Rescue platform",
		Long: `rescueauth turns user passwords into durable, verifiable secret
artifacts, gates repeated failed attempts, and issues session handles
for the Protec Rescue training platform.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStrengthCmd())

	return cmd
}
