// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/protecrescue/rescueauth/internal/auth"
)

// NewStrengthCmd creates the strength subcommand.
func NewStrengthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strength [password]",
		Short: "Evaluate password strength without touching any store",
		Long: `Score a candidate password against the acceptance rules and print the
level (weak, medium, strong). Reads from stdin when no argument is given, so
the password stays out of shell history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := strengthInput(cmd, args)
			if err != nil {
				return err
			}

			strength := auth.EvaluateStrength(password)
			cmd.Printf("%s (%d/3)\n", strength.Label, strength.Level)
			if strength.Level < auth.MinAcceptedLevel {
				cmd.Println("Too weak for registration")
			}
			return nil
		},
	}
}

func strengthInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	if f, ok := cmd.InOrStdin().(*os.File); ok && isTerminal(f) {
		cmd.Print("Password: ")
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", oops.Code("STRENGTH_READ_FAILED").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
