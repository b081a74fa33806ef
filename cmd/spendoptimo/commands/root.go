// Package commands implements the spendoptimo CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spendoptimo",
		Short: "SpendOptimo - Cloud Cost Optimization Engine",
		Long: `SpendOptimo executes cost optimization recommendations against cloud
resources through policy-gated, compensating workflows.

Features:
  - Per-kind remediation plans (compute, object store, function, database, volume)
  - Typed cost policies plus OPA/rego gating
  - Idempotent mutations with automatic rollback on failure
  - Append-only audit trail of every step attempt
  - Batch reports with applied savings totals`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newExecuteCommand(version))
	rootCmd.AddCommand(newValidateCommand(version))
	rootCmd.AddCommand(newPlanCommand(version))
	rootCmd.AddCommand(newPoliciesCommand(version))
	rootCmd.AddCommand(newServeCommand(version))

	return rootCmd
}
