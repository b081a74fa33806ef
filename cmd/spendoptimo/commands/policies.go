package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPoliciesCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Inspect cost policies",
	}
	cmd.AddCommand(newPoliciesListCommand(version))
	return cmd
}

func newPoliciesListCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the active cost policies",
		Long: `List the cost policy in effect for each resource kind.

Built-in company defaults apply unless policy documents are configured
under policy.paths.`,
		Example: `  # List active policies
  spendoptimo policies list

  # As JSON
  spendoptimo policies list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, version)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			policies := app.store.List()
			if jsonOutput {
				return printJSON(map[string]interface{}{
					"version":  app.store.Version(),
					"policies": policies,
				})
			}

			fmt.Printf("Policy version: %s\n\n", app.store.Version())
			for _, pol := range policies {
				fmt.Printf("%s:\n", pol.Kind)
				if pol.Rationale != "" {
					fmt.Printf("  rationale: %s\n", pol.Rationale)
				}
				if len(pol.DisallowedTypePatterns) > 0 {
					fmt.Printf("  disallowed types: %s\n", strings.Join(pol.DisallowedTypePatterns, ", "))
				}
				if len(pol.RecommendedTypes) > 0 {
					fmt.Printf("  recommended: %s\n", strings.Join(pol.RecommendedTypes, ", "))
				}
				if len(pol.DisallowedStorageTypes) > 0 {
					fmt.Printf("  disallowed storage: %s\n", strings.Join(pol.DisallowedStorageTypes, ", "))
				}
				if len(pol.AllowedStorageClasses) > 0 {
					fmt.Printf("  allowed storage classes: %s\n", strings.Join(pol.AllowedStorageClasses, ", "))
				}
				if pol.MaxMemoryMB > 0 {
					fmt.Printf("  max memory: %d MB\n", pol.MaxMemoryMB)
				}
				if pol.MaxTimeoutSeconds > 0 {
					fmt.Printf("  max timeout: %ds\n", pol.MaxTimeoutSeconds)
				}
				if pol.MaxReservedConcurrency > 0 {
					fmt.Printf("  max reserved concurrency: %d\n", pol.MaxReservedConcurrency)
				}
				if pol.MaxSizeGB > 0 {
					fmt.Printf("  max size: %d GB\n", pol.MaxSizeGB)
				}
				if pol.MaxAllocatedStorageGB > 0 {
					fmt.Printf("  max allocated storage: %d GB\n", pol.MaxAllocatedStorageGB)
				}
				if len(pol.ExceptionTags) > 0 {
					fmt.Printf("  exception tags: %v\n", pol.ExceptionTags)
				}
				fmt.Println()
			}
			return nil
		},
	}
}
