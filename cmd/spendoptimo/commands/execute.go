package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

func newExecuteCommand(version string) *cobra.Command {
	var (
		batchFile string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a batch of optimization recommendations",
		Long: `Execute a batch of optimization recommendations against live resources.

Each recommendation is validated against cost policies, expanded into a
remediation plan, and executed with retries. Applied mutations are rolled
back automatically when a later step fails.`,
		Example: `  # Execute a batch
  spendoptimo execute -f batch.json

  # Dry run: validate and plan without touching resources
  spendoptimo execute -f batch.json --dry-run

  # Machine-readable report
  spendoptimo execute -f batch.json --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := loadRecommendations(batchFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := newApp(ctx, version)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			opts := app.cfg.Engine.Options()
			if dryRun {
				opts.DryRun = true
			}

			report, err := app.engine.ExecuteBatch(ctx, recs, opts)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printReport(report)
			}

			if failed := len(report.Entries) - report.Succeeded(); failed > 0 {
				return fmt.Errorf("%d of %d recommendations did not succeed", failed, len(report.Entries))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&batchFile, "file", "f", "", "recommendation batch file (JSON)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and plan without mutating resources")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func printReport(report *optimizer.BatchReport) {
	fmt.Printf("Batch %s: %d/%d succeeded in %s\n\n",
		report.BatchID, report.Succeeded(), len(report.Entries),
		report.CompletedAt.Sub(report.StartedAt).Round(1e6))

	for _, entry := range report.Entries {
		marker := "✔"
		switch entry.Status {
		case optimizer.StatusFailed:
			marker = "✘"
		case optimizer.StatusRejected:
			marker = "–"
		}
		fmt.Printf("  %s %-24s %-10s %s\n", marker, entry.ResourceID, entry.Status, entry.Summary)
	}

	fmt.Printf("\nEstimated monthly savings applied: $%.2f\n", report.TotalEstimatedSavingsApplied)
}
