package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(version string) *cobra.Command {
	var batchFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a recommendation batch without executing it",
		Long: `Validate a recommendation batch against cost policies and the OPA gate.

Nothing is executed: each recommendation is reported as accepted or
rejected with the rejection reason.`,
		Example: `  # Validate a batch
  spendoptimo validate -f batch.json

  # Validate against custom policy documents
  spendoptimo validate -f batch.json -c spendoptimo.yaml`,
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

			type result struct {
				ResourceID string `json:"resource_id"`
				Accepted   bool   `json:"accepted"`
				Reason     string `json:"reason,omitempty"`
			}

			results := make([]result, 0, len(recs))
			rejected := 0
			for i := range recs {
				r := result{ResourceID: recs[i].ResourceID, Accepted: true}
				if rejection := app.validator.Validate(ctx, &recs[i]); rejection != nil {
					r.Accepted = false
					r.Reason = rejection.Reason
					rejected++
				}
				results = append(results, r)
			}

			if jsonOutput {
				if err := printJSON(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.Accepted {
						fmt.Printf("  ✔ %s\n", r.ResourceID)
					} else {
						fmt.Printf("  ✘ %s: %s\n", r.ResourceID, r.Reason)
					}
				}
				fmt.Printf("\n%d accepted, %d rejected\n", len(results)-rejected, rejected)
			}

			if rejected > 0 {
				return fmt.Errorf("%d of %d recommendations rejected", rejected, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&batchFile, "file", "f", "", "recommendation batch file (JSON)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
