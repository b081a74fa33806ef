package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
)

func newPlanCommand(version string) *cobra.Command {
	var batchFile string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the remediation plans for a recommendation batch",
		Long: `Show the remediation plan each recommendation would execute.

Recommendations are validated first; rejected ones are listed with their
reason instead of a plan. No resource is touched.`,
		Example: `  # Show plans for a batch
  spendoptimo plan -f batch.json

  # Machine-readable plans
  spendoptimo plan -f batch.json --json`,
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

			type planned struct {
				ResourceID string          `json:"resource_id"`
				Rejected   string          `json:"rejected,omitempty"`
				Plan       *optimizer.Plan `json:"plan,omitempty"`
			}

			results := make([]planned, 0, len(recs))
			for i := range recs {
				rec := &recs[i]
				p := planned{ResourceID: rec.ResourceID}

				if rejection := app.validator.Validate(ctx, rec); rejection != nil {
					p.Rejected = rejection.Reason
					results = append(results, p)
					continue
				}
				plan, err := app.planner.Plan(rec)
				if err != nil {
					p.Rejected = err.Error()
					results = append(results, p)
					continue
				}
				p.Plan = plan
				results = append(results, p)
			}

			if jsonOutput {
				return printJSON(results)
			}

			for _, p := range results {
				if p.Rejected != "" {
					fmt.Printf("%s: rejected (%s)\n\n", p.ResourceID, p.Rejected)
					continue
				}
				fmt.Printf("%s (%s), %d steps:\n", p.ResourceID, p.Plan.ResourceKind, len(p.Plan.Steps))
				for i, st := range p.Plan.Steps {
					fmt.Printf("  %d. [%s] %s", i+1, st.Kind, st.Name)
					if len(st.Payload) > 0 {
						fmt.Printf(" %v", st.Payload)
					}
					fmt.Println()
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&batchFile, "file", "f", "", "recommendation batch file (JSON)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
