package cli

import (
	"fmt"

	"newsfinder/contexts/experimentation/abtest-engine/adapters/memory"
	"newsfinder/contexts/experimentation/abtest-engine/application/registry"
	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	"newsfinder/internal/platform/seed"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate-campaigns",
		Short: "Check a campaign definition file",
		Long: `Decode and validate a campaign YAML file, then build the campaign registry
from it. Exits non-zero on the first problem found.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("file", file); err != nil {
				return err
			}
			campaigns, err := seed.LoadFile(file, seed.Defaults{Prior: entities.UniformPrior})
			if err != nil {
				return err
			}
			if _, err := registry.New(campaigns, memory.NewStore(nil)); err != nil {
				return fmt.Errorf("campaign registry: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, campaign := range campaigns {
				policyName := string(campaign.Policy)
				if policyName == "" {
					policyName = "default"
				}
				fmt.Fprintf(out, "%s: %d variants, policy %s, prior Beta(%g, %g)\n",
					campaign.CampaignID, len(campaign.Variants), policyName, campaign.Prior.Alpha, campaign.Prior.Beta)
				if len(campaign.Variants) != 2 {
					fmt.Fprintf(out, "  warning: assignment policies only serve two-variant campaigns\n")
				}
			}
			fmt.Fprintf(out, "%d campaign(s) ok\n", len(campaigns))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "config/campaigns.yaml", "Campaign definition file")
	return cmd
}
