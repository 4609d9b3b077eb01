package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"text/tabwriter"

	abtestengine "newsfinder/contexts/experimentation/abtest-engine"
	"newsfinder/contexts/experimentation/abtest-engine/application/policy"
	"newsfinder/contexts/experimentation/abtest-engine/application/simulation"
	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
	"newsfinder/internal/platform/seed"

	"github.com/spf13/cobra"
)

func newSimulateCommand() *cobra.Command {
	var (
		file       string
		campaignID string
		visits     int
		rates      map[string]string
		seedValue  uint64
		policyName string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay synthetic traffic against an in-memory engine",
		Long: `Drive a fresh in-memory engine with synthetic visitors. Each visitor is
assigned a variant and converts with that variant's --rate (default 0.5).
Nothing is written to the configured store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("campaign", campaignID); err != nil {
				return err
			}
			conversionRates := make(map[string]float64, len(rates))
			for variantID, raw := range rates {
				rate, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return fmt.Errorf("--rate %s=%s: %w", variantID, raw, err)
				}
				conversionRates[variantID] = rate
			}
			defaults := seed.Defaults{Prior: entities.UniformPrior}
			if policyName != "" {
				parsed, err := policy.ParseName(policyName)
				if err != nil {
					return fmt.Errorf("--policy %q: %w", policyName, err)
				}
				defaults.Policy = parsed
			}
			campaigns, err := seed.LoadFile(file, defaults)
			if err != nil {
				return err
			}
			if policyName != "" {
				for i := range campaigns {
					campaigns[i].Policy = defaults.Policy
				}
			}

			random := policy.NewSeededRandom(seedValue)
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			module, err := abtestengine.NewInMemoryModule(campaigns, random, logger)
			if err != nil {
				return err
			}
			result, err := module.Simulator.Run(cmd.Context(), simulation.SimulationInput{
				CampaignID:      campaignID,
				Visits:          visits,
				ConversionRates: conversionRates,
				UserPrefix:      "sim",
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "campaign %s, %d visits\n\n", result.CampaignID, result.Visits)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VARIANT\tIMPRESSIONS\tCONVERSIONS\tRATE")
			for _, tally := range result.Tallies {
				rate := 0.0
				if tally.Impressions > 0 {
					rate = float64(tally.Conversions) / float64(tally.Impressions)
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\n", tally.VariantID, tally.Impressions, tally.Conversions, rate)
			}
			_ = w.Flush()
			fmt.Fprintln(out)
			printEstimate(out, result.Estimate)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "config/campaigns.yaml", "Campaign definition file")
	cmd.Flags().StringVarP(&campaignID, "campaign", "c", "", "Campaign id to simulate")
	cmd.Flags().IntVarP(&visits, "visits", "n", 1000, "Number of synthetic visitors")
	cmd.Flags().StringToStringVar(&rates, "rate", nil, "True conversion rate per variant, e.g. --rate a=0.1")
	cmd.Flags().Uint64Var(&seedValue, "seed", 1, "Random seed for assignment and conversions")
	cmd.Flags().StringVar(&policyName, "policy", "", "Override every campaign's policy (thompson, uniform, egreedy, ucb1)")
	return cmd
}
