package cli

import (
	"log/slog"
	"os"

	"newsfinder/internal/app/bootstrap"
	"newsfinder/internal/platform/config"

	"github.com/spf13/cobra"
)

func newEstimateCommand() *cobra.Command {
	var campaignID string
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Print the posterior estimate for a campaign",
		Long: `Connect to the store named by ABTEST_STORE and print each variant's
posterior together with the pairwise comparison.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("campaign", campaignID); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			runtime, err := bootstrap.BuildRuntime(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			estimate, err := runtime.Module.Engine.Estimate(cmd.Context(), campaignID)
			if err != nil {
				return err
			}
			printEstimate(cmd.OutOrStdout(), estimate)
			return nil
		},
	}
	cmd.Flags().StringVarP(&campaignID, "campaign", "c", "", "Campaign id")
	return cmd
}
