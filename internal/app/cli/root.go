package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the operator CLI for experiment campaigns.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "abtestctl",
		Short: "Operate newsfinder layout experiments",
		Long: `abtestctl inspects and exercises the A/B experiment engine.

Examples:
  abtestctl validate-campaigns --file config/campaigns.yaml
  abtestctl simulate --campaign home_layout --visits 5000 --rate a=0.10 --rate b=0.12
  abtestctl estimate --campaign home_layout`,
		SilenceUsage: true,
	}
	root.AddCommand(newValidateCommand())
	root.AddCommand(newSimulateCommand())
	root.AddCommand(newEstimateCommand())
	return root
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printEstimate(out io.Writer, estimate entities.CampaignEstimate) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tALPHA\tBETA\tMEAN\tOBSERVATIONS\t95% INTERVAL")
	for _, variant := range estimate.Variants {
		fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.4f\t%.0f\t[%.4f, %.4f]\n",
			variant.VariantID, variant.Alpha, variant.Beta, variant.Mean, variant.Observations,
			variant.CredibleLow, variant.CredibleHigh)
	}
	_ = w.Flush()
	if comparison := estimate.Comparison; comparison != nil {
		fmt.Fprintf(out, "\nP(%s > %s) = %.4f\n", comparison.VariantB, comparison.VariantA, comparison.ProbabilityBBeatA)
		fmt.Fprintf(out, "P(%s > %s) = %.4f\n", comparison.VariantA, comparison.VariantB, comparison.ProbabilityABeatB)
		fmt.Fprintf(out, "expected loss choosing %s = %.5f, choosing %s = %.5f\n",
			comparison.VariantA, comparison.ExpectedLossA, comparison.VariantB, comparison.ExpectedLossB)
		fmt.Fprintf(out, "lift of %s over %s = %+.2f%%\n", comparison.VariantB, comparison.VariantA, comparison.LiftOfB*100)
	}
}

func requireFlag(name string, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
