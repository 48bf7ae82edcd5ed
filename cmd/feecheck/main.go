// Command feecheck validates fee schedule files offline and prints the
// shipped default structures.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/efreitasn/feeschedule/internal/domain"
	"github.com/efreitasn/feeschedule/internal/schedulefile"
	"github.com/efreitasn/feeschedule/internal/validation"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "feecheck",
		Short:        "Check fee schedule files against the venue's fee bounds",
		SilenceUsage: true,
	}
	root.AddCommand(newValidateCmd(), newDefaultsCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate every market in one or more fee schedule files",
		Long: `Validate loads each YAML fee schedule file and runs every market's
structure through the fee structure validator. It exits non-zero if any
file cannot be read or any structure is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failures := 0

			for _, path := range args {
				structures, err := schedulefile.Load(path)
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", path, err)
					failures++
					continue
				}
				for _, market := range domain.MarketTypes {
					fs, ok := structures[market]
					if !ok {
						continue
					}
					if err := validation.ValidateStructure(fs); err != nil {
						fmt.Fprintf(out, "%s: %s: %v\n", path, market, err)
						failures++
						continue
					}
					fmt.Fprintf(out, "%s: %s: ok (%d tiers)\n", path, market, len(fs.Tiers))
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d fee schedule check(s) failed", failures)
			}
			return nil
		},
	}
}

func newDefaultsCmd() *cobra.Command {
	var market string

	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the shipped default fee structures as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			structures := make(map[domain.MarketType]domain.FeeStructure)
			if market == "" {
				for _, m := range domain.MarketTypes {
					fs, _ := domain.DefaultFor(m)
					structures[m] = fs
				}
			} else {
				m, err := domain.ParseMarketType(market)
				if err != nil {
					return errors.New("unknown market " + market + ", must be one of: perp, spot")
				}
				fs, _ := domain.DefaultFor(m)
				structures[m] = fs
			}
			return schedulefile.FromDomain(structures).Encode(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&market, "market", "", "only print this market (perp or spot)")
	return cmd
}
