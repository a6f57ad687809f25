package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/obtrader/backtest"
	"github.com/rustyeddy/obtrader/market"
	"github.com/spf13/cobra"
)

var barsCmd = &cobra.Command{
	Use:   "bars <bars.csv>",
	Short: "Report coverage and gaps of a bar file",
	Long: `Bars loads a bar CSV and prints how many bars are present, how many are
missing for the given timeframe and how the gaps classify (weekend,
suspicious, minor).

Example:
  obtrader bars data/nq-1m.csv --timeframe 1m --gaps`,
	Args: cobra.ExactArgs(1),
	RunE: runBars,
}

var (
	barsTF   time.Duration
	barsGaps bool
)

func init() {
	rootCmd.AddCommand(barsCmd)

	barsCmd.Flags().DurationVar(&barsTF, "timeframe", time.Minute, "expected spacing between bars")
	barsCmd.Flags().BoolVar(&barsGaps, "gaps", false, "list every non-minor gap")
}

func runBars(cmd *cobra.Command, args []string) error {
	bars, err := backtest.LoadBars(args[0], time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	out := cmd.OutOrStdout()
	market.Stats(bars, barsTF).Print(out, barsTF)

	if barsGaps {
		for _, g := range market.Gaps(bars, barsTF) {
			if g.Kind == "minor" {
				continue
			}
			fmt.Fprintf(out, "%s  +%d bars  %s\n", g.After.Format(time.RFC3339), g.Len, g.Kind)
		}
	}
	return nil
}
