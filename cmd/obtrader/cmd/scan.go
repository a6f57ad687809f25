package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/obtrader/backtest"
	"github.com/rustyeddy/obtrader/market"
	"github.com/rustyeddy/obtrader/orderblock"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <bars.csv>",
	Short: "List the order blocks detected in a bar file",
	Long: `Scan runs the order block detector over every bar of a CSV file and
prints each candidate with its level and the bar that completed it.

Example:
  obtrader scan data/nq-1m.csv --bearish --choch`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var (
	scanBearish bool
	scanChoch   bool
	scanLagged  bool
	scanTF      time.Duration
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&scanBearish, "bearish", false, "detect bearish blocks instead of bullish")
	scanCmd.Flags().BoolVar(&scanChoch, "choch", false, "require a change of character")
	scanCmd.Flags().BoolVar(&scanLagged, "lagged", false, "measure inefficiency on the previous pair of bars")
	scanCmd.Flags().DurationVar(&scanTF, "timeframe", 0, "aggregate source bars to this timeframe first")
}

func runScan(cmd *cobra.Command, args []string) error {
	bars, err := backtest.LoadBars(args[0], time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	if scanTF > 0 {
		bars = market.Aggregate(bars, scanTF, 1)
	}

	opts := orderblock.Options{
		Direction:                orderblock.Bullish,
		RequireChangeOfCharacter: scanChoch,
		LaggedInefficiency:       scanLagged,
	}
	if scanBearish {
		opts.Direction = orderblock.Bearish
	}

	found := orderblock.Scan(bars, opts)
	log.Info().Int("bars", len(bars)).Int("blocks", len(found)).Str("direction", opts.Direction.String()).Msg("scan complete")

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDIRECTION\tLEVEL\tSOURCE")
	for _, c := range found {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\n", c.Time.Format(time.RFC3339), c.Direction, c.Level, c.SourceBarIndex)
	}
	return w.Flush()
}
