package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rustyeddy/obtrader/backtest"
	"github.com/rustyeddy/obtrader/config"
	"github.com/rustyeddy/obtrader/journal"
	"github.com/rustyeddy/obtrader/market"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay bars through the engine against a simulated broker",
	Long: `Backtest feeds historical bars through the order block engine. Intents
are filled by a simulated broker at their price hint and the fills are
fed back so realized P&L and targets behave as they would live.

Bar CSV format: time,open,high,low,close[,volume] where time is the bar's
close time.

Example:
  obtrader backtest --config obtrader.yaml --bars data/nq-1m.csv --intrabar --org run.org`,
	RunE: runBacktest,
}

var (
	btBarsPath  string
	btFrom      string
	btTo        string
	btIntrabar  bool
	btCloseEnd  bool
	btSlippage  float64
	btOrgPath   string
	btJournalDB string
	btTimeframe time.Duration
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btBarsPath, "bars", "b", "", "path to bar CSV (required)")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "first trading day to include (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "first trading day to exclude (YYYY-MM-DD)")
	backtestCmd.Flags().BoolVar(&btIntrabar, "intrabar", false, "replay a synthesized OHLC path inside each bar")
	backtestCmd.Flags().BoolVar(&btCloseEnd, "close-end", true, "close the open position at the end of the data")
	backtestCmd.Flags().Float64Var(&btSlippage, "slippage", 0, "adverse slippage per fill in price units")
	backtestCmd.Flags().StringVar(&btOrgPath, "org", "", "write an Org-mode report to this path")
	backtestCmd.Flags().StringVar(&btJournalDB, "journal", "", "SQLite journal path (overrides config)")
	backtestCmd.Flags().DurationVar(&btTimeframe, "timeframe", 0, "aggregate source bars to this timeframe (e.g. 5m)")

	backtestCmd.MarkFlagRequired("bars")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if btJournalDB != "" {
		cfg.Journal = config.JournalConfig{Type: "sqlite", DBPath: btJournalDB}
	}
	ecfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	from, err := parseDay(btFrom, ecfg.Session.Location)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseDay(btTo, ecfg.Session.Location)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	feed, err := openFeed(btBarsPath, from, to, btTimeframe)
	if err != nil {
		return err
	}

	j, db, err := openJournal(cfg.Journal)
	if err != nil {
		feed.Close()
		return err
	}
	if j != nil {
		defer j.Close()
	}

	r, err := backtest.NewRunner(ecfg, feed, j, backtest.RunnerOptions{
		Intrabar: btIntrabar,
		CloseEnd: btCloseEnd,
		Slippage: btSlippage,
	}, log)
	if err != nil {
		feed.Close()
		return err
	}

	res, err := r.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	backtest.PrintResult(cmd.OutOrStdout(), res)

	cfgYAML, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	run := res.BacktestRun(filepath.Base(btBarsPath), cfgYAML)

	if btOrgPath != "" {
		run.OrgPath = btOrgPath
		if err := run.WriteBacktestOrg(); err != nil {
			return fmt.Errorf("write org: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Org Report:    %s\n", btOrgPath)
	}
	if db != nil {
		if err := db.RecordBacktest(cmd.Context(), run); err != nil {
			return fmt.Errorf("record backtest: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Run ID:        %s\n", run.RunID)
	}
	return nil
}

// openFeed streams the file as is, or loads and aggregates it when a
// timeframe is given.
func openFeed(path string, from, to time.Time, tf time.Duration) (backtest.BarFeed, error) {
	if tf <= 0 {
		feed, err := backtest.NewCSVBarFeed(path, from, to)
		if err != nil {
			return nil, fmt.Errorf("open bars: %w", err)
		}
		return feed, nil
	}
	bars, err := backtest.LoadBars(path, from, to)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	return &backtest.SliceFeed{Bars: market.Aggregate(bars, tf, 1)}, nil
}

// openJournal opens the configured journal. The SQLite handle is also
// returned when that backend is used; both are nil when journaling is
// off.
func openJournal(jc config.JournalConfig) (journal.Journal, *journal.SQLite, error) {
	switch jc.Type {
	case "sqlite":
		db, err := journal.NewSQLite(jc.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		return db, db, nil
	case "csv":
		j, err := journal.NewCSV(jc.TradesFile, jc.SignalsFile)
		if err != nil {
			return nil, nil, err
		}
		return j, nil, nil
	default:
		return nil, nil, nil
	}
}

func parseDay(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}
