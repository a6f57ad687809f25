package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/obtrader/config"
	"github.com/rustyeddy/obtrader/pkg/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "obtrader",
	Short: "Order block detection and trading engine for futures bars",
	Long: `obtrader detects bullish order blocks in closed bars, tracks their
mitigation and turns the resulting green/red signals into order intents.

It provides tools for:
  - Backtesting the strategy against bar CSV files
  - Replaying bars through one engine per instrument
  - Scanning bar files for order blocks
  - Querying the trade journal
  - Generating and validating configuration files`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	cfgFile   string
	logLevel  string
	logPretty bool
	envFile   string

	log zerolog.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		log.Error().Err(err).Msg("command failed")
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults are used when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "human readable console logs")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with OBTRADER_* overrides")
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}
	level := logLevel
	pretty := logPretty
	if cfgFile != "" && level == "" {
		if cfg, err := config.LoadFromFile(cfgFile); err == nil {
			level = cfg.Log.Level
			pretty = pretty || cfg.Log.Pretty
		}
	}
	log = logger.New(logger.Config{Level: level, Pretty: pretty})
	logger.SetGlobalLogger(log)
	return nil
}

// loadConfig reads --config or falls back to the defaults with
// environment overrides applied.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		cfg := config.Default()
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("default config: %w", err)
		}
		return cfg, nil
	}
	return config.LoadFromFile(cfgFile)
}
