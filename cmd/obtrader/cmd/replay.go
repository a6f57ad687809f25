package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/obtrader/backtest"
	"github.com/rustyeddy/obtrader/engine"
	"github.com/rustyeddy/obtrader/session"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Stream bars for one or more instruments through independent engines",
	Long: `Replay merges bar files by time and streams them through one engine per
instrument. Intents and signals are logged; nothing is executed. With a
checkpoint directory the mitigation state survives restarts on the same
trading day.

Example:
  obtrader replay --bars NQ=data/nq.csv --bars ES=data/es.csv --checkpoints ./state`,
	RunE: runReplay,
}

var (
	replayBars        []string
	replayCheckpoints string
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringArrayVar(&replayBars, "bars", nil, "SYMBOL=path to a bar CSV (repeatable, required)")
	replayCmd.Flags().StringVar(&replayCheckpoints, "checkpoints", "", "checkpoint directory (overrides config)")
	replayCmd.MarkFlagRequired("bars")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := replayCheckpoints
	if dir == "" {
		dir = cfg.Session.CheckpointDir
	}
	var opts []engine.Option
	if dir != "" {
		store, err := session.NewFileStore(dir)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithCheckpoints(store))
	}

	sink := engine.LogSink{Log: log.With().Str("component", "alerts").Logger()}

	var (
		engines []*engine.Engine
		events  []engine.Event
	)
	for _, spec := range replayBars {
		symbol, path, ok := strings.Cut(spec, "=")
		if !ok || symbol == "" || path == "" {
			return fmt.Errorf("--bars %q: want SYMBOL=path", spec)
		}

		icfg := *cfg
		if symbol != cfg.Instrument.Symbol {
			icfg.Instrument.Symbol = symbol
			icfg.Instrument.TickSize = 0
			icfg.Instrument.PointValue = 0
		}
		ecfg, err := icfg.EngineConfig()
		if err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
		e, err := engine.New(ecfg, sink, log, opts...)
		if err != nil {
			return err
		}
		if err := e.Start(cmd.Context(), nil); err != nil {
			return err
		}
		engines = append(engines, e)

		bars, err := backtest.LoadBars(path, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
		for _, b := range bars {
			events = append(events, engine.Bar(symbol, b))
		}
	}

	router, err := engine.NewRouter(engines...)
	if err != nil {
		return err
	}

	sort.SliceStable(events, func(i, k int) bool {
		return events[i].Bar.Time.Before(events[k].Bar.Time)
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ch := make(chan engine.Event, 64)
	go func() {
		defer close(ch)
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	errs := make(chan error, 16)
	done := make(chan int)
	go func() {
		n := 0
		for err := range errs {
			n++
			log.Warn().Err(err).Msg("event rejected")
		}
		done <- n
	}()

	err = router.Run(ctx, ch, errs)
	close(errs)
	rejected := <-done
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, name := range router.Instruments() {
		e, _ := router.Engine(name)
		s := e.Snapshot()
		fmt.Fprintf(out, "%-6s phase=%s position=%s realized=%.2f last=%s\n",
			name, s.Phase, s.Position.Side, s.Profit.Realized(), s.LastBar.Format(time.RFC3339))
	}
	if rejected > 0 {
		fmt.Fprintf(out, "%d events rejected\n", rejected)
	}
	return nil
}
