// Package backtest replays bars through an engine against the
// simulated broker.
package backtest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/obtrader/broker"
	"github.com/rustyeddy/obtrader/broker/sim"
	"github.com/rustyeddy/obtrader/engine"
	"github.com/rustyeddy/obtrader/journal"
	"github.com/rustyeddy/obtrader/market"
)

// RunnerOptions controls how the backtest runner behaves.
type RunnerOptions struct {
	// Intrabar replays a synthesized OHLC path before each bar close so
	// target, trailing and realtime exits can fire inside the bar.
	Intrabar bool

	// If true, close the open position at the last close.
	// Close reason will be CloseReason (or "end-of-data" if empty).
	CloseEnd    bool
	CloseReason string

	// Slippage in price units, applied by the simulated broker.
	Slippage float64
}

// Runner drives an engine forward using a feed and the simulated broker.
type Runner struct {
	Engine  *engine.Engine
	Broker  *sim.Broker
	Feed    BarFeed
	Options RunnerOptions

	log zerolog.Logger
}

// NewRunner wires an engine to a simulated broker. Intents go to the
// broker; signals are journaled when j is not nil.
func NewRunner(cfg engine.Config, feed BarFeed, j journal.Journal, opts RunnerOptions, log zerolog.Logger, eopts ...engine.Option) (*Runner, error) {
	b := sim.New(j, log, cfg.Instrument)
	b.Slippage = opts.Slippage

	sinks := engine.Sinks{engine.Intents(b)}
	if j != nil {
		sinks = append(sinks, SignalJournal{Journal: j, Log: log})
	}
	eng, err := engine.New(cfg, sinks, log, eopts...)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Engine:  eng,
		Broker:  b,
		Feed:    feed,
		Options: opts,
		log:     log.With().Str("component", "backtest").Logger(),
	}, nil
}

// Run executes the backtest loop:
//  1. read next bar
//  2. optionally replay its intrabar path through OnPrice
//  3. engine.OnBar(bar)
//  4. fills from the broker go back into the engine after every call
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("backtest: Engine is required")
	}
	if r.Broker == nil {
		return Result{}, fmt.Errorf("backtest: Broker is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	defer r.Feed.Close()

	if err := r.Engine.Start(ctx, r.Broker); err != nil {
		return Result{}, err
	}

	var (
		first, last market.Candle
		bars        int
		skipped     int
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		c, ok, err := r.Feed.Next()
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}

		if r.Options.Intrabar && c.Numeric() && (bars == 0 || c.Time.After(last.Time)) {
			for _, p := range Path(c) {
				if err := r.Engine.OnPrice(p); err != nil {
					return Result{}, err
				}
				if err := r.settle(); err != nil {
					return Result{}, err
				}
			}
		}
		if err := r.Engine.OnBar(c); err != nil {
			r.log.Warn().Err(err).Time("bar", c.Time).Msg("bar rejected")
			skipped++
			continue
		}
		if err := r.settle(); err != nil {
			return Result{}, err
		}

		if bars == 0 {
			first = c
		}
		last = c
		bars++
	}

	if r.Options.CloseEnd && bars > 0 {
		reason := r.Options.CloseReason
		if reason == "" {
			reason = "end-of-data"
		}
		r.Broker.Close(r.Engine.Instrument(), last.Close, last.Time, reason)
	}

	res := Summarize(r.Broker.Closed())
	res.Instrument = r.Engine.Instrument()
	res.Start = first.Time
	res.End = last.Time
	res.Bars = bars
	res.Skipped = skipped
	res.EngineRealized = r.Engine.Snapshot().Profit.Realized()

	r.log.Info().
		Int("bars", bars).
		Int("trades", len(res.Trades)).
		Float64("net_pl", res.NetPL).
		Msg("backtest complete")
	return res, nil
}

// settle executes queued intents and feeds the fills back.
func (r *Runner) settle() error {
	for _, f := range r.Broker.Process() {
		if err := r.Engine.OnFill(f); err != nil {
			return err
		}
	}
	return nil
}

// SignalJournal records published signals.
type SignalJournal struct {
	Journal journal.Journal
	Log     zerolog.Logger
}

func (SignalJournal) OnIntent(broker.Intent) {}

func (s SignalJournal) OnSignal(sig engine.Signal) {
	err := s.Journal.RecordSignal(journal.SignalRecord{
		Time:       sig.Time,
		Instrument: sig.Instrument,
		Kind:       sig.Kind.String(),
		Level:      sig.Level,
	})
	if err != nil {
		s.Log.Warn().Err(err).Msg("signal not journaled")
	}
}
