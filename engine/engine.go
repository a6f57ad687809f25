// Package engine runs the order block strategy for one instrument: bars
// and price updates go in, order intents and signals come out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/obtrader/broker"
	"github.com/rustyeddy/obtrader/market"
	"github.com/rustyeddy/obtrader/mitigation"
	"github.com/rustyeddy/obtrader/orderblock"
	"github.com/rustyeddy/obtrader/position"
	"github.com/rustyeddy/obtrader/risk"
	"github.com/rustyeddy/obtrader/session"
)

var (
	ErrMalformedBar      = errors.New("malformed bar")
	ErrOutOfOrder        = errors.New("out-of-order event")
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// Snapshot is a read-only view of an engine's state.
type Snapshot struct {
	Instrument  string
	Phase       session.Phase
	Position    position.State
	JustEntered bool
	Mitigation  mitigation.State
	Profit      risk.Accumulator
	Trailing    risk.TrailingStop
	LastBar     time.Time
}

// openTrade is what a pending exit needs to book realized P&L.
type openTrade struct {
	side  market.Side
	entry float64
	qty   float64
}

type Option func(*Engine)

// WithCheckpoints saves the mitigation state after every bar close and
// restores it during reconciliation on the same trading date.
func WithCheckpoints(s session.Store) Option {
	return func(e *Engine) { e.store = s }
}

// Engine owns all state for one instrument. It is not safe for
// concurrent use; feed it from one goroutine or through Run.
type Engine struct {
	cfg  Config
	log  zerolog.Logger
	sink Sink

	detector *orderblock.Detector
	tracker  *mitigation.Tracker
	machine  *position.Machine
	risk     *risk.Manager
	session  *session.Manager
	store    session.Store

	last    market.Candle
	hasLast bool

	pendingEntry string
	pendingExits map[string]openTrade

	needsEntryPrice bool
	checkpoint      *session.Checkpoint
}

func New(cfg Config, sink Sink, log zerolog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if cfg.Risk.PointValue <= 0 {
		cfg.Risk.PointValue = cfg.Instrument.PointValue
	}
	if sink == nil {
		sink = Sinks{}
	}
	name := cfg.Instrument.Name
	elog := log.With().Str("component", "engine").Str("instrument", name).Logger()

	e := &Engine{
		cfg:  cfg,
		log:  elog,
		sink: sink,
		detector: orderblock.NewDetector(orderblock.Options{
			Direction:                orderblock.Bullish,
			RequireChangeOfCharacter: cfg.ChangeOfCharacter,
			LaggedInefficiency:       cfg.LaggedInefficiency,
		}),
		tracker: mitigation.New(cfg.FirstSignal, orderblock.Bullish),
		machine: position.New(position.Config{
			Instrument: name,
			Cycle:      cfg.Cycle,
			Shorting:   cfg.Shorting,
			Quantity:   cfg.Quantity,
		}, log),
		risk:         risk.NewManager(cfg.Risk, log.With().Str("instrument", name).Logger()),
		session:      session.New(cfg.Session, log.With().Str("instrument", name).Logger()),
		pendingExits: make(map[string]openTrade),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

func (e *Engine) Instrument() string { return e.cfg.Instrument.Name }

func (e *Engine) Config() Config { return e.cfg }

// Start begins reconciliation. With a reporter the live position is
// fetched immediately; otherwise the engine waits for a position report
// or falls back to Synced after one bar-close evaluation.
func (e *Engine) Start(ctx context.Context, reporter broker.PositionReporter) error {
	e.session.Start()
	if e.session.Phase() != session.Reconciling {
		return nil
	}
	if reporter == nil {
		return nil
	}
	pos, err := reporter.Position(ctx, e.Instrument())
	if err != nil {
		e.log.Warn().Err(err).Msg("position report unavailable, waiting for fallback")
		return nil
	}
	e.reconcile(pos)
	return nil
}

// OnPositionReport completes reconciliation from an externally reported
// position. Reports outside Reconciling are ignored.
func (e *Engine) OnPositionReport(pos broker.Position) error {
	if pos.Instrument != "" && pos.Instrument != e.Instrument() {
		return fmt.Errorf("position report for %q: %w", pos.Instrument, ErrUnknownInstrument)
	}
	if e.session.Phase() != session.Reconciling {
		e.log.Debug().Str("side", pos.Side.String()).Msg("position report ignored, not reconciling")
		return nil
	}
	e.reconcile(pos)
	return nil
}

func (e *Engine) reconcile(pos broker.Position) {
	fallback := 0.0
	if e.hasLast {
		fallback = e.last.Close
	}
	out, ok := e.session.Reconcile(pos, fallback)
	if !ok {
		return
	}

	e.tracker.Reset()
	e.risk.OnFlat()
	e.machine.Adopt(position.State{})
	e.pendingEntry = ""
	clear(e.pendingExits)
	e.needsEntryPrice = false

	if e.store != nil {
		cp, found, err := e.store.Load(e.Instrument())
		switch {
		case err != nil:
			e.log.Warn().Err(err).Msg("checkpoint unreadable, starting fresh")
		case found:
			e.checkpoint = &cp
		}
	}
	if !e.session.LastDate().IsZero() {
		e.applyCheckpoint(e.session.LastDate())
	}

	if !out.Adopted {
		e.log.Info().Msg("reconciled flat")
		return
	}

	p := out.Position
	qty := p.Quantity
	if qty <= 0 {
		qty = e.cfg.Quantity
	}
	var at time.Time
	if e.hasLast {
		at = e.last.Time
	}
	e.machine.Adopt(position.State{Side: p.Side, EntryPrice: p.AveragePrice, Quantity: qty, EntryTime: at})
	e.risk.OnEntry(p.Side, p.AveragePrice, qty, market.Candle{})
	// long waits for red, short waits for green
	e.tracker.SetAwaitingFresh(p.Side == market.Short)
	e.needsEntryPrice = p.AveragePrice <= 0
	e.log.Info().
		Str("side", p.Side.String()).
		Float64("avg_price", p.AveragePrice).
		Float64("qty", qty).
		Msg("reconciled open position")
}

// applyCheckpoint restores a checkpoint taken on the given trading date.
func (e *Engine) applyCheckpoint(date time.Time) {
	cp := e.checkpoint
	if cp == nil {
		return
	}
	e.checkpoint = nil
	if !cp.TradingDate.Equal(date) {
		e.log.Info().Time("checkpoint_date", cp.TradingDate).Msg("stale checkpoint ignored")
		return
	}
	awaiting := e.tracker.State().AwaitingFresh
	e.tracker.Restore(cp.Tracker)
	if !e.machine.State().Flat() {
		e.tracker.SetAwaitingFresh(awaiting)
	}
	e.risk.RestoreRealized(cp.Realized)
	e.log.Info().
		Float64("level", cp.Tracker.ActiveLevel).
		Float64("realized", cp.Realized).
		Msg("checkpoint restored")
}

// OnBar evaluates a closed bar. Malformed or out-of-order bars are
// rejected without touching state; a repeated bar is a no-op.
func (e *Engine) OnBar(c market.Candle) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedBar, err)
	}
	if e.hasLast {
		if c.Time.Before(e.last.Time) {
			return fmt.Errorf("bar %s before %s: %w", c.Time.Format(time.RFC3339), e.last.Time.Format(time.RFC3339), ErrOutOfOrder)
		}
		if c.Time.Equal(e.last.Time) {
			e.log.Debug().Time("bar", c.Time).Msg("duplicate bar ignored")
			return nil
		}
	}

	if e.session.Rollover(c.Time) {
		e.risk.ResetDaily(e.session.LastDate(), e.cfg.Session.ResetPerTradeDaily)
	}
	if e.checkpoint != nil {
		e.applyCheckpoint(e.session.TradingDate(c.Time))
	}
	e.session.BeginEvaluation()

	if e.needsEntryPrice {
		e.priceAdopted(c.Close, "adopted position priced at bar close")
	}

	var cand *orderblock.Candidate
	if cd, ok := e.detector.Push(c); ok {
		cand = &cd
		e.log.Debug().Float64("level", cd.Level).Int("source", cd.SourceBarIndex).Msg("order block")
	}
	res := e.tracker.Update(c.Time, c.Close, cand)

	e.forceExits(c.Close, c.High, c.Low, c.Time)

	gate := e.gate(c.Time)
	for _, k := range signals(res) {
		e.emitSignal(k, res.ActiveLevel, c.Time)
		prev := e.machine.State()
		e.apply(e.machine.OnSignal(k, c.Close, c.Time, gate), prev, c)
	}
	e.machine.EndBar()

	e.risk.OnBarClose(c)
	e.session.EndEvaluation()
	e.last, e.hasLast = c, true
	e.saveCheckpoint(c.Time)
	return nil
}

// priceAdopted gives a position adopted without an average price its
// first observed price as entry.
func (e *Engine) priceAdopted(px float64, msg string) {
	e.machine.SetEntryPrice(px)
	e.risk.SetEntryPrice(px)
	e.needsEntryPrice = false
	e.log.Warn().Float64("entry", px).Msg(msg)
}

// OnPrice evaluates an intrabar update. Only exits happen here; entries
// stay bar-close authoritative.
func (e *Engine) OnPrice(p PriceUpdate) error {
	if p.High == 0 && p.Low == 0 {
		p.High, p.Low = p.Close, p.Close
	}
	if p.Open == 0 {
		p.Open = p.Close
	}
	fc := p.candle()
	if !fc.Numeric() {
		return fmt.Errorf("%w: price update: %w", ErrMalformedBar, market.ErrNonNumeric)
	}
	if e.hasLast && !p.Time.After(e.last.Time) {
		return fmt.Errorf("price update %s not after bar %s: %w", p.Time.Format(time.RFC3339), e.last.Time.Format(time.RFC3339), ErrOutOfOrder)
	}
	if e.needsEntryPrice {
		e.priceAdopted(p.Close, "adopted position priced at first update")
	}

	if e.forceExits(p.Close, p.High, p.Low, p.Time) {
		return nil
	}
	if !e.cfg.RealtimeExits {
		return nil
	}

	var cand *orderblock.Candidate
	if cd, ok := e.detector.Peek(fc); ok {
		cand = &cd
	}
	res := e.tracker.Preview(p.Close, cand)
	side := e.machine.State().Side
	switch {
	case res.Red && side == market.Long:
		e.exit(p.Close, p.Time, "red-realtime-exit")
	case res.Green && side == market.Short:
		e.exit(p.Close, p.Time, "green-realtime-exit")
	}
	return nil
}

// forceExits applies the risk and session-close rules and issues at
// most one exit.
func (e *Engine) forceExits(price, high, low float64, at time.Time) bool {
	reason := e.risk.Evaluate(price, high, low)
	if !e.machine.State().Flat() && e.session.Closing(at) {
		reason = risk.First(reason, risk.SessionClose)
	}
	if reason == risk.None {
		return false
	}
	return e.exit(price, at, string(reason))
}

func (e *Engine) exit(price float64, at time.Time, reason string) bool {
	prev := e.machine.State()
	in, ok := e.machine.ForceExit(price, at, reason)
	if !ok {
		return false
	}
	e.pendingExits[in.ID] = openTrade{side: prev.Side, entry: prev.EntryPrice, qty: prev.Quantity}
	e.risk.OnFlat()
	e.log.Info().Str("reason", reason).Float64("price", price).Msg("forced exit")
	e.sink.OnIntent(in)
	return true
}

// signals orders a bar's results: red is applied before green.
func signals(res mitigation.Result) []mitigation.Kind {
	var ks []mitigation.Kind
	if res.Red {
		ks = append(ks, mitigation.Red)
	}
	if res.Green {
		ks = append(ks, mitigation.Green)
	}
	return ks
}

// apply books the intents from one signal and hands them to the sink.
// prev is the position the signal found.
func (e *Engine) apply(intents []broker.Intent, prev position.State, c market.Candle) {
	for _, in := range intents {
		switch in.Action {
		case broker.Exit:
			e.pendingExits[in.ID] = openTrade{side: prev.Side, entry: prev.EntryPrice, qty: prev.Quantity}
			e.risk.OnFlat()
		case broker.Enter:
			e.pendingEntry = in.ID
			e.risk.OnEntry(in.Side, in.PriceHint, in.Quantity, c)
		}
		e.log.Info().Str("intent", in.String()).Msg("intent")
		e.sink.OnIntent(in)
	}
}

func (e *Engine) gate(at time.Time) position.Gate {
	return position.GateFunc(func(side market.Side) (bool, string) {
		if ok, why := e.session.EntriesAllowed(at); !ok {
			return false, why
		}
		return e.risk.EntryAllowed(side)
	})
}

func (e *Engine) emitSignal(k mitigation.Kind, level float64, at time.Time) {
	e.log.Info().Str("kind", k.String()).Float64("level", level).Time("bar", at).Msg("signal")
	e.sink.OnSignal(Signal{Instrument: e.Instrument(), Kind: k, Level: level, Time: at})
}

// OnFill books a confirmed fill. Entry fills correct the entry price;
// exit fills realize P&L.
func (e *Engine) OnFill(f broker.Fill) error {
	if f.Instrument != "" && f.Instrument != e.Instrument() {
		return fmt.Errorf("fill for %q: %w", f.Instrument, ErrUnknownInstrument)
	}
	switch f.Action {
	case broker.Enter:
		if f.IntentID != e.pendingEntry {
			e.log.Warn().Str("intent", f.IntentID).Msg("entry fill for unknown intent")
			return nil
		}
		e.pendingEntry = ""
		if e.machine.State().Side == f.Side {
			e.machine.SetEntryPrice(f.Price)
			e.risk.SetEntryPrice(f.Price)
		}
	case broker.Exit:
		t, ok := e.pendingExits[f.IntentID]
		if !ok {
			e.log.Warn().Str("intent", f.IntentID).Msg("exit fill for unknown intent")
			return nil
		}
		delete(e.pendingExits, f.IntentID)
		qty := f.Quantity
		if qty <= 0 {
			qty = t.qty
		}
		e.risk.Realize(t.side, t.entry, f.Price, qty)
	}
	return nil
}

// ResetTargets is the external reset for target latches and direction
// blocks.
func (e *Engine) ResetTargets() { e.risk.ResetTargets() }

func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Instrument:  e.Instrument(),
		Phase:       e.session.Phase(),
		Position:    e.machine.State(),
		JustEntered: e.machine.JustEntered(),
		Mitigation:  e.tracker.State(),
		Profit:      e.risk.Accumulator(),
		Trailing:    e.risk.Trailing(),
		LastBar:     e.last.Time,
	}
}

func (e *Engine) saveCheckpoint(at time.Time) {
	if e.store == nil {
		return
	}
	cp := session.Checkpoint{
		Instrument:  e.Instrument(),
		TradingDate: e.session.LastDate(),
		Tracker:     e.tracker.State(),
		Realized:    e.risk.Accumulator().Realized(),
		SavedAt:     at,
	}
	if err := e.store.Save(cp); err != nil {
		e.log.Warn().Err(err).Msg("checkpoint not saved")
	}
}

// Dispatch routes one event to the matching handler.
func (e *Engine) Dispatch(ev Event) error {
	if ev.Instrument != "" && ev.Instrument != e.Instrument() {
		return fmt.Errorf("%s event for %q: %w", ev.Kind, ev.Instrument, ErrUnknownInstrument)
	}
	switch ev.Kind {
	case BarEvent:
		return e.OnBar(ev.Bar)
	case PriceEvent:
		return e.OnPrice(ev.Price)
	case FillEvent:
		return e.OnFill(ev.Fill)
	case PositionEvent:
		return e.OnPositionReport(ev.Position)
	case ResetEvent:
		e.ResetTargets()
		return nil
	default:
		return fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

// Run processes events until the channel closes or ctx is done.
func (e *Engine) Run(ctx context.Context, events <-chan Event, errs chan<- error) error {
	return Run(ctx, e, events, errs)
}
