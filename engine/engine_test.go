package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/obtrader/broker"
	"github.com/rustyeddy/obtrader/market"
	"github.com/rustyeddy/obtrader/mitigation"
	"github.com/rustyeddy/obtrader/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC)

func at(i int) time.Time { return t0.Add(time.Duration(i) * time.Minute) }

func candle(ts time.Time, o, h, l, c float64) market.Candle {
	return market.Candle{Open: o, High: h, Low: l, Close: c, Time: ts}
}

// quiet bars have no body and equal highs, so they never break structure.
func quiet(ts time.Time, b float64) market.Candle { return candle(ts, 100+b, 101+b, 99+b, 100+b) }

// breakout completes an order block at level 100 after quiet bars.
func breakout(ts time.Time, b float64) market.Candle {
	return candle(ts, 100+b, 103+b, 100.5+b, 102.5+b)
}

// breach closes below 100 without breaking structure.
func breach(ts time.Time, b float64) market.Candle { return candle(ts, 101+b, 101.5+b, 98+b, 99+b) }

func drift(ts time.Time, b float64) market.Candle { return candle(ts, 99+b, 100+b, 98.5+b, 99.5+b) }

// rebound breaks above 103 and forms a new block at the prior open.
func rebound(ts time.Time, b float64) market.Candle {
	return candle(ts, 101.2+b, 104+b, 101+b, 103.5+b)
}

type recorder struct {
	intents []broker.Intent
	signals []Signal
	hook    func(broker.Intent)
}

func (r *recorder) OnIntent(in broker.Intent) {
	if r.hook != nil {
		r.hook(in)
	}
	r.intents = append(r.intents, in)
}

func (r *recorder) OnSignal(s Signal) { r.signals = append(r.signals, s) }

func (r *recorder) actions() []string {
	var out []string
	for _, in := range r.intents {
		out = append(out, in.Action.String()+" "+in.Side.String())
	}
	return out
}

type fakeReporter struct {
	pos broker.Position
	err error
}

func (f fakeReporter) Position(context.Context, string) (broker.Position, error) {
	return f.pos, f.err
}

func testConfig() Config {
	return Config{
		Instrument:  market.InstrumentMeta{Name: "NQ", TickSize: 0.25, PointValue: 1},
		Quantity:    1,
		Shorting:    true,
		FirstSignal: mitigation.AllowImmediate,
	}
}

func newEngine(t *testing.T, cfg Config, opts ...Option) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e, err := New(cfg, rec, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return e, rec
}

func feed(t *testing.T, e *Engine, bars ...market.Candle) {
	t.Helper()
	for _, b := range bars {
		require.NoError(t, e.OnBar(b))
	}
}

func flipSequence(b float64) []market.Candle {
	return []market.Candle{
		quiet(at(0), b), quiet(at(1), b), quiet(at(2), b),
		breakout(at(3), b),
		breach(at(4), b),
		drift(at(5), b),
		rebound(at(6), b),
	}
}

func TestNew_Validates(t *testing.T) {
	cfg := testConfig()
	cfg.Quantity = 0
	_, err := New(cfg, nil, zerolog.Nop())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Instrument.Name = ""
	_, err = New(cfg, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestEngine_FlipCycle(t *testing.T) {
	e, rec := newEngine(t, testConfig())
	require.NoError(t, e.Start(context.Background(), nil))
	require.Equal(t, session.Synced, e.Snapshot().Phase)

	feed(t, e, flipSequence(0)...)

	assert.Equal(t, []string{
		"enter long",
		"exit long", "enter short",
		"exit short", "enter long",
	}, rec.actions())
	// the drift bar closes below 100 again: a second red, a skipped
	// duplicate short
	require.Len(t, rec.signals, 4)
	assert.Equal(t, mitigation.Green, rec.signals[0].Kind)
	assert.Equal(t, mitigation.Red, rec.signals[1].Kind)
	assert.Equal(t, mitigation.Red, rec.signals[2].Kind)
	assert.Equal(t, mitigation.Green, rec.signals[3].Kind)
	assert.Equal(t, 99.0, rec.signals[3].Level)

	snap := e.Snapshot()
	assert.Equal(t, market.Long, snap.Position.Side)
	assert.Equal(t, 103.5, snap.Position.EntryPrice)
	assert.False(t, snap.JustEntered, "guard ends with the entry bar")
}

func TestEngine_NoEntriesBeforeStart(t *testing.T) {
	e, rec := newEngine(t, testConfig())
	feed(t, e, flipSequence(0)...)
	assert.Empty(t, rec.intents)
	assert.Len(t, rec.signals, 4, "signals are advisory and still published")
}

func TestEngine_ReplayIsIdempotent(t *testing.T) {
	e, rec := newEngine(t, testConfig())
	require.NoError(t, e.Start(context.Background(), nil))
	bars := flipSequence(0)
	feed(t, e, bars...)

	before := e.Snapshot()
	n, s := len(rec.intents), len(rec.signals)

	require.NoError(t, e.OnBar(bars[len(bars)-1]))
	assert.Equal(t, before, e.Snapshot())
	assert.Len(t, rec.intents, n)
	assert.Len(t, rec.signals, s)
}

func TestEngine_MalformedInput(t *testing.T) {
	e, rec := newEngine(t, testConfig())
	require.NoError(t, e.Start(context.Background(), nil))
	feed(t, e, quiet(at(0), 0), quiet(at(1), 0))
	before := e.Snapshot()

	err := e.OnBar(candle(at(2), math.NaN(), 101, 99, 100))
	assert.ErrorIs(t, err, ErrMalformedBar)
	assert.ErrorIs(t, err, market.ErrNonNumeric)

	err = e.OnBar(candle(at(2), 100, 99, 101, 100))
	assert.ErrorIs(t, err, ErrMalformedBar)

	err = e.OnBar(quiet(at(0).Add(-time.Minute), 0))
	assert.ErrorIs(t, err, ErrOutOfOrder)

	err = e.OnPrice(PriceUpdate{Time: at(1), Close: 100})
	assert.ErrorIs(t, err, ErrOutOfOrder)

	err = e.OnPrice(PriceUpdate{Time: at(2), Close: math.Inf(1)})
	assert.ErrorIs(t, err, ErrMalformedBar)

	assert.Equal(t, before, e.Snapshot())
	assert.Empty(t, rec.intents)
}

// Long 1 @ 102.5 with a target of 5 exits once at 107.5 and never again.
func TestEngine_PerTradeTargetIntrabar(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.PerTradeTarget = 5
	e, rec := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), nil))
	feed(t, e, quiet(at(0), 0), quiet(at(1), 0), quiet(at(2), 0), breakout(at(3), 0))
	require.Len(t, rec.intents, 1)

	require.NoError(t, e.OnPrice(PriceUpdate{Time: at(4), Open: 102.5, High: 107.5, Low: 102.5, Close: 107.5}))
	require.Len(t, rec.intents, 2)
	assert.Equal(t, broker.Exit, rec.intents[1].Action)
	assert.Equal(t, "per-trade-target", rec.intents[1].Reason)

	snap := e.Snapshot()
	assert.True(t, snap.Profit.PerTradeTargetReached)
	assert.True(t, snap.Position.Flat())

	require.NoError(t, e.OnPrice(PriceUpdate{Time: at(4).Add(10 * time.Second), Open: 102.5, High: 110, Low: 102.5, Close: 110}))
	assert.Len(t, rec.intents, 2)
}

// Restart with a live short: no duplicate entry while reconciling, then a
// normal flip once synced.
func TestEngine_RestartWithOpenShort(t *testing.T) {
	cfg := testConfig()
	cfg.Session.AutoReconcile = true
	e, rec := newEngine(t, cfg)
	const b = 350

	feed(t, e, quiet(at(0), b), quiet(at(1), b), quiet(at(2), b))
	require.NoError(t, e.Start(context.Background(), nil))
	require.Equal(t, session.Reconciling, e.Snapshot().Phase)

	feed(t, e, breakout(at(3), b))
	require.Len(t, rec.signals, 1)
	assert.Equal(t, mitigation.Green, rec.signals[0].Kind)
	assert.Empty(t, rec.intents, "no entry while reconciling")

	require.NoError(t, e.OnPositionReport(broker.Position{Instrument: "NQ", Side: market.Short, Quantity: 1, AveragePrice: 450}))
	snap := e.Snapshot()
	require.Equal(t, session.Synced, snap.Phase)
	assert.Equal(t, market.Short, snap.Position.Side)
	assert.Equal(t, 450.0, snap.Position.EntryPrice)
	assert.True(t, snap.Mitigation.AwaitingFresh, "short waits for green")

	// gap up above the breakout: new block at its open
	feed(t, e, candle(at(4), 107+b, 108+b, 107+b, 107.5+b))
	assert.Equal(t, []string{"exit short", "enter long"}, rec.actions())

	require.NoError(t, e.OnFill(broker.Fill{IntentID: rec.intents[0].ID, Instrument: "NQ", Action: broker.Exit, Side: market.Short, Price: 457.5, Quantity: 1}))
	assert.InDelta(t, -7.5, e.Snapshot().Profit.Realized(), 1e-9)
}

func TestEngine_ReconcileFromReporter(t *testing.T) {
	cfg := testConfig()
	cfg.Session.AutoReconcile = true

	e, _ := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), fakeReporter{pos: broker.Position{Instrument: "NQ", Side: market.Long, Quantity: 2, AveragePrice: 101}}))
	snap := e.Snapshot()
	assert.Equal(t, session.Synced, snap.Phase)
	assert.Equal(t, market.Long, snap.Position.Side)
	assert.Equal(t, 2.0, snap.Position.Quantity)
	assert.False(t, snap.Mitigation.AwaitingFresh, "long waits for red")

	e2, _ := newEngine(t, cfg)
	require.NoError(t, e2.Start(context.Background(), fakeReporter{err: errors.New("venue down")}))
	assert.Equal(t, session.Reconciling, e2.Snapshot().Phase)
}

func TestEngine_AdoptWithoutPrice(t *testing.T) {
	cfg := testConfig()
	cfg.Session.AutoReconcile = true
	e, _ := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), fakeReporter{pos: broker.Position{Side: market.Long, Quantity: 1}}))

	feed(t, e, quiet(at(0), 0))
	assert.Equal(t, 100.0, e.Snapshot().Position.EntryPrice)
}

// A price update ahead of the first bar prices the adoption instead of
// marking it against zero.
func TestEngine_AdoptWithoutPricePricedIntrabar(t *testing.T) {
	cfg := testConfig()
	cfg.Session.AutoReconcile = true
	cfg.Risk.PerTradeTarget = 50
	cfg.Risk.TrailDistance = 5
	e, rec := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), nil))
	require.NoError(t, e.OnPositionReport(broker.Position{Instrument: "NQ", Side: market.Long, Quantity: 1}))

	require.NoError(t, e.OnPrice(PriceUpdate{Time: at(0), Close: 18000}))
	assert.Empty(t, rec.intents)

	snap := e.Snapshot()
	assert.Equal(t, market.Long, snap.Position.Side)
	assert.Equal(t, 18000.0, snap.Position.EntryPrice)
	assert.Zero(t, snap.Profit.PerTradeUnrealized)
	assert.False(t, snap.Profit.PerTradeTargetReached)
	ok, _ := e.risk.EntryAllowed(market.Long)
	assert.True(t, ok)

	require.NoError(t, e.OnPrice(PriceUpdate{Time: at(0).Add(time.Second), Close: 18010}))
	assert.Empty(t, rec.intents)
	assert.InDelta(t, 18005.0, e.Snapshot().Trailing.Stop, 1e-9)

	// the next bar close keeps the intrabar price
	feed(t, e, candle(at(1), 18008, 18012, 18006, 18010))
	assert.Equal(t, 18000.0, e.Snapshot().Position.EntryPrice)
}

// A stop raised inside a bar is only touched by prices traded after it
// moved, not by the bar's earlier low.
func TestEngine_TrailIgnoresEarlierLow(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.TrailDistance = 1
	e, rec := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), nil))
	feed(t, e, quiet(at(0), 0), quiet(at(1), 0), quiet(at(2), 0), breakout(at(3), 0))
	require.Equal(t, []string{"enter long"}, rec.actions())

	ts := at(4)
	for i, p := range []PriceUpdate{
		{Open: 102.5, High: 102.5, Low: 102.5, Close: 102.5},
		{Open: 102.5, High: 102.5, Low: 102, Close: 102},
		{Open: 102.5, High: 105, Low: 102, Close: 105},
		{Open: 102.5, High: 105, Low: 102, Close: 104.9},
	} {
		p.Time = ts.Add(time.Duration(i) * time.Second)
		require.NoError(t, e.OnPrice(p))
	}
	assert.Len(t, rec.intents, 1, "the 102 low came before the stop moved to 104")
	assert.InDelta(t, 104.0, e.Snapshot().Trailing.Stop, 1e-9)

	require.NoError(t, e.OnPrice(PriceUpdate{Time: ts.Add(5 * time.Second), Open: 102.5, High: 105, Low: 102, Close: 103.9}))
	require.Len(t, rec.intents, 2)
	assert.Equal(t, "trailing-stop", rec.intents[1].Reason)
	assert.Equal(t, 103.9, rec.intents[1].PriceHint)
}

func TestEngine_ReconcileFallback(t *testing.T) {
	cfg := testConfig()
	cfg.Session.AutoReconcile = true
	e, _ := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), nil))

	feed(t, e, quiet(at(0), 0))
	assert.Equal(t, session.Reconciling, e.Snapshot().Phase)
	feed(t, e, quiet(at(1), 0))
	assert.Equal(t, session.Synced, e.Snapshot().Phase)

	require.NoError(t, e.OnPositionReport(broker.Position{Side: market.Short, Quantity: 1, AveragePrice: 100}))
	assert.True(t, e.Snapshot().Position.Flat(), "late reports are ignored")
}

func TestEngine_NeverEntersWhileReconciling(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		cfg := testConfig()
		cfg.Session.AutoReconcile = true
		rec := &recorder{}
		e, err := New(cfg, rec, zerolog.Nop())
		require.NoError(t, err)

		violations := 0
		rec.hook = func(in broker.Intent) {
			if in.Action == broker.Enter && e.Snapshot().Phase != session.Synced {
				violations++
			}
		}

		r := rand.New(rand.NewSource(seed))
		px := 100.0
		for i := 0; i < 60; i++ {
			if i == 10 {
				require.NoError(t, e.Start(context.Background(), nil))
			}
			o := px
			c := o + (r.Float64()-0.5)*4
			h := math.Max(o, c) + r.Float64()*2
			l := math.Min(o, c) - r.Float64()*2
			require.NoError(t, e.OnBar(candle(at(i), o, h, l, c)))
			px = c
		}
		assert.Zero(t, violations, "seed %d", seed)
	}
}

// A new trading date resets the daily accumulator before the bar's
// signals run, so a blocked day does not block the next one.
func TestEngine_DailyRollover(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.DailyTarget = 250
	cfg.Session.DailyResetEnabled = true
	e, rec := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), nil))

	feed(t, e, quiet(at(0), 0), quiet(at(1), 0))
	e.risk.RestoreRealized(300)
	feed(t, e, quiet(at(2), 0))
	require.True(t, e.Snapshot().Profit.DailyTargetReached)

	feed(t, e, breakout(at(3).Add(24*time.Hour), 0))
	snap := e.Snapshot()
	assert.True(t, snap.Profit.DailyRealized.IsZero())
	assert.False(t, snap.Profit.DailyTargetReached)
	assert.Equal(t, []string{"enter long"}, rec.actions())
}

func TestEngine_DailyTargetBlocksEntries(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.DailyTarget = 250
	e, rec := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), nil))

	feed(t, e, quiet(at(0), 0), quiet(at(1), 0))
	e.risk.RestoreRealized(300)
	feed(t, e, quiet(at(2), 0), breakout(at(3), 0))
	assert.Empty(t, rec.intents)
	assert.Len(t, rec.signals, 1)
}

func TestEngine_SessionCloseFlatten(t *testing.T) {
	cfg := testConfig()
	cfg.Session.SessionClose = 16 * time.Hour
	cfg.Session.FlattenBefore = 2 * time.Minute
	e, rec := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), nil))

	base := time.Date(2025, 3, 3, 15, 54, 0, 0, time.UTC)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * time.Minute) }
	feed(t, e, quiet(ts(0), 0), quiet(ts(1), 0), quiet(ts(2), 0), breakout(ts(3), 0))
	require.Equal(t, []string{"enter long"}, rec.actions())

	feed(t, e, quiet(ts(4), 0))
	require.Len(t, rec.intents, 2)
	assert.Equal(t, "session-close", rec.intents[1].Reason)
	assert.True(t, e.Snapshot().Position.Flat())
}

func TestEngine_RealtimeExit(t *testing.T) {
	cfg := testConfig()
	cfg.RealtimeExits = true
	e, rec := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), nil))

	feed(t, e, quiet(at(0), 0), quiet(at(1), 0), quiet(at(2), 0), breakout(at(3), 0))
	require.Equal(t, []string{"enter long"}, rec.actions())

	// the guard ended with the entry bar, so the very next update exits
	require.NoError(t, e.OnPrice(PriceUpdate{Time: at(4), Open: 102.5, High: 102.6, Low: 99, Close: 99.5}))
	require.Len(t, rec.intents, 2)
	assert.Equal(t, "red-realtime-exit", rec.intents[1].Reason)
	assert.True(t, e.Snapshot().Position.Flat())

	require.NoError(t, e.OnPrice(PriceUpdate{Time: at(4).Add(time.Second), Open: 102.5, High: 102.6, Low: 98, Close: 99}))
	assert.Len(t, rec.intents, 2, "flat, nothing to exit")
}

// A close-only update is previewed as a forming bar at that price, so
// it can break structure and exit a short on a fresh block.
func TestEngine_RealtimePreviewCloseOnly(t *testing.T) {
	cfg := testConfig()
	cfg.RealtimeExits = true
	e, rec := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), nil))
	feed(t, e, flipSequence(0)[:5]...)
	require.Equal(t, []string{"enter long", "exit long", "enter short"}, rec.actions())

	// breaks the 103 high but the gap to 101.5 is not wider than 1.5 bodies
	require.NoError(t, e.OnPrice(PriceUpdate{Time: at(5), Close: 104}))
	assert.Len(t, rec.intents, 3)

	require.NoError(t, e.OnPrice(PriceUpdate{Time: at(5).Add(time.Second), Close: 105}))
	require.Len(t, rec.intents, 4)
	assert.Equal(t, "green-realtime-exit", rec.intents[3].Reason)
	assert.Equal(t, 105.0, rec.intents[3].PriceHint)
}

func TestEngine_RealizedFromFills(t *testing.T) {
	e, rec := newEngine(t, testConfig())
	require.NoError(t, e.Start(context.Background(), nil))
	feed(t, e, flipSequence(0)[:5]...)
	require.Len(t, rec.intents, 3)

	enter, exit := rec.intents[0], rec.intents[1]
	require.NoError(t, e.OnFill(broker.Fill{IntentID: enter.ID, Action: broker.Enter, Side: market.Long, Price: 102.75, Quantity: 1}))
	require.NoError(t, e.OnFill(broker.Fill{IntentID: exit.ID, Action: broker.Exit, Side: market.Long, Price: 99, Quantity: 1}))
	assert.InDelta(t, -3.5, e.Snapshot().Profit.Realized(), 1e-9, "entry fill lands after the flip")

	require.NoError(t, e.OnFill(broker.Fill{IntentID: rec.intents[2].ID, Action: broker.Enter, Side: market.Short, Price: 98.75, Quantity: 1}))
	assert.Equal(t, 98.75, e.Snapshot().Position.EntryPrice)

	require.NoError(t, e.OnFill(broker.Fill{IntentID: "nope", Action: broker.Exit, Price: 1}))
	assert.InDelta(t, -3.5, e.Snapshot().Profit.Realized(), 1e-9)

	err := e.OnFill(broker.Fill{Instrument: "ES"})
	assert.ErrorIs(t, err, ErrUnknownInstrument)
}

func TestEngine_FlatInvariant(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.TrailDistance = 1
	e, _ := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), nil))

	feed(t, e, quiet(at(0), 0), quiet(at(1), 0), quiet(at(2), 0), breakout(at(3), 0))
	require.NoError(t, e.OnPrice(PriceUpdate{Time: at(4), Open: 102.5, High: 104, Low: 102.5, Close: 104}))
	snap := e.Snapshot()
	require.True(t, snap.Trailing.Armed)

	require.NoError(t, e.OnPrice(PriceUpdate{Time: at(4).Add(time.Second), Open: 102.5, High: 104, Low: 102.9, Close: 103}))
	snap = e.Snapshot()
	require.True(t, snap.Position.Flat())
	assert.False(t, snap.Trailing.Armed)
	assert.Zero(t, snap.Profit.PerTradeUnrealized)
}

func TestEngine_CheckpointRestore(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)

	e1, rec := newEngine(t, testConfig(), WithCheckpoints(store))
	require.NoError(t, e1.Start(context.Background(), nil))
	feed(t, e1, flipSequence(0)[:5]...)
	require.NoError(t, e1.OnFill(broker.Fill{IntentID: rec.intents[1].ID, Action: broker.Exit, Price: 99, Quantity: 1}))
	feed(t, e1, drift(at(5), 0))

	cfg := testConfig()
	cfg.Session.AutoReconcile = true
	e2, _ := newEngine(t, cfg, WithCheckpoints(store))
	require.NoError(t, e2.Start(context.Background(), fakeReporter{pos: broker.Position{Instrument: "NQ", Side: market.Short, Quantity: 1, AveragePrice: 99}}))

	feed(t, e2, drift(at(6), 0))
	snap := e2.Snapshot()
	assert.Equal(t, 100.0, snap.Mitigation.ActiveLevel)
	assert.True(t, snap.Mitigation.HasLevel)
	assert.True(t, snap.Mitigation.AwaitingFresh)
	assert.InDelta(t, -3.5, snap.Profit.Realized(), 1e-9)
	assert.Equal(t, market.Short, snap.Position.Side)
}

func TestEngine_StaleCheckpointIgnored(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(session.Checkpoint{
		Instrument:  "NQ",
		TradingDate: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		Tracker:     mitigation.State{ActiveLevel: 90, HasLevel: true},
		Realized:    500,
	}))

	cfg := testConfig()
	cfg.Session.AutoReconcile = true
	e, _ := newEngine(t, cfg, WithCheckpoints(store))
	require.NoError(t, e.Start(context.Background(), fakeReporter{}))
	feed(t, e, quiet(at(0), 0))

	snap := e.Snapshot()
	assert.False(t, snap.Mitigation.HasLevel)
	assert.Zero(t, snap.Profit.Realized())
}

func TestEngine_ResetTargets(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.PerTradeTarget = 1
	e, rec := newEngine(t, cfg)
	require.NoError(t, e.Start(context.Background(), nil))
	feed(t, e, quiet(at(0), 0), quiet(at(1), 0), quiet(at(2), 0), breakout(at(3), 0))
	require.NoError(t, e.OnPrice(PriceUpdate{Time: at(4), Close: 104}))
	require.Len(t, rec.intents, 2)

	ok, _ := e.risk.EntryAllowed(market.Long)
	assert.False(t, ok)
	require.NoError(t, e.Dispatch(Event{Kind: ResetEvent, Instrument: "NQ"}))
	ok, _ = e.risk.EntryAllowed(market.Long)
	assert.True(t, ok)
}
