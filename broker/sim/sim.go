// Package sim is a simulated execution venue. It queues intents without
// blocking the caller, fills them at the intent's price hint when
// Process is called, and journals every closed trade.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/obtrader/broker"
	"github.com/rustyeddy/obtrader/journal"
	"github.com/rustyeddy/obtrader/market"
	"github.com/rustyeddy/obtrader/pkg/id"
	"github.com/rustyeddy/obtrader/risk"
)

// Trade is an open lot held by the simulator.
type Trade struct {
	ID         string
	Instrument string
	Side       market.Side
	Quantity   float64
	EntryPrice float64
	OpenTime   time.Time
}

type Broker struct {
	mu      sync.Mutex
	log     zerolog.Logger
	journal journal.Journal

	// Slippage is applied against the position in price units.
	Slippage float64

	meta   map[string]market.InstrumentMeta
	queue  []broker.Intent
	open   map[string]*Trade
	closed []journal.TradeRecord
}

// New returns a flat simulator. j may be nil. Instruments not listed
// in metas use market.Lookup for their point value.
func New(j journal.Journal, log zerolog.Logger, metas ...market.InstrumentMeta) *Broker {
	b := &Broker{
		log:     log.With().Str("component", "sim").Logger(),
		journal: j,
		meta:    make(map[string]market.InstrumentMeta),
		open:    make(map[string]*Trade),
	}
	for _, m := range metas {
		b.meta[m.Name] = m
	}
	return b
}

func (b *Broker) pointValue(instrument string) float64 {
	m, ok := b.meta[instrument]
	if !ok {
		m, _ = market.Lookup(instrument)
	}
	if m.PointValue <= 0 {
		return 1
	}
	return m.PointValue
}

// OnIntent queues the intent. It never blocks on execution.
func (b *Broker) OnIntent(in broker.Intent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, in)
}

// Pending returns the number of queued intents.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Position reports the simulator's live position for an instrument.
func (b *Broker) Position(ctx context.Context, instrument string) (broker.Position, error) {
	if err := ctx.Err(); err != nil {
		return broker.Position{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.open[instrument]
	if !ok {
		return broker.Position{Instrument: instrument}, nil
	}
	return broker.Position{
		Instrument:   instrument,
		Side:         t.Side,
		Quantity:     t.Quantity,
		AveragePrice: t.EntryPrice,
	}, nil
}

// Seed opens a lot directly, as if it had been entered before the
// process started.
func (b *Broker) Seed(p broker.Position, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.Side == market.Flat {
		delete(b.open, p.Instrument)
		return
	}
	b.open[p.Instrument] = &Trade{
		ID:         id.New(),
		Instrument: p.Instrument,
		Side:       p.Side,
		Quantity:   p.Quantity,
		EntryPrice: p.AveragePrice,
		OpenTime:   at,
	}
}

// Process executes every queued intent in arrival order and returns the
// resulting fills. Intents that do not match the book are logged and
// dropped.
func (b *Broker) Process() []broker.Fill {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.queue
	b.queue = nil

	var fills []broker.Fill
	for _, in := range queue {
		f, err := b.executeLocked(in)
		if err != nil {
			b.log.Warn().Err(err).Str("intent", in.ID).Msg("intent rejected")
			continue
		}
		fills = append(fills, f)
	}
	return fills
}

func (b *Broker) executeLocked(in broker.Intent) (broker.Fill, error) {
	t := b.open[in.Instrument]
	price := b.slip(in)

	switch in.Action {
	case broker.Enter:
		if t != nil {
			return broker.Fill{}, fmt.Errorf("enter %s: %s position already open", in.Instrument, t.Side)
		}
		b.open[in.Instrument] = &Trade{
			ID:         in.ID,
			Instrument: in.Instrument,
			Side:       in.Side,
			Quantity:   in.Quantity,
			EntryPrice: price,
			OpenTime:   in.Time,
		}
	case broker.Exit:
		if t == nil || t.Side != in.Side {
			return broker.Fill{}, fmt.Errorf("exit %s %s: no matching position", in.Side, in.Instrument)
		}
		b.closeLocked(t, price, in.Time, in.Reason)
	default:
		return broker.Fill{}, fmt.Errorf("unknown action %d", in.Action)
	}

	qty := in.Quantity
	if in.Action == broker.Exit && qty <= 0 {
		qty = t.Quantity
	}
	return broker.Fill{
		IntentID:   in.ID,
		Instrument: in.Instrument,
		Action:     in.Action,
		Side:       in.Side,
		Price:      price,
		Quantity:   qty,
		Time:       in.Time,
	}, nil
}

// slip moves the fill price against the position.
func (b *Broker) slip(in broker.Intent) float64 {
	if b.Slippage == 0 {
		return in.PriceHint
	}
	dir := float64(in.Side)
	if in.Action == broker.Exit {
		dir = -dir
	}
	return in.PriceHint + dir*b.Slippage
}

func (b *Broker) closeLocked(t *Trade, price float64, at time.Time, reason string) {
	delete(b.open, t.Instrument)

	rec := journal.TradeRecord{
		TradeID:    t.ID,
		Instrument: t.Instrument,
		Side:       t.Side,
		Quantity:   t.Quantity,
		EntryPrice: t.EntryPrice,
		ExitPrice:  price,
		OpenTime:   t.OpenTime,
		CloseTime:  at,
		RealizedPL: risk.RealizedPnL(t.Side, t.EntryPrice, price, t.Quantity, b.pointValue(t.Instrument)).InexactFloat64(),
		Reason:     reason,
	}
	b.closed = append(b.closed, rec)

	if b.journal != nil {
		if err := b.journal.RecordTrade(rec); err != nil {
			b.log.Warn().Err(err).Str("trade", rec.TradeID).Msg("trade not journaled")
		}
	}
	b.log.Debug().
		Str("trade", rec.TradeID).
		Str("side", rec.Side.String()).
		Float64("pl", rec.RealizedPL).
		Str("reason", reason).
		Msg("trade closed")
}

// Close closes the instrument's open lot at price, e.g. at the end of a
// replay. It reports whether a lot was open.
func (b *Broker) Close(instrument string, price float64, at time.Time, reason string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.open[instrument]
	if !ok {
		return false
	}
	b.closeLocked(t, price, at, reason)
	return true
}

// Closed returns the trades closed so far, oldest first.
func (b *Broker) Closed() []journal.TradeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]journal.TradeRecord, len(b.closed))
	copy(out, b.closed)
	return out
}
