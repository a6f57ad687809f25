// Package risk forces exits on profit targets and trailing stops and
// blocks entries once targets are reached.
package risk

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/obtrader/indicators"
	"github.com/rustyeddy/obtrader/market"
	"github.com/shopspring/decimal"
)

// Reason names a forced exit.
type Reason string

const (
	None           Reason = ""
	PerTradeTarget Reason = "per-trade-target"
	TrailingExit   Reason = "trailing-stop"
	DailyTarget    Reason = "daily-target"
	SessionClose   Reason = "session-close"
)

// priority orders force-exit reasons, lowest first.
var priority = map[Reason]int{
	PerTradeTarget: 1,
	TrailingExit:   2,
	DailyTarget:    3,
	SessionClose:   4,
}

// First returns the highest priority reason among rs.
func First(rs ...Reason) Reason {
	best := None
	for _, r := range rs {
		p, ok := priority[r]
		if !ok {
			continue
		}
		if best == None || p < priority[best] {
			best = r
		}
	}
	return best
}

// Manager owns the profit accumulator and trailing stop for one
// instrument.
type Manager struct {
	cfg Config
	log zerolog.Logger

	acc   Accumulator
	trail TrailingStop
	atr   *indicators.ATR

	side  market.Side
	entry float64
	qty   float64

	blocked map[market.Side]bool
	prev    market.Candle
	hasPrev bool

	// running extremes of the forming bar, as of the last Evaluate
	barHigh, barLow float64
	inBar           bool
}

func NewManager(cfg Config, log zerolog.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		log:     log.With().Str("component", "risk").Logger(),
		blocked: make(map[market.Side]bool),
	}
	if cfg.TrailATRMultiplier > 0 {
		m.atr = indicators.NewATR(cfg.TrailATRPeriod)
	}
	return m
}

func (m *Manager) Config() Config             { return m.cfg }
func (m *Manager) Accumulator() Accumulator   { return m.acc }
func (m *Manager) Trailing() TrailingStop     { return m.trail }
func (m *Manager) Blocked(s market.Side) bool { return m.blocked[s] }

// OnEntry starts tracking a new position entered on bar.
func (m *Manager) OnEntry(side market.Side, price, qty float64, bar market.Candle) {
	m.side, m.entry, m.qty = side, price, qty
	m.acc.PerTradeUnrealized = 0
	m.acc.PerTradeTargetReached = false

	m.trail.Reset()
	// an adopted position without a price starts trailing once priced
	if !m.cfg.trailing() || price <= 0 {
		return
	}
	m.trail.open(side, price)
	m.trail.observe(price, m.cfg.TrailActivation)
	if m.cfg.CandleTrail && bar.Numeric() && !bar.Time.IsZero() {
		if side == market.Long {
			m.trail.ratchet(bar.Low)
		} else {
			m.trail.ratchet(bar.High)
		}
	}
}

// SetEntryPrice corrects the entry once the entry fill is known.
func (m *Manager) SetEntryPrice(price float64) {
	if m.side == market.Flat {
		return
	}
	m.entry = price
	if m.cfg.trailing() && !m.trail.Armed {
		m.trail.open(m.side, price)
	}
}

// OnFlat discards the open trade's unrealized P&L and trailing stop. The
// per-trade latch stays set until the next entry.
func (m *Manager) OnFlat() {
	m.side, m.entry, m.qty = market.Flat, 0, 0
	m.acc.PerTradeUnrealized = 0
	m.trail.Reset()
}

// Realize books the P&L of a confirmed closing fill and returns it.
func (m *Manager) Realize(side market.Side, entry, price, qty float64) float64 {
	pnl := RealizedPnL(side, entry, price, qty, m.cfg.pointValue())
	m.acc.DailyRealized = m.acc.DailyRealized.Add(pnl)
	m.log.Info().
		Str("side", side.String()).
		Float64("entry", entry).
		Float64("exit", price).
		Str("pnl", pnl.StringFixed(2)).
		Str("daily_realized", m.acc.DailyRealized.StringFixed(2)).
		Msg("realized")
	m.checkDaily()
	return pnl.InexactFloat64()
}

// Evaluate marks the open position to price and returns the forced exit
// to take, if any. high and low are the adverse extremes seen so far on
// the current bar. Only one reason is returned when several apply.
func (m *Manager) Evaluate(price, high, low float64) Reason {
	if m.side == market.Flat {
		m.acc.PerTradeUnrealized = 0
		m.checkDaily()
		m.fresh(price, high, low)
		return None
	}

	m.acc.PerTradeUnrealized = PnL(m.side, m.entry, price, m.qty, m.cfg.pointValue())

	var perTrade, trailing, daily Reason
	if m.cfg.PerTradeTarget > 0 && !m.acc.PerTradeTargetReached && m.acc.PerTradeUnrealized >= m.cfg.PerTradeTarget {
		m.acc.PerTradeTargetReached = true
		m.blocked[m.side] = true
		m.log.Info().
			Str("side", m.side.String()).
			Float64("unrealized", m.acc.PerTradeUnrealized).
			Float64("target", m.cfg.PerTradeTarget).
			Msg("per-trade target reached")
		perTrade = PerTradeTarget
	}
	if m.trail.Touched(m.fresh(price, high, low)) {
		trailing = TrailingExit
	}
	if m.checkDaily() {
		daily = DailyTarget
	}

	if m.cfg.trailing() {
		m.trail.observe(price, m.cfg.TrailActivation)
		m.trail.follow(m.distance())
	}
	return First(perTrade, trailing, daily)
}

// fresh returns the adverse extremes traded since the previous Evaluate
// on the same bar. A running extreme already seen was checked against
// the stop in force at that time, so only the current price and new
// extremes can touch a stop moved since.
func (m *Manager) fresh(price, high, low float64) (float64, float64) {
	h, l := high, low
	if m.inBar {
		h, l = price, price
		if high > m.barHigh {
			h = high
		}
		if low < m.barLow {
			l = low
		}
		high, low = max(high, m.barHigh), min(low, m.barLow)
	}
	m.barHigh, m.barLow, m.inBar = high, low, true
	return h, l
}

// OnBarClose feeds the closed bar to the ATR and the candle trail.
func (m *Manager) OnBarClose(c market.Candle) {
	if m.atr != nil {
		m.atr.Update(c)
	}
	if m.side != market.Flat && m.cfg.CandleTrail && m.hasPrev {
		if m.trail.candle(m.prev, c) {
			m.log.Debug().Float64("stop", m.trail.Stop).Msg("trailing stop moved")
		}
	}
	m.prev, m.hasPrev = c, true
	m.inBar = false
}

// checkDaily latches the daily target and reports whether it is reached.
func (m *Manager) checkDaily() bool {
	if m.cfg.DailyTarget <= 0 {
		return false
	}
	if !m.acc.DailyTargetReached && m.acc.DailyTotal() >= m.cfg.DailyTarget {
		m.acc.DailyTargetReached = true
		m.log.Info().
			Float64("daily_total", m.acc.DailyTotal()).
			Float64("target", m.cfg.DailyTarget).
			Msg("daily target reached, entries blocked")
	}
	return m.acc.DailyTargetReached
}

func (m *Manager) distance() float64 {
	if m.atr != nil && m.atr.Ready() {
		return m.atr.Value() * m.cfg.TrailATRMultiplier
	}
	return m.cfg.TrailDistance
}

// ResetDaily starts a new trading day. With perTrade the per-trade latch
// and direction blocks are cleared too.
func (m *Manager) ResetDaily(date time.Time, perTrade bool) {
	m.acc.DailyRealized = decimal.Zero
	m.acc.DailyTargetReached = false
	m.acc.LastResetDate = date
	if perTrade {
		m.acc.PerTradeTargetReached = false
		clear(m.blocked)
	}
	m.log.Info().Time("date", date).Bool("per_trade", perTrade).Msg("daily reset")
}

// ResetTargets clears the per-trade latch and direction blocks.
func (m *Manager) ResetTargets() {
	m.acc.PerTradeTargetReached = false
	clear(m.blocked)
	m.log.Info().Msg("targets reset")
}

// RestoreRealized seeds the daily realized P&L, used when state is
// recovered mid-day.
func (m *Manager) RestoreRealized(v float64) {
	m.acc.DailyRealized = decimal.NewFromFloat(v)
}
