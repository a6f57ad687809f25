package risk

import (
	"math"

	"github.com/rustyeddy/obtrader/market"
)

// TrailingStop follows the favorable extreme of an open position. The
// stop only moves in the position's favor.
type TrailingStop struct {
	Armed   bool
	Extreme float64
	Stop    float64
	HasStop bool

	side  market.Side
	entry float64
}

func (t *TrailingStop) Reset() { *t = TrailingStop{} }

func (t *TrailingStop) open(side market.Side, entry float64) {
	*t = TrailingStop{side: side, entry: entry, Extreme: entry}
}

// observe records a traded price and arms the trail once the favorable
// move from entry reaches activation.
func (t *TrailingStop) observe(price, activation float64) {
	if t.side == market.Flat {
		return
	}
	if float64(t.side)*(price-t.Extreme) > 0 {
		t.Extreme = price
	}
	if !t.Armed && float64(t.side)*(t.Extreme-t.entry) >= activation {
		t.Armed = true
	}
}

// ratchet moves the stop to level when it tightens.
func (t *TrailingStop) ratchet(level float64) bool {
	if !t.Armed || math.IsNaN(level) {
		return false
	}
	if t.HasStop && float64(t.side)*(level-t.Stop) <= 0 {
		return false
	}
	t.Stop = level
	t.HasStop = true
	return true
}

// follow trails the stop distance behind the favorable extreme.
func (t *TrailingStop) follow(distance float64) bool {
	if distance <= 0 {
		return false
	}
	return t.ratchet(t.Extreme - float64(t.side)*distance)
}

// candle applies the candle rule: long positions trail to the low of
// a bullish prior bar once the current bar trades below it; shorts
// trail to the high of a bearish prior bar once it is exceeded.
func (t *TrailingStop) candle(prev, cur market.Candle) bool {
	switch t.side {
	case market.Long:
		if prev.Bullish() && cur.Low < prev.Low {
			return t.ratchet(prev.Low)
		}
	case market.Short:
		if prev.Bearish() && cur.High > prev.High {
			return t.ratchet(prev.High)
		}
	}
	return false
}

// Touched reports whether the adverse extreme reached the stop.
func (t *TrailingStop) Touched(high, low float64) bool {
	if !t.Armed || !t.HasStop {
		return false
	}
	switch t.side {
	case market.Long:
		return low <= t.Stop
	case market.Short:
		return high >= t.Stop
	}
	return false
}
