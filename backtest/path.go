package backtest

import (
	"github.com/rustyeddy/obtrader/engine"
	"github.com/rustyeddy/obtrader/market"
)

// Path synthesizes the intrabar updates a bar most plausibly went
// through: open, then the nearer extreme, then the farther one. Bullish
// bars visit the low first, bearish bars the high. Each update carries
// the bar's running high and low. The closing update is left to the
// bar close itself.
func Path(c market.Candle) []engine.PriceUpdate {
	at := func(high, low, px float64) engine.PriceUpdate {
		return engine.PriceUpdate{Time: c.Time, Open: c.Open, High: high, Low: low, Close: px}
	}

	out := []engine.PriceUpdate{at(c.Open, c.Open, c.Open)}
	if c.Bearish() {
		out = append(out,
			at(c.High, c.Open, c.High),
			at(c.High, c.Low, c.Low),
		)
	} else {
		out = append(out,
			at(c.Open, c.Low, c.Low),
			at(c.High, c.Low, c.High),
		)
	}
	return out
}
