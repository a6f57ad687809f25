package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNonNumeric is returned when a candle carries a NaN or infinite price.
var ErrNonNumeric = errors.New("non-numeric price")

// Candle represents OHLC (Open, High, Low, Close) candlestick data.
// A closed candle is never mutated after it is published.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Time   time.Time
	Volume float64
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }

// Body is the absolute size of the candle's real body.
func (c Candle) Body() float64 { return math.Abs(c.Close - c.Open) }

// Numeric reports whether all four prices are finite numbers.
func (c Candle) Numeric() bool {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate checks the candle is usable by the engine.
func (c Candle) Validate() error {
	if !c.Numeric() {
		return fmt.Errorf("candle %s: %w", c.Time.Format(time.RFC3339), ErrNonNumeric)
	}
	if c.Time.IsZero() {
		return fmt.Errorf("candle has no timestamp")
	}
	if c.High < c.Low {
		return fmt.Errorf("candle %s: high %.5f below low %.5f", c.Time.Format(time.RFC3339), c.High, c.Low)
	}
	return nil
}
