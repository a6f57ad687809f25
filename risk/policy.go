package risk

import "fmt"

// Config holds the profit target and trailing stop settings. Zero
// disables a target or a trailing rule.
type Config struct {
	PerTradeTarget float64 // currency
	DailyTarget    float64 // currency

	TrailActivation    float64 // price units of favorable move before the trail arms
	TrailDistance      float64 // price units behind the favorable extreme
	TrailATRPeriod     int
	TrailATRMultiplier float64 // distance = ATR * multiplier once the ATR is ready
	CandleTrail        bool    // trail to the prior same-colored candle's extreme

	PointValue float64 // contract multiplier
}

func (c Config) Validate() error {
	switch {
	case c.PerTradeTarget < 0:
		return fmt.Errorf("per-trade target must be >= 0, got %v", c.PerTradeTarget)
	case c.DailyTarget < 0:
		return fmt.Errorf("daily target must be >= 0, got %v", c.DailyTarget)
	case c.TrailActivation < 0 || c.TrailDistance < 0:
		return fmt.Errorf("trail activation and distance must be >= 0")
	case c.TrailATRMultiplier < 0:
		return fmt.Errorf("trail ATR multiplier must be >= 0, got %v", c.TrailATRMultiplier)
	case c.TrailATRMultiplier > 0 && c.TrailATRPeriod < 1:
		return fmt.Errorf("trail ATR period must be >= 1 when a multiplier is set")
	case c.PointValue < 0:
		return fmt.Errorf("point value must be >= 0, got %v", c.PointValue)
	}
	return nil
}

func (c Config) trailing() bool {
	return c.TrailDistance > 0 || c.TrailATRMultiplier > 0 || c.CandleTrail
}

func (c Config) pointValue() float64 {
	if c.PointValue <= 0 {
		return 1
	}
	return c.PointValue
}
