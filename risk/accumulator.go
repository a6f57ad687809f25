package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Accumulator tracks profit for the open trade and the trading day.
type Accumulator struct {
	PerTradeUnrealized    float64
	PerTradeTargetReached bool
	DailyRealized         decimal.Decimal
	DailyTargetReached    bool
	LastResetDate         time.Time
}

// DailyTotal is realized plus the open trade's unrealized P&L.
func (a Accumulator) DailyTotal() float64 {
	return a.DailyRealized.InexactFloat64() + a.PerTradeUnrealized
}

func (a Accumulator) Realized() float64 {
	return a.DailyRealized.InexactFloat64()
}
