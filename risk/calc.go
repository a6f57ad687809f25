package risk

import (
	"github.com/rustyeddy/obtrader/market"
	"github.com/shopspring/decimal"
)

// PnL of qty contracts held on side from entry to price.
func PnL(side market.Side, entry, price, qty, pointValue float64) float64 {
	return float64(side) * (price - entry) * qty * pointValue
}

// RealizedPnL is PnL computed in decimal so daily sums do not drift.
func RealizedPnL(side market.Side, entry, price, qty, pointValue float64) decimal.Decimal {
	return decimal.NewFromFloat(price).
		Sub(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromFloat(qty)).
		Mul(decimal.NewFromFloat(pointValue)).
		Mul(decimal.NewFromInt(int64(side)))
}
