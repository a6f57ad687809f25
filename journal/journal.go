// Package journal records closed trades, signals and backtest runs.
package journal

import (
	"time"

	"github.com/rustyeddy/obtrader/market"
)

// TradeRecord is one round trip: entry fill to exit fill.
type TradeRecord struct {
	TradeID    string
	Instrument string
	Side       market.Side
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Reason     string // exit reason
}

// SignalRecord is a published green or red signal.
type SignalRecord struct {
	Time       time.Time
	Instrument string
	Kind       string
	Level      float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordSignal(SignalRecord) error
	Close() error
}
