package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/obtrader/market"
)

// Action of an order intent.
type Action int8

const (
	Enter Action = iota + 1
	Exit
)

func (a Action) String() string {
	switch a {
	case Enter:
		return "enter"
	case Exit:
		return "exit"
	default:
		return "unknown"
	}
}

// Intent is an advisory order instruction. The engine never waits for
// it to be acknowledged.
type Intent struct {
	ID         string
	Instrument string
	Action     Action
	Side       market.Side // side of the position being entered or exited
	PriceHint  float64
	Quantity   float64
	Reason     string
	Time       time.Time
}

func (i Intent) String() string {
	return fmt.Sprintf("%s %s %s qty=%.0f px=%.2f (%s)", i.Action, i.Side, i.Instrument, i.Quantity, i.PriceHint, i.Reason)
}

// Fill confirms execution of an intent.
type Fill struct {
	IntentID   string
	Instrument string
	Action     Action
	Side       market.Side
	Price      float64
	Quantity   float64
	Time       time.Time
}

// Position is the live position as reported by the execution venue.
type Position struct {
	Instrument   string
	Side         market.Side
	Quantity     float64
	AveragePrice float64
}

// PositionReporter reports the venue's view of the live position.
type PositionReporter interface {
	Position(ctx context.Context, instrument string) (Position, error)
}

// IntentSink receives order intents. Implementations must not block.
type IntentSink interface {
	OnIntent(Intent)
}
