package engine

import (
	"context"
	"time"

	"github.com/rustyeddy/obtrader/broker"
	"github.com/rustyeddy/obtrader/market"
)

type EventKind int8

const (
	BarEvent EventKind = iota + 1
	PriceEvent
	FillEvent
	PositionEvent
	ResetEvent
)

func (k EventKind) String() string {
	switch k {
	case BarEvent:
		return "bar"
	case PriceEvent:
		return "price"
	case FillEvent:
		return "fill"
	case PositionEvent:
		return "position"
	case ResetEvent:
		return "reset"
	default:
		return "unknown"
	}
}

// PriceUpdate carries the forming bar's live values. High and Low are
// the running extremes; a close-only update leaves them and Open zero.
type PriceUpdate struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

func (p PriceUpdate) candle() market.Candle {
	return market.Candle{Open: p.Open, High: p.High, Low: p.Low, Close: p.Close, Time: p.Time}
}

// Event is one item of the ordered inbound stream.
type Event struct {
	Kind       EventKind
	Instrument string
	Bar        market.Candle
	Price      PriceUpdate
	Fill       broker.Fill
	Position   broker.Position
}

func Bar(instrument string, c market.Candle) Event {
	return Event{Kind: BarEvent, Instrument: instrument, Bar: c}
}

func Price(instrument string, p PriceUpdate) Event {
	return Event{Kind: PriceEvent, Instrument: instrument, Price: p}
}

func Fill(f broker.Fill) Event {
	return Event{Kind: FillEvent, Instrument: f.Instrument, Fill: f}
}

func PositionReport(p broker.Position) Event {
	return Event{Kind: PositionEvent, Instrument: p.Instrument, Position: p}
}

// Dispatcher handles one event at a time.
type Dispatcher interface {
	Dispatch(ev Event) error
}

// Run feeds events to d in order until events is closed or ctx is done.
// Event errors go to errs when it is non-nil and processing continues;
// otherwise the first error stops the loop.
func Run(ctx context.Context, d Dispatcher, events <-chan Event, errs chan<- error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			err := d.Dispatch(ev)
			if err == nil {
				continue
			}
			if errs == nil {
				return err
			}
			select {
			case errs <- err:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
