package engine

import (
	"fmt"

	"github.com/rustyeddy/obtrader/market"
	"github.com/rustyeddy/obtrader/mitigation"
	"github.com/rustyeddy/obtrader/position"
	"github.com/rustyeddy/obtrader/risk"
	"github.com/rustyeddy/obtrader/session"
)

// Config parameterizes one engine. Strategy variants are expressed as
// policies here rather than separate engines.
type Config struct {
	Instrument market.InstrumentMeta

	Quantity    float64
	Shorting    bool
	Cycle       position.Cycle
	FirstSignal mitigation.FirstSignalPolicy

	ChangeOfCharacter  bool
	LaggedInefficiency bool
	RealtimeExits      bool

	Risk    risk.Config
	Session session.Config
}

func (c Config) Validate() error {
	if c.Instrument.Name == "" {
		return fmt.Errorf("instrument name is required")
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("quantity must be > 0, got %v", c.Quantity)
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if c.Session.FlattenBefore < 0 || c.Session.SessionClose < 0 {
		return fmt.Errorf("session: negative close or flatten window")
	}
	return nil
}
