// Package position holds the directional position state machine driven
// by green/red signals.
package position

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/obtrader/broker"
	"github.com/rustyeddy/obtrader/market"
	"github.com/rustyeddy/obtrader/mitigation"
	"github.com/rustyeddy/obtrader/pkg/id"
)

// Cycle selects which transitions the machine allows.
type Cycle int8

const (
	// Flip cycles Flat -> Long -> Short -> Long ...
	Flip Cycle = iota
	// ShortOnly cycles Flat <-> Short.
	ShortOnly
)

func (c Cycle) String() string {
	if c == ShortOnly {
		return "short-only"
	}
	return "flip"
}

func ParseCycle(s string) (Cycle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flip", "":
		return Flip, nil
	case "short-only":
		return ShortOnly, nil
	default:
		return Flip, fmt.Errorf("unknown cycle %q", s)
	}
}

type Config struct {
	Instrument string
	Cycle      Cycle
	Shorting   bool
	Quantity   float64
}

// State is the one position held per instrument.
type State struct {
	Side       market.Side
	EntryPrice float64
	Quantity   float64
	EntryTime  time.Time
}

func (s State) Flat() bool { return s.Side == market.Flat }

// Gate decides whether a new entry on side may be opened. The reason is
// logged when it refuses.
type Gate interface {
	EntryAllowed(side market.Side) (bool, string)
}

// GateFunc adapts a function to Gate.
type GateFunc func(side market.Side) (bool, string)

func (f GateFunc) EntryAllowed(side market.Side) (bool, string) { return f(side) }

// OpenGate allows every entry.
var OpenGate = GateFunc(func(market.Side) (bool, string) { return true, "" })

type Machine struct {
	cfg   Config
	state State
	log   zerolog.Logger

	// justEntered blocks signal-driven exits for the rest of the
	// evaluation that made the entry.
	justEntered bool
}

func New(cfg Config, log zerolog.Logger) *Machine {
	if cfg.Quantity <= 0 {
		cfg.Quantity = 1
	}
	if cfg.Cycle == ShortOnly {
		cfg.Shorting = true
	}
	return &Machine{
		cfg: cfg,
		log: log.With().Str("component", "position").Str("instrument", cfg.Instrument).Logger(),
	}
}

func (m *Machine) State() State      { return m.state }
func (m *Machine) Config() Config    { return m.cfg }
func (m *Machine) JustEntered() bool { return m.justEntered }

// EndBar clears the just-entered guard. Call once the bar close
// evaluation has applied all of its signals.
func (m *Machine) EndBar() { m.justEntered = false }

// OnSignal applies a green or red signal at price. Green targets long,
// red targets short. An opposite position is exited and, when the cycle
// and the gate allow, the target side is entered. The state changes
// once, after every intent has been built.
func (m *Machine) OnSignal(kind mitigation.Kind, price float64, at time.Time, gate Gate) []broker.Intent {
	var target market.Side
	switch kind {
	case mitigation.Green:
		target = market.Long
	case mitigation.Red:
		target = market.Short
	default:
		return nil
	}
	if gate == nil {
		gate = OpenGate
	}

	cur := m.state.Side
	if cur == target {
		m.log.Warn().Str("side", target.String()).Str("signal", kind.String()).Msg("skipped duplicate entry")
		return nil
	}

	var intents []broker.Intent
	next := m.state

	if cur != market.Flat {
		if m.justEntered {
			m.log.Debug().Str("signal", kind.String()).Msg("exit suppressed on entry bar")
			return nil
		}
		intents = append(intents, m.intent(broker.Exit, cur, price, m.state.Quantity, kind.String()+"-exit", at))
		next = State{}
	}

	entered := false
	if m.sideEnabled(target) {
		if ok, why := gate.EntryAllowed(target); ok {
			intents = append(intents, m.intent(broker.Enter, target, price, m.cfg.Quantity, kind.String()+"-entry", at))
			next = State{Side: target, EntryPrice: price, Quantity: m.cfg.Quantity, EntryTime: at}
			entered = true
		} else {
			m.log.Info().Str("side", target.String()).Str("reason", why).Msg("entry blocked")
		}
	}

	m.state = next
	if entered {
		m.justEntered = true
	}
	return intents
}

// ForceExit closes the open position regardless of signals.
func (m *Machine) ForceExit(price float64, at time.Time, reason string) (broker.Intent, bool) {
	if m.state.Flat() {
		return broker.Intent{}, false
	}
	in := m.intent(broker.Exit, m.state.Side, price, m.state.Quantity, reason, at)
	m.state = State{}
	return in, true
}

// Adopt replaces the state with an externally observed position without
// emitting intents.
func (m *Machine) Adopt(s State) {
	m.state = s
	m.justEntered = false
}

// SetEntryPrice corrects the entry price once the entry fill is known.
func (m *Machine) SetEntryPrice(price float64) {
	if !m.state.Flat() {
		m.state.EntryPrice = price
	}
}

func (m *Machine) sideEnabled(side market.Side) bool {
	switch m.cfg.Cycle {
	case ShortOnly:
		return side == market.Short
	default:
		return side == market.Long || m.cfg.Shorting
	}
}

func (m *Machine) intent(a broker.Action, side market.Side, price, qty float64, reason string, at time.Time) broker.Intent {
	return broker.Intent{
		ID:         id.New(),
		Instrument: m.cfg.Instrument,
		Action:     a,
		Side:       side,
		PriceHint:  price,
		Quantity:   qty,
		Reason:     reason,
		Time:       at,
	}
}
