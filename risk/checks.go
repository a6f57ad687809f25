package risk

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/obtrader/market"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason joins the violation messages.
func (d Decision) Reason() string {
	msgs := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		msgs = append(msgs, v.Msg)
	}
	return strings.Join(msgs, "; ")
}

// Check decides whether a new entry on side is allowed by the profit
// targets.
func (m *Manager) Check(side market.Side) Decision {
	d := Decision{Allowed: true}

	if m.acc.DailyTargetReached {
		d.add("DAILY_TARGET",
			fmt.Sprintf("daily total %.2f reached target %.2f", m.acc.DailyTotal(), m.cfg.DailyTarget))
	}
	if m.blocked[side] {
		d.add("PER_TRADE_TARGET",
			fmt.Sprintf("per-trade target reached on %s, direction blocked until reset", side))
	}
	return d
}

// EntryAllowed lets a Manager serve as a position gate.
func (m *Manager) EntryAllowed(side market.Side) (bool, string) {
	d := m.Check(side)
	return d.Allowed, d.Reason()
}
