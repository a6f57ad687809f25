// Package mitigation turns order block candidates into discrete green
// (fresh block) and red (block invalidated) signals.
package mitigation

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/obtrader/orderblock"
)

type Kind int8

const (
	None Kind = iota
	Green
	Red
)

func (k Kind) String() string {
	switch k {
	case Green:
		return "green"
	case Red:
		return "red"
	default:
		return "none"
	}
}

// FirstSignalPolicy decides whether the first candidate of a session may
// produce a green signal before any red has fired.
type FirstSignalPolicy int8

const (
	RequirePriorRed FirstSignalPolicy = iota
	AllowImmediate
)

func (p FirstSignalPolicy) String() string {
	if p == AllowImmediate {
		return "allow-immediate"
	}
	return "require-prior-red"
}

func ParseFirstSignalPolicy(s string) (FirstSignalPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "require-prior-red", "":
		return RequirePriorRed, nil
	case "allow-immediate":
		return AllowImmediate, nil
	default:
		return RequirePriorRed, fmt.Errorf("unknown first signal policy %q", s)
	}
}

// State is the tracker's persistent state for one direction.
type State struct {
	ActiveLevel   float64   `msgpack:"active_level"`
	HasLevel      bool      `msgpack:"has_level"`
	AwaitingFresh bool      `msgpack:"awaiting_fresh"`
	LastSignal    Kind      `msgpack:"last_signal"`
	LastBar       time.Time `msgpack:"last_bar"`
}

// Result of one evaluation.
type Result struct {
	Green       bool
	Red         bool
	ActiveLevel float64
	HasLevel    bool
	Duplicate   bool // bar already evaluated, nothing emitted
}

type Tracker struct {
	dir    orderblock.Direction
	policy FirstSignalPolicy
	state  State
}

func New(policy FirstSignalPolicy, dir orderblock.Direction) *Tracker {
	if dir == 0 {
		dir = orderblock.Bullish
	}
	t := &Tracker{dir: dir, policy: policy}
	t.Reset()
	return t
}

// Update evaluates a closed bar and commits the result. A bar at or
// before the last evaluated one is a duplicate and emits nothing.
func (t *Tracker) Update(at time.Time, close float64, cand *orderblock.Candidate) Result {
	if !t.state.LastBar.IsZero() && !at.After(t.state.LastBar) {
		return Result{
			ActiveLevel: t.state.ActiveLevel,
			HasLevel:    t.state.HasLevel,
			Duplicate:   true,
		}
	}
	res, next := evaluate(t.state, t.dir, close, cand)
	next.LastBar = at
	t.state = next
	return res
}

// Preview evaluates a forming bar with the same rules as Update but
// leaves the state untouched.
func (t *Tracker) Preview(close float64, cand *orderblock.Candidate) Result {
	res, _ := evaluate(t.state, t.dir, close, cand)
	return res
}

func evaluate(s State, dir orderblock.Direction, close float64, cand *orderblock.Candidate) (Result, State) {
	var res Result

	// The level carried over from the previous bar. Every close beyond
	// it is a red; repeats within one bar are stopped by Update.
	if s.HasLevel && breached(dir, close, s.ActiveLevel) {
		res.Red = true
		s.AwaitingFresh = true
		s.LastSignal = Red
	}

	if cand != nil {
		s.ActiveLevel = cand.Level
		s.HasLevel = true
		if s.AwaitingFresh {
			res.Green = true
			s.AwaitingFresh = false
			s.LastSignal = Green
		}
	}

	res.ActiveLevel = s.ActiveLevel
	res.HasLevel = s.HasLevel
	return res, s
}

func breached(dir orderblock.Direction, close, level float64) bool {
	if dir == orderblock.Bearish {
		return close > level
	}
	return close < level
}

func (t *Tracker) State() State                    { return t.state }
func (t *Tracker) Policy() FirstSignalPolicy       { return t.policy }
func (t *Tracker) Direction() orderblock.Direction { return t.dir }

// Restore replaces the state, e.g. from a checkpoint.
func (t *Tracker) Restore(s State) { t.state = s }

// SetAwaitingFresh forces the fresh-signal flag, used when a live
// position is adopted after a restart.
func (t *Tracker) SetAwaitingFresh(v bool) { t.state.AwaitingFresh = v }

// Reset clears all state. AllowImmediate starts out awaiting a fresh
// signal so the first candidate is tradeable.
func (t *Tracker) Reset() {
	t.state = State{AwaitingFresh: t.policy == AllowImmediate}
}
