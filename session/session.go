// Package session handles trading-day rollover, the session-close
// flatten window and restart reconciliation.
package session

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/obtrader/broker"
	"github.com/rustyeddy/obtrader/market"
)

type Phase int8

const (
	Uninitialized Phase = iota
	Reconciling
	Synced
)

func (p Phase) String() string {
	switch p {
	case Reconciling:
		return "reconciling"
	case Synced:
		return "synced"
	default:
		return "uninitialized"
	}
}

type Config struct {
	DailyResetEnabled  bool
	ResetPerTradeDaily bool
	AutoReconcile      bool

	Location      *time.Location // trading-date time zone, UTC when nil
	SessionClose  time.Duration  // offset from local midnight, 0 disables
	FlattenBefore time.Duration  // window before SessionClose, 0 disables
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Record is the transient restart state kept while reconciling.
type Record struct {
	IsFirstEvaluation bool
	SyncComplete      bool
	Observed          *broker.Position
}

// Outcome of a reconciliation.
type Outcome struct {
	Adopted  bool // a live position was adopted
	Position broker.Position
	Degraded bool // entry price not recoverable, estimate used
	Fallback bool // forced by timeout
}

// Manager owns the phase and the trading date for one instrument.
type Manager struct {
	cfg Config
	log zerolog.Logger

	phase    Phase
	record   Record
	lastDate time.Time
}

func New(cfg Config, log zerolog.Logger) *Manager {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Manager{
		cfg: cfg,
		log: log.With().Str("component", "session").Logger(),
	}
}

func (m *Manager) Config() Config { return m.cfg }
func (m *Manager) Phase() Phase   { return m.phase }
func (m *Manager) Record() Record { return m.record }

// LastDate is the last recorded trading date.
func (m *Manager) LastDate() time.Time { return m.lastDate }

// Start moves to Reconciling, or straight to Synced when automatic
// reconciliation is off.
func (m *Manager) Start() {
	m.record = Record{IsFirstEvaluation: true}
	if !m.cfg.AutoReconcile {
		m.setPhase(Synced)
		m.record.SyncComplete = true
		return
	}
	m.setPhase(Reconciling)
}

// Reconcile settles the phase from the venue's reported position. A
// reported position without a usable average price is adopted with
// fallbackPrice and flagged degraded.
func (m *Manager) Reconcile(pos broker.Position, fallbackPrice float64) (Outcome, bool) {
	if m.phase != Reconciling {
		return Outcome{}, false
	}
	p := pos
	m.record.Observed = &p

	out := Outcome{Position: pos}
	if pos.Side != market.Flat {
		out.Adopted = true
		if pos.AveragePrice <= 0 {
			out.Position.AveragePrice = fallbackPrice
			out.Degraded = true
		}
		m.log.Warn().
			Str("side", pos.Side.String()).
			Float64("quantity", pos.Quantity).
			Float64("avg_price", out.Position.AveragePrice).
			Bool("estimated_price", out.Degraded).
			Msg("degraded recovery: adopted live position, realized P&L for the day estimated")
	}
	m.sync()
	return out, true
}

// BeginEvaluation is called at the start of every bar-close evaluation.
// After one full evaluation in Reconciling it forces Synced and reports
// true.
func (m *Manager) BeginEvaluation() bool {
	if m.phase != Reconciling || m.record.IsFirstEvaluation {
		return false
	}
	m.log.Warn().Msg("reconciliation inconclusive, forcing synced")
	m.sync()
	return true
}

// EndEvaluation marks a bar-close evaluation complete.
func (m *Manager) EndEvaluation() {
	m.record.IsFirstEvaluation = false
}

func (m *Manager) sync() {
	m.record.SyncComplete = true
	m.setPhase(Synced)
}

func (m *Manager) setPhase(p Phase) {
	if m.phase == p {
		return
	}
	m.log.Info().Str("from", m.phase.String()).Str("to", p.String()).Msg("phase change")
	m.phase = p
}

// TradingDate is the calendar date of at in the session time zone.
func (m *Manager) TradingDate(at time.Time) time.Time {
	l := at.In(m.cfg.Location)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, m.cfg.Location)
}

// Rollover records at's trading date and reports whether it starts a
// new day that must reset the daily accumulators. The first date seen
// only initializes the record.
func (m *Manager) Rollover(at time.Time) bool {
	d := m.TradingDate(at)
	if m.lastDate.IsZero() {
		m.lastDate = d
		return false
	}
	if d.Equal(m.lastDate) {
		return false
	}
	prev := m.lastDate
	m.lastDate = d
	if !m.cfg.DailyResetEnabled {
		return false
	}
	m.log.Info().Time("from", prev).Time("to", d).Msg("trading day rollover")
	return true
}

// SetLastDate restores the recorded trading date.
func (m *Manager) SetLastDate(d time.Time) { m.lastDate = d }

// Closing reports whether at falls in or after the flatten window that
// precedes the session close on its trading date.
func (m *Manager) Closing(at time.Time) bool {
	if m.cfg.SessionClose <= 0 || m.cfg.FlattenBefore <= 0 {
		return false
	}
	l := at.In(m.cfg.Location)
	secs := int((m.cfg.SessionClose - m.cfg.FlattenBefore) / time.Second)
	start := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, secs, 0, m.cfg.Location)
	return !l.Before(start)
}

// EntriesAllowed reports whether new entries may be opened at at.
func (m *Manager) EntriesAllowed(at time.Time) (bool, string) {
	if m.phase != Synced {
		return false, "session " + m.phase.String()
	}
	if m.Closing(at) {
		return false, "session closing"
	}
	return true, ""
}
