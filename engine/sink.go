package engine

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/obtrader/broker"
	"github.com/rustyeddy/obtrader/mitigation"
)

// Signal is an advisory green/red event for visualization or alerts.
type Signal struct {
	Instrument string
	Kind       mitigation.Kind
	Level      float64
	Time       time.Time
}

// Sink receives intents and signals. Calls must not block the engine.
type Sink interface {
	broker.IntentSink
	OnSignal(Signal)
}

// Sinks fans out to every sink in order.
type Sinks []Sink

func (s Sinks) OnIntent(in broker.Intent) {
	for _, k := range s {
		k.OnIntent(in)
	}
}

func (s Sinks) OnSignal(sig Signal) {
	for _, k := range s {
		k.OnSignal(sig)
	}
}

// Intents adapts an intent-only consumer such as an execution venue.
func Intents(s broker.IntentSink) Sink { return intentsOnly{s} }

type intentsOnly struct{ broker.IntentSink }

func (intentsOnly) OnSignal(Signal) {}

// LogSink writes intents and signals to a logger, the alerting
// collaborator of last resort.
type LogSink struct {
	Log zerolog.Logger
}

func (l LogSink) OnIntent(in broker.Intent) {
	l.Log.Info().
		Str("id", in.ID).
		Str("instrument", in.Instrument).
		Str("action", in.Action.String()).
		Str("side", in.Side.String()).
		Float64("price", in.PriceHint).
		Float64("qty", in.Quantity).
		Str("reason", in.Reason).
		Time("at", in.Time).
		Msg("intent")
}

func (l LogSink) OnSignal(s Signal) {
	l.Log.Info().
		Str("instrument", s.Instrument).
		Str("kind", s.Kind.String()).
		Float64("level", s.Level).
		Time("at", s.Time).
		Msg("signal")
}

// ChanSink forwards to buffered channels and drops what does not fit.
type ChanSink struct {
	Intents chan broker.Intent
	Signals chan Signal
	log     zerolog.Logger
}

func NewChanSink(size int, log zerolog.Logger) *ChanSink {
	return &ChanSink{
		Intents: make(chan broker.Intent, size),
		Signals: make(chan Signal, size),
		log:     log.With().Str("component", "sink").Logger(),
	}
}

func (c *ChanSink) OnIntent(in broker.Intent) {
	select {
	case c.Intents <- in:
	default:
		c.log.Warn().Str("intent", in.String()).Msg("sink full, intent dropped")
	}
}

func (c *ChanSink) OnSignal(s Signal) {
	select {
	case c.Signals <- s:
	default:
		c.log.Warn().Str("kind", s.Kind.String()).Msg("sink full, signal dropped")
	}
}
