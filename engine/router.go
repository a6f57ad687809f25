package engine

import (
	"context"
	"fmt"
	"sort"
)

// Router gives every instrument its own Engine and routes events by
// instrument. Engines share nothing.
type Router struct {
	engines map[string]*Engine
}

func NewRouter(engines ...*Engine) (*Router, error) {
	r := &Router{engines: make(map[string]*Engine, len(engines))}
	for _, e := range engines {
		name := e.Instrument()
		if _, dup := r.engines[name]; dup {
			return nil, fmt.Errorf("duplicate engine for %q", name)
		}
		r.engines[name] = e
	}
	return r, nil
}

func (r *Router) Engine(instrument string) (*Engine, bool) {
	e, ok := r.engines[instrument]
	return e, ok
}

// Instruments lists the routed instruments in sorted order.
func (r *Router) Instruments() []string {
	out := make([]string, 0, len(r.engines))
	for k := range r.engines {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Router) Dispatch(ev Event) error {
	e, ok := r.engines[ev.Instrument]
	if !ok {
		return fmt.Errorf("%s event for %q: %w", ev.Kind, ev.Instrument, ErrUnknownInstrument)
	}
	return e.Dispatch(ev)
}

func (r *Router) Run(ctx context.Context, events <-chan Event, errs chan<- error) error {
	return Run(ctx, r, events, errs)
}
