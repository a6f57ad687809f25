// Package orderblock detects order blocks: a directional inefficiency
// followed by a break of the preceding structure. Detection is a pure
// function of the last WindowSize bars.
package orderblock

import (
	"math"
	"time"

	"github.com/rustyeddy/obtrader/market"
)

// InefficiencyRatio is the multiple of the prior candle's body the gap must exceed.
const InefficiencyRatio = 1.5

// Direction of an order block.
type Direction int8

const (
	Bullish Direction = +1
	Bearish Direction = -1
)

func (d Direction) String() string {
	if d == Bearish {
		return "bearish"
	}
	return "bullish"
}

// Candidate is a detected order block. It only lives until the
// mitigation tracker has consumed it.
type Candidate struct {
	Level          float64 // open of the bar preceding the detecting bar
	Direction      Direction
	SourceBarIndex int
	Time           time.Time // close time of the detecting bar
}

type Options struct {
	Direction Direction

	// RequireChangeOfCharacter accepts only outside bars that break the
	// preceding structure on both sides.
	RequireChangeOfCharacter bool

	// LaggedInefficiency measures the gap on the previous pair of bars
	// instead of the prior/current pair.
	LaggedInefficiency bool
}

func (o Options) direction() Direction {
	if o.Direction == 0 {
		return Bullish
	}
	return o.Direction
}

// Inefficient reports whether the gap between prior and current exceeds
// InefficiencyRatio times the prior body. Bullish measures prior high to
// current low; bearish measures prior low to current high.
func Inefficient(prior, current market.Candle, dir Direction) bool {
	gap := prior.High - current.Low
	if dir == Bearish {
		gap = prior.Low - current.High
	}
	return math.Abs(gap) > math.Abs(prior.Close-prior.Open)*InefficiencyRatio
}

// BreakOfStructure compares current against the preceding bars. bos is
// the breakout in the block direction, choch is bos plus a simultaneous
// break of the opposite side.
func BreakOfStructure(current market.Candle, preceding []market.Candle, dir Direction) (bos, choch bool) {
	if len(preceding) == 0 {
		return false, false
	}
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, c := range preceding {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	up := current.High > hi
	down := current.Low < lo
	if dir == Bearish {
		return down, down && up
	}
	return up, up && down
}

// Detect evaluates the window. It needs a full window and numeric prices
// on every bar it reads.
func Detect(w *Window, opts Options) (Candidate, bool) {
	if !w.Full() {
		return Candidate{}, false
	}
	var bars [WindowSize]market.Candle
	for i := range bars {
		bars[i], _ = w.At(i)
		if !bars[i].Numeric() {
			return Candidate{}, false
		}
	}

	dir := opts.direction()
	current, prior := bars[0], bars[1]

	var ineff bool
	if opts.LaggedInefficiency {
		ineff = Inefficient(bars[2], bars[1], dir)
	} else {
		ineff = Inefficient(prior, current, dir)
	}
	if !ineff {
		return Candidate{}, false
	}

	bos, choch := BreakOfStructure(current, bars[1:], dir)
	if opts.RequireChangeOfCharacter {
		bos = choch
	}
	if !bos {
		return Candidate{}, false
	}

	return Candidate{
		Level:          prior.Open,
		Direction:      dir,
		SourceBarIndex: w.Seq(1),
		Time:           current.Time,
	}, true
}

// Detector owns the trailing window of closed bars.
type Detector struct {
	opts Options
	win  Window
}

func NewDetector(opts Options) *Detector {
	return &Detector{opts: opts}
}

func (d *Detector) Options() Options { return d.opts }

// Push adds a closed bar and runs detection with it as the current bar.
func (d *Detector) Push(c market.Candle) (Candidate, bool) {
	d.win.Push(c)
	return Detect(&d.win, d.opts)
}

// Peek runs detection with a partially formed bar as the current bar
// without touching the closed-bar window.
func (d *Detector) Peek(forming market.Candle) (Candidate, bool) {
	w := d.win
	w.Push(forming)
	return Detect(&w, d.opts)
}

// Bar returns the closed bar at offset (0 = most recent).
func (d *Detector) Bar(offset int) (market.Candle, bool) { return d.win.At(offset) }

func (d *Detector) Reset() { d.win.Reset() }

// Scan runs a fresh detector over bars and returns every candidate.
func Scan(bars []market.Candle, opts Options) []Candidate {
	d := NewDetector(opts)
	var out []Candidate
	for _, b := range bars {
		if c, ok := d.Push(b); ok {
			out = append(out, c)
		}
	}
	return out
}
