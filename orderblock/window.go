package orderblock

import "github.com/rustyeddy/obtrader/market"

// Lookback is the number of bars preceding the current bar used for the
// break-of-structure test.
const Lookback = 3

// WindowSize is the number of closed bars the detector retains.
const WindowSize = Lookback + 1

// Window is a fixed-size ring of the most recent bars. Offset 0 is the
// current bar, offset 1 the bar before it, and so on.
type Window struct {
	buf   [WindowSize]market.Candle
	head  int // slot of the current bar
	n     int
	total int
}

// Push appends a bar, evicting the oldest once the ring is full.
func (w *Window) Push(c market.Candle) {
	if w.n > 0 {
		w.head = (w.head + 1) % WindowSize
	}
	w.buf[w.head] = c
	if w.n < WindowSize {
		w.n++
	}
	w.total++
}

// At returns the bar at the logical offset.
func (w *Window) At(offset int) (market.Candle, bool) {
	if offset < 0 || offset >= w.n {
		return market.Candle{}, false
	}
	i := (w.head - offset + WindowSize) % WindowSize
	return w.buf[i], true
}

// Seq returns the zero-based sequence number of the bar at offset, counted
// over every bar ever pushed.
func (w *Window) Seq(offset int) int { return w.total - 1 - offset }

func (w *Window) Len() int   { return w.n }
func (w *Window) Full() bool { return w.n == WindowSize }

func (w *Window) Reset() { *w = Window{} }
