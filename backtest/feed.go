package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/obtrader/market"
)

// BarFeed yields closed bars in time order. Implementations return
// (ok=false, err=nil) at EOF.
type BarFeed interface {
	Next() (c market.Candle, ok bool, err error)
	Close() error
}

// CSVBarFeed reads bar CSV rows:
//
//	time,open,high,low,close[,volume]
//
// where time is the bar's close time in RFC3339, RFC3339Nano or
// "2006-01-02 15:04:05" (UTC).
//
// It optionally filters bars to [From, To) if provided.
// Header row ("time,...") is allowed.
// Empty/short rows are skipped.
type CSVBarFeed struct {
	f    *os.File
	r    *csv.Reader
	from time.Time
	to   time.Time

	sawFirst bool
	line     int
}

func NewCSVBarFeed(path string, from, to time.Time) (*CSVBarFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	return &CSVBarFeed{f: f, r: r, from: from, to: to}, nil
}

func (f *CSVBarFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *CSVBarFeed) Next() (market.Candle, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return market.Candle{}, false, nil
		}
		if err != nil {
			return market.Candle{}, false, err
		}
		f.line++
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		c, ok, err := parseBarRow(row)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("line %d: %w", f.line, err)
		}
		if !ok {
			continue
		}
		if !inRange(c.Time, f.from, f.to) {
			continue
		}
		return c, true, nil
	}
}

var timeLayouts = []string{time.RFC3339, time.RFC3339Nano, "2006-01-02 15:04:05"}

func parseTime(s string) (time.Time, error) {
	var first error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if first == nil {
			first = err
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q: %w", s, first)
}

func parseBarRow(row []string) (market.Candle, bool, error) {
	// Need at least: time,open,high,low,close
	if len(row) < 5 {
		return market.Candle{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Candle{}, false, nil
	}
	t, err := parseTime(ts)
	if err != nil {
		return market.Candle{}, false, err
	}

	var px [4]float64
	for i, name := range [...]string{"open", "high", "low", "close"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("bad %s %q: %w", name, row[i+1], err)
		}
		px[i] = v
	}

	c := market.Candle{Time: t, Open: px[0], High: px[1], Low: px[2], Close: px[3]}
	if len(row) > 5 && strings.TrimSpace(row[5]) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("bad volume %q: %w", row[5], err)
		}
		c.Volume = v
	}
	return c, true, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// LoadBars reads a whole bar file into memory.
func LoadBars(path string, from, to time.Time) ([]market.Candle, error) {
	feed, err := NewCSVBarFeed(path, from, to)
	if err != nil {
		return nil, err
	}
	defer feed.Close()

	var bars []market.Candle
	for {
		c, ok, err := feed.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return bars, nil
		}
		bars = append(bars, c)
	}
}

// SliceFeed replays bars held in memory.
type SliceFeed struct {
	Bars []market.Candle
	i    int
}

func (s *SliceFeed) Next() (market.Candle, bool, error) {
	if s.i >= len(s.Bars) {
		return market.Candle{}, false, nil
	}
	c := s.Bars[s.i]
	s.i++
	return c, true, nil
}

func (s *SliceFeed) Close() error { return nil }
