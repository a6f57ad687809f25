package market

import (
	"fmt"
	"io"
	"time"
)

// Gap is a run of missing bars between two present ones.
type Gap struct {
	After time.Time // close time of the last bar before the gap
	Len   int       // number of missing intervals
	Kind  string    // weekend, suspicious or minor
}

type GapStats struct {
	Bars           int
	Missing        int
	GapCount       int
	WeekendGaps    int
	SuspiciousGaps int
	LongestGap     int
	LongestGapKind string
	First, Last    time.Time
}

// Gaps reports the missing intervals in a time-ordered bar series with
// a fixed timeframe.
func Gaps(bars []Candle, tf time.Duration) []Gap {
	var gaps []Gap
	if tf <= 0 {
		return gaps
	}
	for i := 1; i < len(bars); i++ {
		missing := int(bars[i].Time.Sub(bars[i-1].Time)/tf) - 1
		if missing <= 0 {
			continue
		}
		gaps = append(gaps, Gap{
			After: bars[i-1].Time,
			Len:   missing,
			Kind:  classifyGap(bars[i-1].Time, time.Duration(missing)*tf),
		})
	}
	return gaps
}

func classifyGap(start time.Time, d time.Duration) string {
	wd := start.UTC().Weekday()

	// Weekend-ish if gap >= 24h and starts Fri/Sat/Sun (UTC heuristic)
	if d >= 24*time.Hour {
		if wd == time.Friday || wd == time.Saturday || wd == time.Sunday {
			return "weekend"
		}
		return "suspicious"
	}

	// Anything >= 10 minutes missing is worth flagging
	if d >= 10*time.Minute {
		return "suspicious"
	}

	return "minor"
}

func Stats(bars []Candle, tf time.Duration) GapStats {
	s := GapStats{Bars: len(bars)}
	if len(bars) > 0 {
		s.First, s.Last = bars[0].Time, bars[len(bars)-1].Time
	}
	for _, g := range Gaps(bars, tf) {
		s.GapCount++
		s.Missing += g.Len
		if g.Len > s.LongestGap {
			s.LongestGap = g.Len
			s.LongestGapKind = g.Kind
		}
		switch g.Kind {
		case "weekend":
			s.WeekendGaps++
		case "suspicious":
			s.SuspiciousGaps++
		}
	}
	return s
}

func (s GapStats) Print(w io.Writer, tf time.Duration) {
	fmt.Fprintln(w, "---- Bar Series Stats ----")
	fmt.Fprintf(w, "Range: %s → %s\n", s.First.Format(time.RFC3339), s.Last.Format(time.RFC3339))
	fmt.Fprintf(w, "               Timeframe: %s\n", tf)
	fmt.Fprintf(w, "            Present Bars: %d\n", s.Bars)
	fmt.Fprintf(w, "            Missing Bars: %d\n", s.Missing)
	fmt.Fprintf(w, "              Total Gaps: %d\n", s.GapCount)
	fmt.Fprintf(w, "            Weekend Gaps: %d\n", s.WeekendGaps)
	fmt.Fprintf(w, "         Suspicious Gaps: %d\n", s.SuspiciousGaps)
	fmt.Fprintf(w, "Longest Gap: %d bars (%s)\n", s.LongestGap, s.LongestGapKind)
	fmt.Fprintln(w, "--------------------------")
}

// bucketEnd is the close time of the tf bucket that a bar closing at t
// belongs to.
func bucketEnd(t time.Time, tf time.Duration) time.Time {
	end := t.Truncate(tf)
	if !end.Equal(t) {
		end = end.Add(tf)
	}
	return end
}

// Aggregate rolls time-ordered bars up into tf bars stamped with the
// bucket's close time. Buckets with fewer than minValid source bars are
// dropped.
func Aggregate(bars []Candle, tf time.Duration, minValid int) []Candle {
	if minValid < 1 {
		minValid = 1
	}
	var (
		out   []Candle
		cur   Candle
		count int
	)
	flush := func() {
		if count >= minValid {
			out = append(out, cur)
		}
		count = 0
	}

	for _, b := range bars {
		end := bucketEnd(b.Time, tf)
		if count > 0 && !end.Equal(cur.Time) {
			flush()
		}
		if count == 0 {
			cur = Candle{Open: b.Open, High: b.High, Low: b.Low, Time: end}
		} else {
			if b.High > cur.High {
				cur.High = b.High
			}
			if b.Low < cur.Low {
				cur.Low = b.Low
			}
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
		count++
	}
	if count > 0 {
		flush()
	}
	return out
}
