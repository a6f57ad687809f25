package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/obtrader/journal"
	"github.com/rustyeddy/obtrader/pkg/id"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Result is a summary of a backtest run.
type Result struct {
	Instrument string
	Start      time.Time
	End        time.Time
	Bars       int
	Skipped    int

	Trades []journal.TradeRecord

	Wins   int
	Losses int

	NetPL       float64
	WinRate     float64
	MeanPL      float64
	StdDevPL    float64
	MaxDrawdown float64

	// EngineRealized is the engine's own view of today's realized P&L,
	// booked from fills.
	EngineRealized float64
}

// TradeCount is the number of closed trades.
func (r Result) TradeCount() int { return len(r.Trades) }

// Summarize computes trade statistics. The equity curve is the running
// sum of realized P&L; drawdown is measured from its running peak.
func Summarize(trades []journal.TradeRecord) Result {
	res := Result{Trades: trades}
	if len(trades) == 0 {
		return res
	}

	pl := make([]float64, len(trades))
	for i, t := range trades {
		pl[i] = t.RealizedPL
		switch {
		case t.RealizedPL > 0:
			res.Wins++
		case t.RealizedPL < 0:
			res.Losses++
		}
	}

	res.NetPL = floats.Sum(pl)
	res.WinRate = float64(res.Wins) / float64(len(pl))
	if len(pl) > 1 {
		res.MeanPL, res.StdDevPL = stat.MeanStdDev(pl, nil)
	} else {
		res.MeanPL = pl[0]
	}

	equity := floats.CumSum(make([]float64, len(pl)), pl)
	peak := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if dd := peak - e; dd > res.MaxDrawdown {
			res.MaxDrawdown = dd
		}
	}
	return res
}

// BacktestRun converts the result into a journal row. cfg is the
// engine config as YAML.
func (r Result) BacktestRun(dataset string, cfg []byte) journal.BacktestRun {
	return journal.BacktestRun{
		RunID:       id.New(),
		Created:     time.Now().UTC(),
		Instrument:  r.Instrument,
		Dataset:     dataset,
		Config:      cfg,
		Start:       r.Start,
		End:         r.End,
		Bars:        r.Bars,
		Trades:      len(r.Trades),
		Wins:        r.Wins,
		Losses:      r.Losses,
		NetPL:       r.NetPL,
		WinRate:     r.WinRate,
		MeanPL:      r.MeanPL,
		StdDevPL:    r.StdDevPL,
		MaxDrawdown: r.MaxDrawdown,
	}
}

func PrintResult(w io.Writer, r Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Instrument:    %s\n", r.Instrument)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Bars:          %d\n", r.Bars)
	if r.Skipped > 0 {
		fmt.Fprintf(w, "Skipped:       %d\n", r.Skipped)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", len(r.Trades))
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate*100)
	fmt.Fprintf(w, "Mean P/L:      %.2f\n", r.MeanPL)
	fmt.Fprintf(w, "Std Dev P/L:   %.2f\n", r.StdDevPL)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Net P/L:       %.2f\n", r.NetPL)
	if r.MaxDrawdown > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.2f\n", r.MaxDrawdown)
	}

	fmt.Fprintln(w)
}
