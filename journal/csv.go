package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

type CSVJournal struct {
	trades  *csv.Writer
	signals *csv.Writer
	tf, sf  *os.File
}

var (
	tradeHeader  = []string{"trade_id", "instrument", "side", "quantity", "entry_price", "exit_price", "open_time", "close_time", "realized_pl", "reason"}
	signalHeader = []string{"time", "instrument", "kind", "level"}
)

func NewCSV(tradesPath, signalsPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, fmt.Errorf("create trades journal: %w", err)
	}
	sf, err := os.Create(signalsPath)
	if err != nil {
		_ = tf.Close()
		return nil, fmt.Errorf("create signals journal: %w", err)
	}

	j := &CSVJournal{trades: csv.NewWriter(tf), signals: csv.NewWriter(sf), tf: tf, sf: sf}
	if err := j.write(j.trades, tradeHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	if err := j.write(j.signals, signalHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	return j.write(j.trades, []string{
		t.TradeID,
		t.Instrument,
		t.Side.String(),
		f(t.Quantity),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		f(t.RealizedPL),
		t.Reason,
	})
}

func (j *CSVJournal) RecordSignal(s SignalRecord) error {
	return j.write(j.signals, []string{
		s.Time.Format(time.RFC3339),
		s.Instrument,
		s.Kind,
		f(s.Level),
	})
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	j.signals.Flush()
	err := j.trades.Error()
	if e := j.signals.Error(); err == nil {
		err = e
	}
	if e := j.tf.Close(); err == nil {
		err = e
	}
	if e := j.sf.Close(); err == nil {
		err = e
	}
	return err
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
