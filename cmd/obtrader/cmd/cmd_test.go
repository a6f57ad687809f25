package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flipBars = `time,open,high,low,close
2025-03-03T14:30:00Z,100,101,99,100
2025-03-03T14:31:00Z,100,101,99,100
2025-03-03T14:32:00Z,100,101,99,100
2025-03-03T14:33:00Z,100,103,100.5,102.5
2025-03-03T14:34:00Z,101,101.5,98,99
2025-03-03T14:35:00Z,99,100,98.5,99.5
2025-03-03T14:36:00Z,101.2,104,101,103.5
`

const testConfig = `instrument:
  symbol: QQQ
strategy:
  quantity: 1
  shorting_enabled: true
  cycle: flip
  first_signal_policy: allow-immediate
log:
  level: error
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "obtrader version "+version)
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "obtrader.yaml")

	out, err := run(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration")

	out, err = run(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "Instrument: NQ")

	bad := writeFile(t, dir, "bad.yaml", "instrument:\n  symbol: \"\"\n")
	_, err = run(t, "config", "validate", "-f", bad)
	assert.Error(t, err)
}

func TestBacktestJournalAndScan(t *testing.T) {
	dir := t.TempDir()
	bars := writeFile(t, dir, "bars.csv", flipBars)
	cfg := writeFile(t, dir, "cfg.yaml", testConfig)
	db := filepath.Join(dir, "journal.sqlite")
	org := filepath.Join(dir, "run.org")

	out, err := run(t, "backtest", "--config", cfg, "--bars", bars, "--journal", db, "--org", org, "--intrabar")
	require.NoError(t, err)
	assert.Contains(t, out, "Trades:        3")
	assert.Contains(t, out, "Net P/L:       -8.00")
	assert.Contains(t, out, "Run ID:")

	report, err := os.ReadFile(org)
	require.NoError(t, err)
	assert.Contains(t, string(report), "* BACKTEST: order block QQQ")

	out, err = run(t, "journal", "trades", "--db", db, "--instrument", "QQQ")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "** Trade: QQQ"))
	assert.Contains(t, out, "Trades: 3  Wins: 0  Losses: 2  Net P/L: -8.00")

	_, err = run(t, "journal", "day", "2025-03-03", "--db", db)
	require.NoError(t, err)
	_, err = run(t, "journal", "day", "03/03/2025", "--db", db)
	assert.Error(t, err)

	out, err = run(t, "scan", bars)
	require.NoError(t, err)
	assert.Contains(t, out, "2025-03-03T14:33:00Z")
	assert.Contains(t, out, "bullish")

	_, err = run(t, "journal", "trade", "missing", "--db", db)
	assert.Error(t, err)
}

func TestReplay(t *testing.T) {
	dir := t.TempDir()
	bars := writeFile(t, dir, "bars.csv", flipBars)
	cfg := writeFile(t, dir, "cfg.yaml", testConfig)
	state := filepath.Join(dir, "state")

	out, err := run(t, "replay", "--config", cfg, "--bars", "QQQ="+bars, "--bars", "MES="+bars, "--checkpoints", state)
	require.NoError(t, err)
	assert.Contains(t, out, "QQQ    phase=synced position=long")
	assert.Contains(t, out, "MES    phase=synced position=long")

	_, err = os.Stat(filepath.Join(state, "QQQ.ckpt"))
	assert.NoError(t, err)

	_, err = run(t, "replay", "--config", cfg, "--bars", "nonsense")
	assert.Error(t, err)
}

func TestBars(t *testing.T) {
	dir := t.TempDir()
	bars := writeFile(t, dir, "bars.csv", flipBars+"2025-03-03T14:50:00Z,103,104,102,103\n")

	out, err := run(t, "bars", bars, "--gaps")
	require.NoError(t, err)
	assert.Contains(t, out, "Present Bars: 8")
	assert.Contains(t, out, "Missing Bars: 13")
	assert.Contains(t, out, "2025-03-03T14:36:00Z  +13 bars  suspicious")

	out, err = run(t, "scan", bars, "--timeframe", "1h")
	require.NoError(t, err)
	assert.NotContains(t, out, "bullish", "one aggregated bar cannot form a block")
}
