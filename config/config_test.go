package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/obtrader/mitigation"
	"github.com/rustyeddy/obtrader/position"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "NQ", cfg.Instrument.Symbol)
	assert.Equal(t, 1.0, cfg.Strategy.Quantity)
	assert.Equal(t, "flip", cfg.Strategy.Cycle)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func(mut func(c *Config)) *Config {
		c := Default()
		mut(c)
		return c
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			config:  Default(),
			wantErr: false,
		},
		{
			name:    "missing symbol",
			config:  &Config{Strategy: StrategyConfig{Quantity: 1}},
			wantErr: true,
			errMsg:  "instrument.symbol is required",
		},
		{
			name:    "zero quantity",
			config:  valid(func(c *Config) { c.Strategy.Quantity = 0 }),
			wantErr: true,
			errMsg:  "strategy.quantity must be positive",
		},
		{
			name:    "unknown cycle",
			config:  valid(func(c *Config) { c.Strategy.Cycle = "sideways" }),
			wantErr: true,
			errMsg:  "strategy.cycle",
		},
		{
			name: "short-only without shorting",
			config: valid(func(c *Config) {
				c.Strategy.Cycle = "short-only"
				c.Strategy.ShortingEnabled = false
			}),
			wantErr: true,
			errMsg:  "requires shorting_enabled",
		},
		{
			name:    "unknown first signal policy",
			config:  valid(func(c *Config) { c.Strategy.FirstSignalPolicy = "eventually" }),
			wantErr: true,
			errMsg:  "strategy.first_signal_policy",
		},
		{
			name:    "negative per-trade target",
			config:  valid(func(c *Config) { c.Risk.PerTradeTarget = -1 }),
			wantErr: true,
			errMsg:  "risk: per-trade target",
		},
		{
			name:    "atr multiplier without period",
			config:  valid(func(c *Config) { c.Risk.TrailATRMultiplier = 2 }),
			wantErr: true,
			errMsg:  "trail ATR period",
		},
		{
			name:    "bad timezone",
			config:  valid(func(c *Config) { c.Session.Timezone = "Mars/Olympus" }),
			wantErr: true,
			errMsg:  "session.timezone",
		},
		{
			name:    "bad session close",
			config:  valid(func(c *Config) { c.Session.SessionClose = "4pm" }),
			wantErr: true,
			errMsg:  "session.session_close",
		},
		{
			name:    "negative flatten window",
			config:  valid(func(c *Config) { c.Session.FlattenBeforeClose = "-1m" }),
			wantErr: true,
			errMsg:  "flatten_before_close must not be negative",
		},
		{
			name:    "csv without signals file",
			config:  valid(func(c *Config) { c.Journal.SignalsFile = "" }),
			wantErr: true,
			errMsg:  "journal trades_file and signals_file required",
		},
		{
			name:    "sqlite without db path",
			config:  valid(func(c *Config) { c.Journal.Type = "sqlite" }),
			wantErr: true,
			errMsg:  "journal db_path required",
		},
		{
			name:    "unknown journal",
			config:  valid(func(c *Config) { c.Journal.Type = "postgres" }),
			wantErr: true,
			errMsg:  "journal.type must be",
		},
		{
			name:    "no journal",
			config:  valid(func(c *Config) { c.Journal = JournalConfig{} }),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Risk.TrailDistance = 12.5
			path := filepath.Join(tmpDir, "test"+tt.ext)

			// Save
			err := cfg.SaveToFile(path)
			require.NoError(t, err)

			// Verify file exists
			_, err = os.Stat(path)
			require.NoError(t, err)

			// Load
			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			// Compare
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obtrader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instrument:
  symbol: MNQ
strategy:
  quantity: 2
  shorting_enabled: true
  cycle: short-only
  first_signal_policy: allow-immediate
  realtime_exits: true
risk:
  per_trade_target: 150
  trail_activation: 10
  trail_atr_period: 14
  trail_atr_multiplier: 1.5
session:
  timezone: America/Chicago
  session_close: "15:00"
  flatten_before_close: 5m
log:
  level: debug
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	ec, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, "MNQ", ec.Instrument.Name)
	assert.Equal(t, 2.0, ec.Instrument.PointValue, "filled from the instrument table")
	assert.Equal(t, 2.0, ec.Risk.PointValue)
	assert.Equal(t, 2.0, ec.Quantity)
	assert.Equal(t, position.ShortOnly, ec.Cycle)
	assert.Equal(t, mitigation.AllowImmediate, ec.FirstSignal)
	assert.True(t, ec.RealtimeExits)
	assert.Equal(t, 14, ec.Risk.TrailATRPeriod)
	assert.Equal(t, "America/Chicago", ec.Session.Location.String())
	assert.Equal(t, 15*time.Hour, ec.Session.SessionClose)
	assert.Equal(t, 5*time.Minute, ec.Session.FlattenBefore)
	assert.NoError(t, ec.Validate())
}

func TestMetaOverrides(t *testing.T) {
	cfg := Default()
	cfg.Instrument = InstrumentConfig{Symbol: "CL", TickSize: 0.01, PointValue: 1000}
	m := cfg.Meta()
	assert.Equal(t, "CL", m.Name)
	assert.Equal(t, 0.01, m.TickSize)
	assert.Equal(t, 1000.0, m.PointValue)

	cfg.Instrument = InstrumentConfig{Symbol: "ES"}
	assert.Equal(t, 50.0, cfg.Meta().PointValue)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instrument: [unclosed"), 0644))
	_, err = LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tried YAML and JSON")
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(EnvLogLevel+"=warn\n"), 0644))

	t.Setenv(EnvLogLevel, "")
	os.Unsetenv(EnvLogLevel)
	t.Setenv(EnvJournalDB, filepath.Join(dir, "journal.db"))

	require.NoError(t, LoadEnv(envPath, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "warn", os.Getenv(EnvLogLevel))

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, filepath.Join(dir, "journal.db"), cfg.Journal.DBPath)
	assert.NoError(t, cfg.Validate())
}
