package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/obtrader/engine"
	"github.com/rustyeddy/obtrader/market"
	"github.com/rustyeddy/obtrader/mitigation"
	"github.com/rustyeddy/obtrader/position"
	"github.com/rustyeddy/obtrader/risk"
	"github.com/rustyeddy/obtrader/session"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after an optional .env file is loaded.
const (
	EnvLogLevel  = "OBTRADER_LOG_LEVEL"
	EnvJournalDB = "OBTRADER_JOURNAL_DB"
)

// Config represents the complete engine configuration
type Config struct {
	Instrument InstrumentConfig `json:"instrument" yaml:"instrument"`
	Strategy   StrategyConfig   `json:"strategy" yaml:"strategy"`
	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Session    SessionConfig    `json:"session" yaml:"session"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// InstrumentConfig names the traded contract. Zero tick size or point
// value is filled in from the built-in instrument table.
type InstrumentConfig struct {
	Symbol     string  `json:"symbol" yaml:"symbol"`
	TickSize   float64 `json:"tick_size,omitempty" yaml:"tick_size,omitempty"`
	PointValue float64 `json:"point_value,omitempty" yaml:"point_value,omitempty"`
}

// StrategyConfig contains strategy parameters
type StrategyConfig struct {
	Quantity           float64 `json:"quantity" yaml:"quantity"`
	ShortingEnabled    bool    `json:"shorting_enabled" yaml:"shorting_enabled"`
	Cycle              string  `json:"cycle" yaml:"cycle"`                             // "flip" or "short-only"
	FirstSignalPolicy  string  `json:"first_signal_policy" yaml:"first_signal_policy"` // "require-prior-red" or "allow-immediate"
	ChangeOfCharacter  bool    `json:"change_of_character" yaml:"change_of_character"`
	LaggedInefficiency bool    `json:"lagged_inefficiency" yaml:"lagged_inefficiency"`
	RealtimeExits      bool    `json:"realtime_exits" yaml:"realtime_exits"`
}

// RiskConfig contains profit targets (currency) and trailing stop
// parameters (price units).
type RiskConfig struct {
	PerTradeTarget     float64 `json:"per_trade_target" yaml:"per_trade_target"`
	DailyTarget        float64 `json:"daily_target" yaml:"daily_target"`
	TrailActivation    float64 `json:"trail_activation" yaml:"trail_activation"`
	TrailDistance      float64 `json:"trail_distance" yaml:"trail_distance"`
	TrailATRPeriod     int     `json:"trail_atr_period,omitempty" yaml:"trail_atr_period,omitempty"`
	TrailATRMultiplier float64 `json:"trail_atr_multiplier,omitempty" yaml:"trail_atr_multiplier,omitempty"`
	CandleTrail        bool    `json:"candle_trail" yaml:"candle_trail"`
}

// SessionConfig contains daily boundary and restart parameters
type SessionConfig struct {
	DailyResetEnabled    bool   `json:"daily_reset_enabled" yaml:"daily_reset_enabled"`
	ResetPerTradeDaily   bool   `json:"reset_per_trade_daily" yaml:"reset_per_trade_daily"`
	AutoReconcileEnabled bool   `json:"auto_reconcile_enabled" yaml:"auto_reconcile_enabled"`
	Timezone             string `json:"timezone" yaml:"timezone"`
	SessionClose         string `json:"session_close,omitempty" yaml:"session_close,omitempty"`               // "HH:MM" local
	FlattenBeforeClose   string `json:"flatten_before_close,omitempty" yaml:"flatten_before_close,omitempty"` // e.g. "2m"
	CheckpointDir        string `json:"checkpoint_dir,omitempty" yaml:"checkpoint_dir,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type        string `json:"type" yaml:"type"` // "csv" or "sqlite"
	TradesFile  string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	SignalsFile string `json:"signals_file,omitempty" yaml:"signals_file,omitempty"`
	DBPath      string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// LoadFromFile loads configuration from a file (YAML tried first, then JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.ApplyEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadEnv loads a .env file into the process environment if it exists.
// Variables already set are left alone.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJournalDB)); v != "" {
		c.Journal.Type = "sqlite"
		c.Journal.DBPath = v
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	// Determine format by extension
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Instrument.Symbol == "" {
		return fmt.Errorf("instrument.symbol is required")
	}
	if c.Instrument.TickSize < 0 || c.Instrument.PointValue < 0 {
		return fmt.Errorf("instrument tick_size and point_value must not be negative")
	}
	if c.Strategy.Quantity <= 0 {
		return fmt.Errorf("strategy.quantity must be positive")
	}
	cycle, err := position.ParseCycle(c.Strategy.Cycle)
	if err != nil {
		return fmt.Errorf("strategy.cycle: %w", err)
	}
	if cycle == position.ShortOnly && !c.Strategy.ShortingEnabled {
		return fmt.Errorf("strategy.cycle short-only requires shorting_enabled")
	}
	if _, err := mitigation.ParseFirstSignalPolicy(c.Strategy.FirstSignalPolicy); err != nil {
		return fmt.Errorf("strategy.first_signal_policy: %w", err)
	}
	if err := c.riskConfig().Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if _, err := c.sessionConfig(); err != nil {
		return err
	}
	switch c.Journal.Type {
	case "":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.SignalsFile == "" {
			return fmt.Errorf("journal trades_file and signals_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	return nil
}

func (c *Config) riskConfig() risk.Config {
	return risk.Config{
		PerTradeTarget:     c.Risk.PerTradeTarget,
		DailyTarget:        c.Risk.DailyTarget,
		TrailActivation:    c.Risk.TrailActivation,
		TrailDistance:      c.Risk.TrailDistance,
		TrailATRPeriod:     c.Risk.TrailATRPeriod,
		TrailATRMultiplier: c.Risk.TrailATRMultiplier,
		CandleTrail:        c.Risk.CandleTrail,
		PointValue:         c.Instrument.PointValue,
	}
}

func (c *Config) sessionConfig() (session.Config, error) {
	loc := time.UTC
	if c.Session.Timezone != "" {
		l, err := time.LoadLocation(c.Session.Timezone)
		if err != nil {
			return session.Config{}, fmt.Errorf("session.timezone: %w", err)
		}
		loc = l
	}
	closeAt, err := session.ParseClock(c.Session.SessionClose)
	if err != nil {
		return session.Config{}, fmt.Errorf("session.session_close: %w", err)
	}
	var flatten time.Duration
	if c.Session.FlattenBeforeClose != "" {
		flatten, err = time.ParseDuration(c.Session.FlattenBeforeClose)
		if err != nil {
			return session.Config{}, fmt.Errorf("session.flatten_before_close: %w", err)
		}
		if flatten < 0 {
			return session.Config{}, fmt.Errorf("session.flatten_before_close must not be negative")
		}
	}
	return session.Config{
		DailyResetEnabled:  c.Session.DailyResetEnabled,
		ResetPerTradeDaily: c.Session.ResetPerTradeDaily,
		AutoReconcile:      c.Session.AutoReconcileEnabled,
		Location:           loc,
		SessionClose:       closeAt,
		FlattenBefore:      flatten,
	}, nil
}

// Meta resolves the instrument, filling unset fields from the built-in
// table.
func (c *Config) Meta() market.InstrumentMeta {
	m, _ := market.Lookup(c.Instrument.Symbol)
	if c.Instrument.TickSize > 0 {
		m.TickSize = c.Instrument.TickSize
	}
	if c.Instrument.PointValue > 0 {
		m.PointValue = c.Instrument.PointValue
	}
	return m
}

// EngineConfig converts a validated configuration for the engine.
func (c *Config) EngineConfig() (engine.Config, error) {
	if err := c.Validate(); err != nil {
		return engine.Config{}, err
	}
	cycle, _ := position.ParseCycle(c.Strategy.Cycle)
	first, _ := mitigation.ParseFirstSignalPolicy(c.Strategy.FirstSignalPolicy)
	sess, _ := c.sessionConfig()

	meta := c.Meta()
	rc := c.riskConfig()
	rc.PointValue = meta.PointValue

	return engine.Config{
		Instrument:         meta,
		Quantity:           c.Strategy.Quantity,
		Shorting:           c.Strategy.ShortingEnabled,
		Cycle:              cycle,
		FirstSignal:        first,
		ChangeOfCharacter:  c.Strategy.ChangeOfCharacter,
		LaggedInefficiency: c.Strategy.LaggedInefficiency,
		RealtimeExits:      c.Strategy.RealtimeExits,
		Risk:               rc,
		Session:            sess,
	}, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			Symbol: "NQ",
		},
		Strategy: StrategyConfig{
			Quantity:          1,
			ShortingEnabled:   true,
			Cycle:             "flip",
			FirstSignalPolicy: "require-prior-red",
		},
		Risk: RiskConfig{
			PerTradeTarget: 400,
			DailyTarget:    1000,
		},
		Session: SessionConfig{
			DailyResetEnabled:    true,
			AutoReconcileEnabled: true,
			Timezone:             "America/New_York",
			SessionClose:         "16:00",
			FlattenBeforeClose:   "2m",
		},
		Journal: JournalConfig{
			Type:        "csv",
			TradesFile:  "./trades.csv",
			SignalsFile: "./signals.csv",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
