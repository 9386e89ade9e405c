// Package config defines the top-level configuration for the breakout bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by BREAKOUT_* environment
// variables.
type Config struct {
	Exchange Exchange `toml:"exchange"`
	Strategy Strategy `toml:"strategy"`
	Risk     Risk     `toml:"risk"`
	Position Position `toml:"position"`
	Loop     Loop     `toml:"loop"`
	Backtest Backtest `toml:"backtest"`
	State    State    `toml:"state"`
	Postgres Postgres `toml:"postgres"`
	Redis    Redis    `toml:"redis"`
	S3       S3       `toml:"s3"`
	Notify   Notify   `toml:"notify"`
	Mode     string   `toml:"mode"`
	LogLevel string   `toml:"log_level"`
}

// Exchange holds exchange connectivity parameters for Binance USDM futures.
type Exchange struct {
	BaseURL      string `toml:"base_url"`
	WsURL        string `toml:"ws_url"`
	ApiKey       string `toml:"api_key"`
	ApiSecret    string `toml:"api_secret"`
	Symbol       string `toml:"symbol"`
	Leverage     int    `toml:"leverage"`
	PaperTrading bool   `toml:"paper_trading"`
	StreamPrices bool   `toml:"stream_prices"`
}

// Strategy holds the breakout level and signal parameters. All offsets are
// absolute prices in the quote currency.
type Strategy struct {
	CandleLimit      int     `toml:"candle_limit"`
	LongEntryOffset  float64 `toml:"long_entry_offset"`
	LongSLOffset     float64 `toml:"long_sl_offset"`
	LongPullbackMax  float64 `toml:"long_pullback_max"`
	ShortEntryOffset float64 `toml:"short_entry_offset"`
	ShortSLOffset    float64 `toml:"short_sl_offset"`
	ShortTP1Offset   float64 `toml:"short_tp1_offset"`
	ShortTP2Offset   float64 `toml:"short_tp2_offset"`
	RoundStep        float64 `toml:"round_step"`
}

// Risk holds sizing and trade-acceptance limits.
type Risk struct {
	CapitalTotal float64 `toml:"capital_total"`
	MarginPct    float64 `toml:"margin_pct"`
	Leverage     int     `toml:"leverage"`
	MaxRiskUSDT  float64 `toml:"max_risk_usdt"`
	MinRRRatio   float64 `toml:"min_rr_ratio"`
}

// NotionalValue is the effective order notional: margin per trade times
// leverage.
func (r Risk) NotionalValue() float64 {
	return r.CapitalTotal * r.MarginPct * float64(r.Leverage)
}

// Position holds open-position management parameters.
type Position struct {
	TP1ClosePct           float64 `toml:"tp1_close_pct"`
	TrailingActivationPct float64 `toml:"trailing_activation_pct"`
	TrailingOffsetPct     float64 `toml:"trailing_offset_pct"`
}

// Loop holds polling-cycle parameters.
type Loop struct {
	IntervalSeconds     int `toml:"interval_seconds"`
	MaxRetries          int `toml:"max_retries"`
	MaintenancePauseMin int `toml:"maintenance_pause_min"`
}

// Backtest holds historical replay parameters.
type Backtest struct {
	CandleLimit int `toml:"candle_limit"`
	Lookahead   int `toml:"lookahead"`
}

// State selects the position state backend. When Redis is enabled the state
// lives there; otherwise it is a JSON file at FilePath.
type State struct {
	FilePath string `toml:"file_path"`
}

// Postgres holds PostgreSQL connection parameters for the trade journal.
type Postgres struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	Enabled       bool   `toml:"enabled"`
}

// Redis holds Redis connection parameters.
type Redis struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Enabled    bool   `toml:"enabled"`
}

// S3 holds S3-compatible object storage parameters for journal archival.
type S3 struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
	Enabled        bool   `toml:"enabled"`
}

// Notify holds operator notification parameters.
type Notify struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

var validModes = map[string]bool{
	"trade":    true,
	"once":     true,
	"backtest": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for internal consistency and returns a
// combined error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, once, backtest)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Exchange.Symbol == "" {
		errs = append(errs, "exchange: symbol must not be empty")
	}
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	live := !c.Exchange.PaperTrading && (mode == "trade" || mode == "once")
	if live && (c.Exchange.ApiKey == "" || c.Exchange.ApiSecret == "") {
		errs = append(errs, "exchange: api_key and api_secret are required for live trading")
	}
	if c.Exchange.Leverage <= 0 {
		errs = append(errs, "exchange: leverage must be positive")
	}

	if c.Strategy.CandleLimit < 48 {
		errs = append(errs, fmt.Sprintf("strategy: candle_limit must be at least 48, got %d", c.Strategy.CandleLimit))
	}
	if c.Strategy.RoundStep <= 0 {
		errs = append(errs, "strategy: round_step must be positive")
	}
	if c.Strategy.LongSLOffset <= c.Strategy.LongEntryOffset {
		errs = append(errs, "strategy: long_sl_offset must exceed long_entry_offset")
	}
	if c.Strategy.ShortSLOffset <= c.Strategy.ShortEntryOffset {
		errs = append(errs, "strategy: short_sl_offset must exceed short_entry_offset")
	}

	if c.Risk.CapitalTotal <= 0 {
		errs = append(errs, "risk: capital_total must be positive")
	}
	if c.Risk.MarginPct <= 0 || c.Risk.MarginPct > 1 {
		errs = append(errs, "risk: margin_pct must be in (0, 1]")
	}
	if c.Risk.MinRRRatio <= 0 {
		errs = append(errs, "risk: min_rr_ratio must be positive")
	}
	if c.Risk.MaxRiskUSDT <= 0 {
		errs = append(errs, "risk: max_risk_usdt must be positive")
	}

	if c.Position.TP1ClosePct <= 0 || c.Position.TP1ClosePct >= 1 {
		errs = append(errs, "position: tp1_close_pct must be in (0, 1)")
	}
	if c.Position.TrailingOffsetPct <= 0 {
		errs = append(errs, "position: trailing_offset_pct must be positive")
	}

	if c.Loop.IntervalSeconds <= 0 {
		errs = append(errs, "loop: interval_seconds must be positive")
	}
	if c.Loop.MaxRetries <= 0 {
		errs = append(errs, "loop: max_retries must be positive")
	}

	if c.Backtest.Lookahead <= 0 {
		errs = append(errs, "backtest: lookahead must be positive")
	}

	if !c.Redis.Enabled && c.State.FilePath == "" {
		errs = append(errs, "state: file_path is required when redis is disabled")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		errs = append(errs, "postgres: dsn or host must be set when enabled")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket is required when enabled")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archival requires postgres to be enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Defaults returns a Config populated with the strategy's stock parameters.
func Defaults() Config {
	return Config{
		Exchange: Exchange{
			BaseURL:      "https://fapi.binance.com",
			WsURL:        "wss://fstream.binance.com/ws",
			Symbol:       "BTCUSDT",
			Leverage:     20,
			PaperTrading: false,
			StreamPrices: false,
		},
		Strategy: Strategy{
			CandleLimit:      75,
			LongEntryOffset:  40,
			LongSLOffset:     640,
			LongPullbackMax:  300,
			ShortEntryOffset: 50,
			ShortSLOffset:    650,
			ShortTP1Offset:   1400,
			ShortTP2Offset:   2800,
			RoundStep:        200,
		},
		Risk: Risk{
			CapitalTotal: 500,
			MarginPct:    0.20,
			Leverage:     20,
			MaxRiskUSDT:  250,
			MinRRRatio:   1.5,
		},
		Position: Position{
			TP1ClosePct:           0.50,
			TrailingActivationPct: 0.005,
			TrailingOffsetPct:     0.004,
		},
		Loop: Loop{
			IntervalSeconds:     300,
			MaxRetries:          3,
			MaintenancePauseMin: 10,
		},
		Backtest: Backtest{
			CandleLimit: 1000,
			Lookahead:   48,
		},
		State: State{
			FilePath: "state.json",
		},
		Postgres: Postgres{
			Host:          "localhost",
			Port:          5432,
			Database:      "breakoutbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
			Enabled:       false,
		},
		Redis: Redis{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			Enabled:    false,
		},
		S3: S3{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "breakoutbot-data",
			ForcePathStyle: true,
			RetentionDays:  90,
			Enabled:        false,
		},
		Notify:   Notify{},
		Mode:     "trade",
		LogLevel: "info",
	}
}
