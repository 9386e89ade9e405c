package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BREAKOUT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BREAKOUT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "BREAKOUT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.WsURL, "BREAKOUT_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.ApiKey, "BREAKOUT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.ApiSecret, "BREAKOUT_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.Symbol, "BREAKOUT_EXCHANGE_SYMBOL")
	setInt(&cfg.Exchange.Leverage, "BREAKOUT_EXCHANGE_LEVERAGE")
	setBool(&cfg.Exchange.PaperTrading, "BREAKOUT_EXCHANGE_PAPER_TRADING")
	setBool(&cfg.Exchange.StreamPrices, "BREAKOUT_EXCHANGE_STREAM_PRICES")

	// ── Strategy ──
	setInt(&cfg.Strategy.CandleLimit, "BREAKOUT_STRATEGY_CANDLE_LIMIT")
	setFloat64(&cfg.Strategy.LongEntryOffset, "BREAKOUT_STRATEGY_LONG_ENTRY_OFFSET")
	setFloat64(&cfg.Strategy.LongSLOffset, "BREAKOUT_STRATEGY_LONG_SL_OFFSET")
	setFloat64(&cfg.Strategy.LongPullbackMax, "BREAKOUT_STRATEGY_LONG_PULLBACK_MAX")
	setFloat64(&cfg.Strategy.ShortEntryOffset, "BREAKOUT_STRATEGY_SHORT_ENTRY_OFFSET")
	setFloat64(&cfg.Strategy.ShortSLOffset, "BREAKOUT_STRATEGY_SHORT_SL_OFFSET")
	setFloat64(&cfg.Strategy.ShortTP1Offset, "BREAKOUT_STRATEGY_SHORT_TP1_OFFSET")
	setFloat64(&cfg.Strategy.ShortTP2Offset, "BREAKOUT_STRATEGY_SHORT_TP2_OFFSET")
	setFloat64(&cfg.Strategy.RoundStep, "BREAKOUT_STRATEGY_ROUND_STEP")

	// ── Risk ──
	setFloat64(&cfg.Risk.CapitalTotal, "BREAKOUT_RISK_CAPITAL_TOTAL")
	setFloat64(&cfg.Risk.MarginPct, "BREAKOUT_RISK_MARGIN_PCT")
	setInt(&cfg.Risk.Leverage, "BREAKOUT_RISK_LEVERAGE")
	setFloat64(&cfg.Risk.MaxRiskUSDT, "BREAKOUT_RISK_MAX_RISK_USDT")
	setFloat64(&cfg.Risk.MinRRRatio, "BREAKOUT_RISK_MIN_RR_RATIO")

	// ── Position ──
	setFloat64(&cfg.Position.TP1ClosePct, "BREAKOUT_POSITION_TP1_CLOSE_PCT")
	setFloat64(&cfg.Position.TrailingActivationPct, "BREAKOUT_POSITION_TRAILING_ACTIVATION_PCT")
	setFloat64(&cfg.Position.TrailingOffsetPct, "BREAKOUT_POSITION_TRAILING_OFFSET_PCT")

	// ── Loop ──
	setInt(&cfg.Loop.IntervalSeconds, "BREAKOUT_LOOP_INTERVAL_SECONDS")
	setInt(&cfg.Loop.MaxRetries, "BREAKOUT_LOOP_MAX_RETRIES")
	setInt(&cfg.Loop.MaintenancePauseMin, "BREAKOUT_LOOP_MAINTENANCE_PAUSE_MIN")

	// ── Backtest ──
	setInt(&cfg.Backtest.CandleLimit, "BREAKOUT_BACKTEST_CANDLE_LIMIT")
	setInt(&cfg.Backtest.Lookahead, "BREAKOUT_BACKTEST_LOOKAHEAD")

	// ── State ──
	setStr(&cfg.State.FilePath, "BREAKOUT_STATE_FILE_PATH")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "BREAKOUT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "BREAKOUT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BREAKOUT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BREAKOUT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BREAKOUT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BREAKOUT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BREAKOUT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BREAKOUT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BREAKOUT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BREAKOUT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BREAKOUT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BREAKOUT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BREAKOUT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BREAKOUT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BREAKOUT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BREAKOUT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BREAKOUT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BREAKOUT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BREAKOUT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BREAKOUT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BREAKOUT_S3_REGION")
	setStr(&cfg.S3.Bucket, "BREAKOUT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BREAKOUT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BREAKOUT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BREAKOUT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BREAKOUT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "BREAKOUT_S3_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BREAKOUT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BREAKOUT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BREAKOUT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BREAKOUT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BREAKOUT_MODE")
	setStr(&cfg.LogLevel, "BREAKOUT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
