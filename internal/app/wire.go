package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/breakoutbot/internal/blob/s3"
	"github.com/alanyoungcy/breakoutbot/internal/config"
	"github.com/alanyoungcy/breakoutbot/internal/domain"
	"github.com/alanyoungcy/breakoutbot/internal/exchange/binance"
	"github.com/alanyoungcy/breakoutbot/internal/notify"
	filestore "github.com/alanyoungcy/breakoutbot/internal/store/file"
	"github.com/alanyoungcy/breakoutbot/internal/store/postgres"
	redisstore "github.com/alanyoungcy/breakoutbot/internal/store/redis"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	Exchange *binance.Client

	// StateStore is always set; it is Redis-backed when Redis is enabled
	// and file-backed otherwise.
	StateStore domain.StateStore

	// PriceCache is nil unless Redis is enabled.
	PriceCache domain.PriceCache

	// TradeStore is nil unless Postgres is enabled.
	TradeStore domain.TradeStore

	// Archiver is nil unless both S3 and Postgres are enabled.
	Archiver domain.Archiver

	Notifier *notify.Notifier
}

// Wire constructs the concrete dependency implementations from the
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	deps.Exchange = binance.NewClient(binance.ClientConfig{
		BaseURL:          cfg.Exchange.BaseURL,
		ApiKey:           cfg.Exchange.ApiKey,
		ApiSecret:        cfg.Exchange.ApiSecret,
		Symbol:           cfg.Exchange.Symbol,
		Leverage:         cfg.Exchange.Leverage,
		PaperTrading:     cfg.Exchange.PaperTrading,
		MaxRetries:       cfg.Loop.MaxRetries,
		MaintenancePause: time.Duration(cfg.Loop.MaintenancePauseMin) * time.Minute,
	}, logger)

	// --- Redis (position state + streamed price cache) ---
	if cfg.Redis.Enabled {
		redisClient, err := redisstore.New(ctx, redisstore.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.StateStore = redisstore.NewStateStore(redisClient, cfg.Exchange.Symbol)
		deps.PriceCache = redisstore.NewPriceCache(redisClient, time.Minute)
	} else {
		deps.StateStore = filestore.NewStateStore(cfg.State.FilePath)
	}

	// --- PostgreSQL (closed-trade journal) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.TradeStore = postgres.NewTradeStore(pgClient.Pool())
	}

	// --- S3 (journal archival, needs the journal to archive) ---
	if cfg.S3.Enabled && deps.TradeStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.TradeStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
