package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/breakoutbot/internal/backtest"
	"github.com/alanyoungcy/breakoutbot/internal/domain"
	"github.com/alanyoungcy/breakoutbot/internal/engine"
	"github.com/alanyoungcy/breakoutbot/internal/exchange/binance"
	"github.com/alanyoungcy/breakoutbot/internal/notify"
	"github.com/alanyoungcy/breakoutbot/internal/position"
	"github.com/alanyoungcy/breakoutbot/internal/risk"
	"github.com/alanyoungcy/breakoutbot/internal/strategy"
)

// archiveInterval is how often the trade-journal archiver sweeps old rows to
// object storage.
const archiveInterval = 24 * time.Hour

// buildEngine assembles the strategy, risk, and position components around
// the wired dependencies and restores any persisted position.
func (a *App) buildEngine(ctx context.Context, deps *Dependencies) (*engine.Engine, error) {
	manager := position.NewManager(
		a.cfg.Position,
		a.cfg.Exchange.Symbol,
		deps.Exchange,
		deps.StateStore,
		deps.TradeStore,
		deps.Notifier,
		a.logger,
	)
	if err := manager.Restore(ctx); err != nil {
		return nil, fmt.Errorf("app: restore position state: %w", err)
	}

	eng := engine.New(
		engine.Config{
			Symbol:      a.cfg.Exchange.Symbol,
			Interval:    time.Duration(a.cfg.Loop.IntervalSeconds) * time.Second,
			CandleLimit: a.cfg.Strategy.CandleLimit,
		},
		deps.Exchange,
		deps.PriceCache,
		strategy.NewLevelCalculator(a.cfg.Strategy, a.logger),
		strategy.NewSignalDetector(a.cfg.Strategy, deps.Exchange, a.logger),
		risk.NewValidator(a.cfg.Risk, a.logger),
		manager,
		deps.Notifier,
		a.logger,
	)
	return eng, nil
}

// setupExchange applies account settings required before trading. Leverage
// rejection is tolerated because some accounts pin it externally.
func (a *App) setupExchange(ctx context.Context, deps *Dependencies) error {
	if err := deps.Exchange.SetLeverage(ctx); err != nil {
		a.logger.WarnContext(ctx, "set leverage failed, continuing",
			slog.String("error", err.Error()),
		)
	}
	if err := deps.Exchange.SetOneWayPositionMode(ctx); err != nil {
		return fmt.Errorf("app: set position mode: %w", err)
	}
	return nil
}

// TradeMode runs the trading loop until cancelled, alongside the optional
// price stream and journal archiver.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	if err := a.setupExchange(ctx, deps); err != nil {
		return err
	}
	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})

	if a.cfg.Exchange.StreamPrices && deps.PriceCache != nil {
		stream := binance.NewPriceStream(
			a.cfg.Exchange.WsURL,
			a.cfg.Exchange.Symbol,
			a.priceToCache(deps.PriceCache),
			a.logger,
		)
		g.Go(func() error {
			defer stream.Close()
			return stream.Run(ctx)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			a.archiveLoop(ctx, deps.Archiver)
			return nil
		})
	}

	return g.Wait()
}

// OnceMode executes a single evaluation cycle and exits. Useful under cron
// or for smoke-testing a configuration.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	if err := a.setupExchange(ctx, deps); err != nil {
		return err
	}
	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return err
	}
	return eng.RunCycle(ctx)
}

// BacktestMode fetches recent history and replays the strategy over it,
// logging the per-trade results and the aggregate summary.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	candles, err := deps.Exchange.FetchCandles(ctx, domain.Timeframe1h, a.cfg.Backtest.CandleLimit)
	if err != nil {
		return fmt.Errorf("app: fetch backtest candles: %w", err)
	}

	sim := backtest.NewSimulator(a.cfg.Strategy, a.cfg.Risk, a.cfg.Backtest.Lookahead, a.logger)
	trades, summary, err := sim.Run(candles)
	if err != nil {
		return fmt.Errorf("app: backtest: %w", err)
	}

	for _, t := range trades {
		a.logger.InfoContext(ctx, "backtest trade",
			slog.String("side", string(t.Side)),
			slog.Float64("entry", t.Entry),
			slog.String("outcome", string(t.Outcome)),
			slog.Float64("pnl", t.PnL),
		)
	}
	a.logger.InfoContext(ctx, "backtest summary",
		slog.Int("candles", summary.Candles),
		slog.Int("trades", summary.Trades),
		slog.Int("wins", summary.Wins),
		slog.Int("losses", summary.Losses),
		slog.Int("timeouts", summary.Timeouts),
		slog.Float64("win_rate", summary.WinRate),
		slog.Float64("total_pnl", summary.TotalPnL),
		slog.Float64("profit_factor", summary.ProfitFactor),
	)

	if deps.Notifier != nil {
		_ = deps.Notifier.Notify(ctx, notify.EventSignal, "Backtest complete",
			fmt.Sprintf("%d trades, win rate %.1f%%, total PnL %.2f USDT",
				summary.Trades, summary.WinRate*100, summary.TotalPnL))
	}
	return nil
}

// priceToCache adapts the websocket mark-price handler to the price cache.
func (a *App) priceToCache(cache domain.PriceCache) binance.PriceHandler {
	symbol := a.cfg.Exchange.Symbol
	return func(ctx context.Context, price float64, ts time.Time) {
		if err := cache.SetPrice(ctx, symbol, price, ts); err != nil {
			a.logger.WarnContext(ctx, "price cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// archiveLoop periodically moves journal rows older than the retention
// window to object storage.
func (a *App) archiveLoop(ctx context.Context, archiver domain.Archiver) {
	retention := time.Duration(a.cfg.S3.RetentionDays) * 24 * time.Hour
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := archiver.ArchiveTrades(ctx, time.Now().Add(-retention))
			if err != nil {
				a.logger.ErrorContext(ctx, "trade archival failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "archived trades", slog.Int64("count", n))
			}
		}
	}
}
