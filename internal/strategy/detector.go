package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/breakoutbot/internal/config"
	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

// confirmCandles is how many 15-minute candles are fetched for the short
// confirmation check; only the most recent close is used.
const confirmCandles = 3

// SignalDetector applies the breakout rules to a level set and the current
// price. The short rule performs a second, independent fetch of 15-minute
// candles to guard against a single wick producing a false breakout.
type SignalDetector struct {
	cfg    config.Strategy
	data   domain.MarketData
	logger *slog.Logger
}

// NewSignalDetector creates a SignalDetector. data is only used for the
// 15-minute confirmation fetch of the short rule.
func NewSignalDetector(cfg config.Strategy, data domain.MarketData, logger *slog.Logger) *SignalDetector {
	return &SignalDetector{
		cfg:    cfg,
		data:   data,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// Evaluate runs the full rule chain in order: chop zone, long, short. Long
// and short are mutually exclusive outcomes of one evaluation; the chop-zone
// rule short-circuits everything else. It returns the signal (nil when no
// trade) and the reason code.
func (d *SignalDetector) Evaluate(ctx context.Context, levels domain.LevelSet, currentPrice float64) (*domain.Signal, domain.Reason, error) {
	if levels.InChopZone(currentPrice) {
		d.logger.Info("chop zone, no trade",
			slog.Float64("price", currentPrice),
			slog.Float64("support_1", levels.Support1),
			slog.Float64("resistance_1", levels.Resistance1),
		)
		return nil, domain.ReasonChopZone, nil
	}

	if sig := d.checkLong(levels, currentPrice); sig != nil {
		return sig, domain.ReasonLongBreakout, nil
	}

	sig, err := d.checkShort(ctx, levels, currentPrice)
	if err != nil {
		return nil, domain.ReasonNoSignal, err
	}
	if sig != nil {
		return sig, domain.ReasonShortBreakout, nil
	}

	return nil, domain.ReasonNoSignal, nil
}

// checkLong evaluates the bullish breakout: the last hourly candle closed
// above Resistance1 and price has not retraced below the allowed pullback
// band since confirmation.
func (d *SignalDetector) checkLong(levels domain.LevelSet, currentPrice float64) *domain.Signal {
	r1 := levels.Resistance1

	if levels.LastClose <= r1 {
		return nil
	}

	if currentPrice < r1-d.cfg.LongPullbackMax {
		d.logger.Debug("long rejected: pullback too deep",
			slog.Float64("price", currentPrice),
			slog.Float64("limit", r1-d.cfg.LongPullbackMax),
		)
		return nil
	}

	sig := &domain.Signal{
		Side:        domain.SideLong,
		Entry:       r1 - d.cfg.LongEntryOffset,
		StopLoss:    r1 - d.cfg.LongSLOffset,
		TakeProfit1: levels.Resistance2,
		TakeProfit2: levels.TP2Long,
		Reason:      fmt.Sprintf("long breakout above resistance %.2f", r1),
	}

	d.logger.Info("long signal",
		slog.Float64("entry", sig.Entry),
		slog.Float64("stop_loss", sig.StopLoss),
		slog.Float64("tp1", sig.TakeProfit1),
		slog.Float64("tp2", sig.TakeProfit2),
	)
	return sig
}

// checkShort evaluates the bearish breakdown: the last hourly candle closed
// below Support1, price is still below support, and the most recent
// 15-minute close confirms the break.
func (d *SignalDetector) checkShort(ctx context.Context, levels domain.LevelSet, currentPrice float64) (*domain.Signal, error) {
	s1 := levels.Support1

	if levels.LastClose >= s1 {
		return nil, nil
	}

	if currentPrice >= s1 {
		d.logger.Debug("short rejected: price reclaimed support",
			slog.Float64("price", currentPrice),
			slog.Float64("support_1", s1),
		)
		return nil, nil
	}

	candles, err := d.data.FetchCandles(ctx, domain.Timeframe15m, confirmCandles)
	if err != nil {
		return nil, fmt.Errorf("detector: fetch 15m confirmation: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("detector: empty 15m confirmation: %w", domain.ErrInsufficientData)
	}

	if close15 := candles[len(candles)-1].Close; close15 >= s1 {
		d.logger.Debug("short rejected: 15m close did not confirm",
			slog.Float64("close_15m", close15),
			slog.Float64("support_1", s1),
		)
		return nil, nil
	}

	sig := &domain.Signal{
		Side:        domain.SideShort,
		Entry:       s1 + d.cfg.ShortEntryOffset,
		StopLoss:    s1 + d.cfg.ShortSLOffset,
		TakeProfit1: levels.TP1Short,
		TakeProfit2: levels.TP2Short,
		Reason:      fmt.Sprintf("short breakdown below support %.2f", s1),
	}

	d.logger.Info("short signal",
		slog.Float64("entry", sig.Entry),
		slog.Float64("stop_loss", sig.StopLoss),
		slog.Float64("tp1", sig.TakeProfit1),
		slog.Float64("tp2", sig.TakeProfit2),
	)
	return sig, nil
}
