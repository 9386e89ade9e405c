// Package strategy implements the conditional-breakout strategy: dynamic
// level computation over a rolling window of hourly candles and the
// long/short signal rules evaluated against the current price.
package strategy

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/breakoutbot/internal/config"
	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

// Window sizes for level partitioning, in hourly candles.
const (
	windowSize = 24
	minCandles = 48
	fullWindow = 72
)

// LevelCalculator derives resistance/support/target levels from a candle
// window. It is stateless; every call returns a fresh LevelSet.
type LevelCalculator struct {
	cfg    config.Strategy
	logger *slog.Logger
}

// NewLevelCalculator creates a LevelCalculator with the given strategy
// parameters.
func NewLevelCalculator(cfg config.Strategy, logger *slog.Logger) *LevelCalculator {
	return &LevelCalculator{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "levels")),
	}
}

// Calculate partitions the candles (chronological, most recent last) into
// three non-overlapping 24-candle windows counted from the end and derives
// the level set:
//
//	window A (last 24)  → Resistance1 = max high, Support1 = min low
//	window B (25-48)    → Resistance2 = max high, falls back to Resistance1
//	window C (49-72)    → TP2Long = max high; the window may be partial
//	                      when fewer than 72 candles are supplied, and
//	                      TP2Long falls back to Resistance2 at exactly 48
//
// TP1Short is the nearest round multiple of the configured step at or below
// the offset support; TP2Short is the support minus the short TP2 offset.
// It returns domain.ErrInsufficientData when fewer than 48 candles are
// supplied.
func (c *LevelCalculator) Calculate(candles []domain.Candle) (domain.LevelSet, error) {
	n := len(candles)
	if n < minCandles {
		return domain.LevelSet{}, fmt.Errorf("levels: %d candles < %d required: %w",
			n, minCandles, domain.ErrInsufficientData)
	}

	windowA := candles[n-windowSize:]
	windowB := candles[n-2*windowSize : n-windowSize]

	levels := domain.LevelSet{
		Resistance1: domain.MaxHigh(windowA),
		Support1:    domain.MinLow(windowA),
		LastClose:   candles[n-1].Close,
	}

	levels.Resistance2 = domain.MaxHigh(windowB)

	if n > 2*windowSize {
		start := n - fullWindow
		if start < 0 {
			start = 0
		}
		windowC := candles[start : n-2*windowSize]
		levels.TP2Long = domain.MaxHigh(windowC)
	} else {
		levels.TP2Long = levels.Resistance2
	}

	levels.TP1Short = roundLevelBelow(levels.Support1-c.cfg.ShortTP1Offset, c.cfg.RoundStep)
	levels.TP2Short = levels.Support1 - c.cfg.ShortTP2Offset

	c.logger.Debug("levels calculated",
		slog.Float64("resistance_1", levels.Resistance1),
		slog.Float64("support_1", levels.Support1),
		slog.Float64("resistance_2", levels.Resistance2),
		slog.Float64("tp2_long", levels.TP2Long),
		slog.Float64("tp1_short", levels.TP1Short),
		slog.Float64("tp2_short", levels.TP2Short),
		slog.Float64("last_close", levels.LastClose),
	)

	return levels, nil
}

// roundLevelBelow returns the nearest multiple of step at or below price,
// e.g. 64372 with step 200 → 64200.
func roundLevelBelow(price, step float64) float64 {
	return math.Floor(price/step) * step
}
