// Package backtest replays the breakout entry rules over a historical candle
// sequence and resolves exits with a bounded lookahead scan, producing
// aggregate performance statistics.
package backtest

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/breakoutbot/internal/config"
	"github.com/alanyoungcy/breakoutbot/internal/domain"
	"github.com/alanyoungcy/breakoutbot/internal/risk"
	"github.com/alanyoungcy/breakoutbot/internal/strategy"
)

// warmup is the number of candles consumed before the first evaluation, so
// every level window is fully populated.
const warmup = 72

// Outcome labels how a simulated trade resolved.
type Outcome string

const (
	OutcomeStopLoss  Outcome = "SL"
	OutcomeBreakeven Outcome = "TP1_BREAKEVEN"
	OutcomeTP2       Outcome = "TP1_TP2"
	OutcomeTimeout   Outcome = "TIMEOUT"
)

// Trade is one simulated entry and its resolution.
type Trade struct {
	EntryIndex int
	ExitIndex  int
	Side       domain.Side
	Entry      float64
	StopLoss   float64
	TP1        float64
	TP2        float64
	Outcome    Outcome
	PnL        float64
}

// Summary aggregates a simulation run.
type Summary struct {
	Candles      int
	Trades       int
	Wins         int
	Losses       int
	Timeouts     int
	WinRate      float64
	TotalPnL     float64
	ProfitFactor float64
}

// Simulator walks a historical candle sequence with the live entry rules and
// an approximate exit model. The exit model checks per-candle high/low
// extremes rather than intrabar order, resolves the stop before a target
// when both are touched inside one candle, and does not model the live
// trailing-stop extension.
type Simulator struct {
	cfg       config.Strategy
	lookahead int
	levels    *strategy.LevelCalculator
	validator *risk.Validator
	logger    *slog.Logger
}

// NewSimulator creates a Simulator with the given strategy and risk
// parameters.
func NewSimulator(cfg config.Strategy, riskCfg config.Risk, lookahead int, logger *slog.Logger) *Simulator {
	l := logger.With(slog.String("component", "backtest"))
	return &Simulator{
		cfg:       cfg,
		lookahead: lookahead,
		levels:    strategy.NewLevelCalculator(cfg, logger),
		validator: risk.NewValidator(riskCfg, logger),
		logger:    l,
	}
}

// Run replays the candle sequence (chronological, hourly) and returns the
// per-trade list and the aggregate summary. It fails with
// domain.ErrInsufficientData when the history cannot cover the warm-up.
func (s *Simulator) Run(candles []domain.Candle) ([]Trade, Summary, error) {
	if len(candles) <= warmup {
		return nil, Summary{}, fmt.Errorf("backtest: %d candles <= %d warmup: %w",
			len(candles), warmup, domain.ErrInsufficientData)
	}

	var trades []Trade

	for i := warmup; i < len(candles); i++ {
		levels, err := s.levels.Calculate(candles[i-warmup : i])
		if err != nil {
			return nil, Summary{}, fmt.Errorf("backtest: levels at index %d: %w", i, err)
		}

		sig := s.detectEntry(levels, candles[i].Close)
		if sig == nil {
			continue
		}

		ok, qty, _ := s.validator.ValidateTrade(*sig)
		if !ok {
			continue
		}

		trade := s.resolveExit(candles, i, *sig, qty)
		trades = append(trades, trade)

		// Skip the candles consumed by the simulated trade.
		i = trade.ExitIndex
	}

	summary := summarize(len(candles), trades)
	s.logger.Info("simulation finished",
		slog.Int("candles", summary.Candles),
		slog.Int("trades", summary.Trades),
		slog.Float64("win_rate", summary.WinRate),
		slog.Float64("total_pnl", summary.TotalPnL),
	)
	return trades, summary, nil
}

// detectEntry applies the chop-zone, long, and short rules using the candle
// close as both the confirming close and the evaluation price. The live
// 15-minute confirmation has no equivalent in an hourly replay and is
// skipped.
func (s *Simulator) detectEntry(levels domain.LevelSet, price float64) *domain.Signal {
	if levels.InChopZone(price) {
		return nil
	}

	if levels.LastClose > levels.Resistance1 && price >= levels.Resistance1-s.cfg.LongPullbackMax {
		return &domain.Signal{
			Side:        domain.SideLong,
			Entry:       levels.Resistance1 - s.cfg.LongEntryOffset,
			StopLoss:    levels.Resistance1 - s.cfg.LongSLOffset,
			TakeProfit1: levels.Resistance2,
			TakeProfit2: levels.TP2Long,
		}
	}

	if levels.LastClose < levels.Support1 && price < levels.Support1 {
		return &domain.Signal{
			Side:        domain.SideShort,
			Entry:       levels.Support1 + s.cfg.ShortEntryOffset,
			StopLoss:    levels.Support1 + s.cfg.ShortSLOffset,
			TakeProfit1: levels.TP1Short,
			TakeProfit2: levels.TP2Short,
		}
	}

	return nil
}

// resolveExit scans forward from the entry candle, bounded by the lookahead
// window, and determines which of stop-loss, TP1-then-breakeven,
// TP1-then-TP2, or timeout resolves the trade first.
func (s *Simulator) resolveExit(candles []domain.Candle, entryIdx int, sig domain.Signal, qty float64) Trade {
	trade := Trade{
		EntryIndex: entryIdx,
		Side:       sig.Side,
		Entry:      sig.Entry,
		StopLoss:   sig.StopLoss,
		TP1:        sig.TakeProfit1,
		TP2:        sig.TakeProfit2,
	}

	long := sig.Side == domain.SideLong
	stop := sig.StopLoss
	halfQty := qty / 2
	tp1Hit := false

	end := entryIdx + s.lookahead
	if end >= len(candles) {
		end = len(candles) - 1
	}

	for j := entryIdx + 1; j <= end; j++ {
		c := candles[j]
		trade.ExitIndex = j

		if touched(long, false, c, stop) {
			if tp1Hit {
				// Remaining half stopped at breakeven.
				trade.Outcome = OutcomeBreakeven
				trade.PnL = domain.PnL(sig.Side, sig.Entry, sig.TakeProfit1, halfQty)
			} else {
				trade.Outcome = OutcomeStopLoss
				trade.PnL = domain.PnL(sig.Side, sig.Entry, stop, qty)
			}
			return trade
		}

		if !tp1Hit && touched(long, true, c, sig.TakeProfit1) {
			tp1Hit = true
			stop = sig.Entry
			// The TP1 candle itself can swing back through breakeven;
			// resolve that before considering TP2 on the same candle.
			if touched(long, false, c, stop) {
				trade.Outcome = OutcomeBreakeven
				trade.PnL = domain.PnL(sig.Side, sig.Entry, sig.TakeProfit1, halfQty)
				return trade
			}
		}

		if tp1Hit && touched(long, true, c, sig.TakeProfit2) {
			trade.Outcome = OutcomeTP2
			trade.PnL = domain.PnL(sig.Side, sig.Entry, sig.TakeProfit1, halfQty) +
				domain.PnL(sig.Side, sig.Entry, sig.TakeProfit2, halfQty)
			return trade
		}
	}

	// Lookahead exhausted: close what remains at the last scanned close.
	last := candles[end].Close
	trade.ExitIndex = end
	trade.Outcome = OutcomeTimeout
	if tp1Hit {
		trade.PnL = domain.PnL(sig.Side, sig.Entry, sig.TakeProfit1, halfQty) +
			domain.PnL(sig.Side, sig.Entry, last, halfQty)
	} else {
		trade.PnL = domain.PnL(sig.Side, sig.Entry, last, qty)
	}
	return trade
}

// touched reports whether the candle's favorable (target) or adverse (stop)
// extreme reached the level for the given direction.
func touched(long, target bool, c domain.Candle, level float64) bool {
	if long == target {
		// Long target or short stop: the high must reach the level.
		return c.High >= level
	}
	return c.Low <= level
}

func summarize(candleCount int, trades []Trade) Summary {
	sum := Summary{Candles: candleCount, Trades: len(trades)}

	var grossProfit, grossLoss float64
	for _, t := range trades {
		sum.TotalPnL += t.PnL
		if t.Outcome == OutcomeTimeout {
			sum.Timeouts++
		}
		if t.PnL > 0 {
			sum.Wins++
			grossProfit += t.PnL
		} else {
			sum.Losses++
			grossLoss += -t.PnL
		}
	}
	if sum.Trades > 0 {
		sum.WinRate = float64(sum.Wins) / float64(sum.Trades)
	}
	if grossLoss > 0 {
		sum.ProfitFactor = grossProfit / grossLoss
	}
	return sum
}
