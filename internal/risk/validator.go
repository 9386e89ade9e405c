// Package risk sizes candidate trades and gates them against the configured
// risk limits.
package risk

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/breakoutbot/internal/config"
	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

// Validator accepts or rejects a signal and computes the order quantity. It
// is a pure function of the signal apart from logging; rejections are normal
// outcomes, not errors.
type Validator struct {
	cfg    config.Risk
	logger *slog.Logger
}

// NewValidator creates a Validator with the given risk limits.
func NewValidator(cfg config.Risk, logger *slog.Logger) *Validator {
	return &Validator{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk")),
	}
}

// PositionSize returns the order quantity in base units for the configured
// notional at the given entry price.
func (v *Validator) PositionSize(entry float64) float64 {
	return v.cfg.NotionalValue() / entry
}

// RewardRisk computes the reward:risk ratio against TP1 as the conservative
// target. A non-positive risk denominator yields 0 (degenerate geometry).
func RewardRisk(side domain.Side, entry, stopLoss, tp1 float64) float64 {
	var reward, riskAmt float64
	if side == domain.SideLong {
		reward = tp1 - entry
		riskAmt = entry - stopLoss
	} else {
		reward = entry - tp1
		riskAmt = stopLoss - entry
	}
	if riskAmt <= 0 {
		return 0
	}
	return reward / riskAmt
}

// ValidateTrade applies both gates in order: reward:risk against the
// configured minimum, then the real risk in quote currency against the
// ceiling. It returns (accepted, qty, message); qty is 0 on rejection.
func (v *Validator) ValidateTrade(sig domain.Signal) (bool, float64, string) {
	ratio := RewardRisk(sig.Side, sig.Entry, sig.StopLoss, sig.TakeProfit1)
	if ratio < v.cfg.MinRRRatio {
		msg := fmt.Sprintf("rejected: reward:risk %.2f below minimum %.2f", ratio, v.cfg.MinRRRatio)
		v.logger.Warn("trade rejected",
			slog.Float64("ratio", ratio),
			slog.Float64("min_ratio", v.cfg.MinRRRatio),
		)
		return false, 0, msg
	}

	qty := v.PositionSize(sig.Entry)
	realRisk := qty * math.Abs(sig.Entry-sig.StopLoss)
	if realRisk > v.cfg.MaxRiskUSDT {
		msg := fmt.Sprintf("rejected: real risk %.2f USDT exceeds ceiling %.2f USDT", realRisk, v.cfg.MaxRiskUSDT)
		v.logger.Warn("trade rejected",
			slog.Float64("real_risk", realRisk),
			slog.Float64("max_risk", v.cfg.MaxRiskUSDT),
		)
		return false, 0, msg
	}

	msg := fmt.Sprintf("accepted: ratio %.2f, qty %.6f, risk %.2f USDT", ratio, qty, realRisk)
	v.logger.Info("trade accepted",
		slog.Float64("ratio", ratio),
		slog.Float64("qty", qty),
		slog.Float64("real_risk", realRisk),
	)
	return true, qty, msg
}
