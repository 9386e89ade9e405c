package domain

import "time"

// TradeOutcome labels how (part of) a position was closed.
type TradeOutcome string

const (
	OutcomeStopLoss TradeOutcome = "SL"
	OutcomeTP1      TradeOutcome = "TP1"
	OutcomeTP2      TradeOutcome = "TP2"
)

// TradeRecord is one journal row: a partial or full close of a position.
type TradeRecord struct {
	ID          string
	Symbol      string
	Side        Side
	Outcome     TradeOutcome
	EntryPrice  float64
	ExitPrice   float64
	Qty         float64
	RealizedPnL float64
	ClosedAt    time.Time
}

// PnL computes the realized profit of closing qty at exit against entry.
func PnL(side Side, entry, exit, qty float64) float64 {
	if side == SideLong {
		return (exit - entry) * qty
	}
	return (entry - exit) * qty
}
