package domain

// PositionState is the lifecycle stage of the tracked position.
type PositionState string

const (
	PositionFlat    PositionState = "flat"
	PositionOpen    PositionState = "open"    // full size, TP1 not yet hit
	PositionPartial PositionState = "partial" // TP1 partial close done
)

// Position is the single long-lived mutable entity of the bot. At most one
// exists for the tracked market; the position manager is its only writer.
// The struct doubles as the persisted state record: Active distinguishes
// FLAT from an open lifecycle, and absence of a stored record means FLAT.
type Position struct {
	Active          bool     `json:"position_open"`
	Side            Side     `json:"side,omitempty"`
	EntryPrice      float64  `json:"entry_price,omitempty"`
	QtyTotal        float64  `json:"qty_total,omitempty"`
	QtyRemaining    float64  `json:"qty_remaining,omitempty"`
	StopLoss        float64  `json:"stop_loss,omitempty"`
	TakeProfit1     float64  `json:"tp1,omitempty"`
	TakeProfit2     float64  `json:"tp2,omitempty"`
	TP1Hit          bool     `json:"tp1_hit"`
	BreakevenActive bool     `json:"breakeven_active"`
	TrailingActive  bool     `json:"trailing_active"`
	TrailingPeak    *float64 `json:"trailing_peak,omitempty"`
	OrderID         string   `json:"order_id,omitempty"`
}

// State derives the lifecycle stage from the stored fields.
func (p Position) State() PositionState {
	switch {
	case !p.Active:
		return PositionFlat
	case p.TP1Hit:
		return PositionPartial
	default:
		return PositionOpen
	}
}
