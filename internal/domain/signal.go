package domain

// Side is the direction of a trade.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the closing direction for the side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Reason classifies the outcome of one signal evaluation.
type Reason string

const (
	ReasonChopZone      Reason = "CHOP_ZONE"
	ReasonLongBreakout  Reason = "LONG_BREAKOUT"
	ReasonShortBreakout Reason = "SHORT_BREAKOUT"
	ReasonNoSignal      Reason = "NO_SIGNAL"
)

// Signal is a candidate trade produced by the detector. It is immutable once
// produced and consumed exactly once by the risk validator.
type Signal struct {
	Side        Side
	Entry       float64
	StopLoss    float64
	TakeProfit1 float64
	TakeProfit2 float64
	Reason      string
}
