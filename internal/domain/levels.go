package domain

// LevelSet holds the price levels derived from a rolling window of hourly
// candles. A LevelSet is recomputed wholesale every cycle while the bot is
// flat and is never mutated in place.
type LevelSet struct {
	Resistance1 float64 // max high of the last 24 candles
	Support1    float64 // min low of the last 24 candles
	Resistance2 float64 // max high of candles 25-48, falls back to Resistance1
	TP2Long     float64 // max high of candles 49-72, falls back to Resistance2
	TP1Short    float64 // round multiple of 200 at or below offset support
	TP2Short    float64 // Support1 - short TP2 offset
	LastClose   float64 // close of the most recent 1h candle
}

// InChopZone reports whether price sits inside the inclusive band between
// support and resistance, where no breakout thesis holds.
func (l LevelSet) InChopZone(price float64) bool {
	return price >= l.Support1 && price <= l.Resistance1
}
