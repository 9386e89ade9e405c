// Package domain defines the core entities of the breakout bot (candles,
// price levels, signals, positions, trade records) and the narrow interfaces
// through which the engine talks to the exchange, persistence, and the
// operator channel.
package domain

import "time"

// Timeframe identifies a candle interval in exchange notation.
type Timeframe string

const (
	Timeframe1h  Timeframe = "1h"
	Timeframe15m Timeframe = "15m"
)

// Candle is a single OHLCV bar. Candles are immutable and always supplied as
// a chronological sequence, most recent last.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// MaxHigh returns the highest high of the slice, or 0 for an empty slice.
func MaxHigh(candles []Candle) float64 {
	var max float64
	for i, c := range candles {
		if i == 0 || c.High > max {
			max = c.High
		}
	}
	return max
}

// MinLow returns the lowest low of the slice, or 0 for an empty slice.
func MinLow(candles []Candle) float64 {
	var min float64
	for i, c := range candles {
		if i == 0 || c.Low < min {
			min = c.Low
		}
	}
	return min
}
