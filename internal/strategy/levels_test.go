package strategy

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/breakoutbot/internal/config"
	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// repeatCandles builds n identical hourly candles.
func repeatCandles(n int, high, low, close float64) []domain.Candle {
	out := make([]domain.Candle, n)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = domain.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     close,
			High:     high,
			Low:      low,
			Close:    close,
			Volume:   10,
		}
	}
	return out
}

func TestCalculateFullWindow(t *testing.T) {
	calc := NewLevelCalculator(config.Defaults().Strategy, testLogger())

	// Oldest 24 candles carry the highest high, the middle 24 the second
	// highest, the most recent 24 the tightest range.
	var candles []domain.Candle
	candles = append(candles, repeatCandles(24, 70000, 64500, 66000)...) // window C
	candles = append(candles, repeatCandles(24, 68000, 64300, 65500)...) // window B
	candles = append(candles, repeatCandles(24, 67000, 64050, 66500)...) // window A

	levels, err := calc.Calculate(candles)
	require.NoError(t, err)

	assert.Equal(t, 67000.0, levels.Resistance1)
	assert.Equal(t, 64050.0, levels.Support1)
	assert.Equal(t, 68000.0, levels.Resistance2)
	assert.Equal(t, 70000.0, levels.TP2Long)
	assert.Equal(t, 66500.0, levels.LastClose)

	// 64050 - 1400 = 62650, rounded down to the nearest multiple of 200.
	assert.Equal(t, 62600.0, levels.TP1Short)
	assert.Equal(t, 61250.0, levels.TP2Short)

	assert.GreaterOrEqual(t, levels.Resistance1, levels.Support1)
}

func TestCalculateTP2LongFallsBackToResistance2(t *testing.T) {
	calc := NewLevelCalculator(config.Defaults().Strategy, testLogger())

	var candles []domain.Candle
	candles = append(candles, repeatCandles(24, 68000, 64300, 65500)...)
	candles = append(candles, repeatCandles(24, 67000, 64000, 66500)...)
	require.Len(t, candles, 48)

	levels, err := calc.Calculate(candles)
	require.NoError(t, err)

	assert.Equal(t, 67000.0, levels.Resistance1)
	assert.Equal(t, 68000.0, levels.Resistance2)
	assert.Equal(t, levels.Resistance2, levels.TP2Long,
		"without a third window TP2Long must fall back to Resistance2")
}

func TestCalculateWindowsCountFromEnd(t *testing.T) {
	calc := NewLevelCalculator(config.Defaults().Strategy, testLogger())

	// 60 candles: the two full windows count from the end, and the 12
	// oldest candles form a partial third window that only feeds TP2Long.
	var candles []domain.Candle
	candles = append(candles, repeatCandles(12, 99000, 50000, 60000)...) // partial window C
	candles = append(candles, repeatCandles(24, 68000, 64300, 65500)...)
	candles = append(candles, repeatCandles(24, 67000, 64000, 66500)...)

	levels, err := calc.Calculate(candles)
	require.NoError(t, err)

	assert.Equal(t, 67000.0, levels.Resistance1)
	assert.Equal(t, 64000.0, levels.Support1)
	assert.Equal(t, 68000.0, levels.Resistance2)
	assert.Equal(t, 99000.0, levels.TP2Long,
		"the partial oldest window supplies TP2Long when history is between 48 and 72 candles")
}

func TestCalculateInsufficientData(t *testing.T) {
	calc := NewLevelCalculator(config.Defaults().Strategy, testLogger())

	_, err := calc.Calculate(repeatCandles(47, 67000, 64000, 66500))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = calc.Calculate(nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestRoundLevelBelow(t *testing.T) {
	cases := []struct {
		price, step, want float64
	}{
		{64372, 200, 64200},
		{62600, 200, 62600},
		{62799.99, 200, 62600},
		{199, 200, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, roundLevelBelow(tc.price, tc.step),
			"roundLevelBelow(%v, %v)", tc.price, tc.step)
	}
}
