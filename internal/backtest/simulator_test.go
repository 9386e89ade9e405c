package backtest

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

func newTestSimulator(lookahead int) *Simulator {
	return NewSimulator(config.Defaults().Strategy, config.Defaults().Risk, lookahead, testLogger())
}

func flatSeries(n int, high, low, close float64) []domain.Candle {
	out := make([]domain.Candle, n)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = domain.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     close,
			High:     high,
			Low:      low,
			Close:    close,
		}
	}
	return out
}

func TestRunInsufficientHistory(t *testing.T) {
	s := newTestSimulator(48)

	_, _, err := s.Run(flatSeries(72, 64100, 63900, 64000))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestRunRangeBoundSeriesProducesNoTrades(t *testing.T) {
	s := newTestSimulator(48)

	trades, summary, err := s.Run(flatSeries(200, 64100, 63900, 64000))
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 200, summary.Candles)
	assert.Zero(t, summary.Trades)
	assert.Zero(t, summary.TotalPnL)
}

func TestDetectEntryChopZone(t *testing.T) {
	s := newTestSimulator(48)
	levels := domain.LevelSet{
		Resistance1: 64100,
		Support1:    63900,
		LastClose:   64200,
	}

	assert.Nil(t, s.detectEntry(levels, 64000), "price inside the band never signals")
}

func longTestSignal() domain.Signal {
	return domain.Signal{
		Side:        domain.SideLong,
		Entry:       65000,
		StopLoss:    64360,
		TakeProfit1: 65800,
		TakeProfit2: 66200,
	}
}

// exitCandles prepends an entry candle so the scan starts at index 1.
func exitCandles(future ...domain.Candle) []domain.Candle {
	return append([]domain.Candle{{High: 65000, Low: 64900, Close: 65000}}, future...)
}

func TestResolveExitStopLoss(t *testing.T) {
	s := newTestSimulator(48)
	candles := exitCandles(
		domain.Candle{High: 65900, Low: 64300, Close: 64500}, // stop and TP1 both touched
	)

	trade := s.resolveExit(candles, 0, longTestSignal(), 0.02)

	assert.Equal(t, OutcomeStopLoss, trade.Outcome, "the stop resolves before any target inside one candle")
	assert.Equal(t, 1, trade.ExitIndex)
	assert.InDelta(t, (64360.0-65000.0)*0.02, trade.PnL, 1e-9)
}

func TestResolveExitTP1ThenTP2(t *testing.T) {
	s := newTestSimulator(48)
	candles := exitCandles(
		domain.Candle{High: 65500, Low: 64800, Close: 65400},
		domain.Candle{High: 65850, Low: 65100, Close: 65700}, // TP1, stop → breakeven
		domain.Candle{High: 66250, Low: 65500, Close: 66100}, // TP2
	)

	trade := s.resolveExit(candles, 0, longTestSignal(), 0.02)

	assert.Equal(t, OutcomeTP2, trade.Outcome)
	assert.Equal(t, 3, trade.ExitIndex)
	want := (65800.0-65000.0)*0.01 + (66200.0-65000.0)*0.01
	assert.InDelta(t, want, trade.PnL, 1e-9)
}

func TestResolveExitTP1ThenBreakeven(t *testing.T) {
	s := newTestSimulator(48)
	candles := exitCandles(
		domain.Candle{High: 65850, Low: 65100, Close: 65700}, // TP1, stop → breakeven
		domain.Candle{High: 66000, Low: 64950, Close: 65100}, // breakeven stop touched
	)

	trade := s.resolveExit(candles, 0, longTestSignal(), 0.02)

	assert.Equal(t, OutcomeBreakeven, trade.Outcome)
	assert.Equal(t, 2, trade.ExitIndex)
	assert.InDelta(t, (65800.0-65000.0)*0.01, trade.PnL, 1e-9,
		"only the TP1 half carries profit; the rest exits at entry")
}

func TestResolveExitBreakevenOnTP1Candle(t *testing.T) {
	s := newTestSimulator(48)
	candles := exitCandles(
		domain.Candle{High: 65850, Low: 64950, Close: 65200}, // TP1 and breakeven in one swing
	)

	trade := s.resolveExit(candles, 0, longTestSignal(), 0.02)

	assert.Equal(t, OutcomeBreakeven, trade.Outcome,
		"a dip back through entry on the TP1 candle exits the remaining half")
	assert.Equal(t, 1, trade.ExitIndex)
	assert.InDelta(t, (65800.0-65000.0)*0.01, trade.PnL, 1e-9)
}

func TestResolveExitTimeout(t *testing.T) {
	s := newTestSimulator(2)
	candles := exitCandles(
		domain.Candle{High: 65500, Low: 64800, Close: 65300},
		domain.Candle{High: 65600, Low: 65000, Close: 65450},
		domain.Candle{High: 67000, Low: 65000, Close: 66500}, // beyond the lookahead
	)

	trade := s.resolveExit(candles, 0, longTestSignal(), 0.02)

	assert.Equal(t, OutcomeTimeout, trade.Outcome)
	assert.Equal(t, 2, trade.ExitIndex)
	assert.InDelta(t, (65450.0-65000.0)*0.02, trade.PnL, 1e-9,
		"remaining quantity closes at the last scanned close")
}

func TestResolveExitShortSide(t *testing.T) {
	s := newTestSimulator(48)
	sig := domain.Signal{
		Side:        domain.SideShort,
		Entry:       66850,
		StopLoss:    67450,
		TakeProfit1: 65400,
		TakeProfit2: 64000,
	}
	candles := exitCandles(
		domain.Candle{High: 66800, Low: 65350, Close: 65500}, // TP1
		domain.Candle{High: 66000, Low: 63900, Close: 64100}, // TP2
	)

	trade := s.resolveExit(candles, 0, sig, 0.02)

	assert.Equal(t, OutcomeTP2, trade.Outcome)
	want := (66850.0-65400.0)*0.01 + (66850.0-64000.0)*0.01
	assert.InDelta(t, want, trade.PnL, 1e-9)
}

func TestSummarize(t *testing.T) {
	trades := []Trade{
		{Outcome: OutcomeTP2, PnL: 20},
		{Outcome: OutcomeStopLoss, PnL: -12.8},
		{Outcome: OutcomeBreakeven, PnL: 8},
		{Outcome: OutcomeTimeout, PnL: -2},
	}

	sum := summarize(500, trades)

	assert.Equal(t, 500, sum.Candles)
	assert.Equal(t, 4, sum.Trades)
	assert.Equal(t, 2, sum.Wins)
	assert.Equal(t, 2, sum.Losses)
	assert.Equal(t, 1, sum.Timeouts)
	assert.InDelta(t, 0.5, sum.WinRate, 1e-9)
	assert.InDelta(t, 13.2, sum.TotalPnL, 1e-9)
	assert.InDelta(t, 28.0/14.8, sum.ProfitFactor, 1e-9)
}
