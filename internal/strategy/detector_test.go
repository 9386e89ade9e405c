package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/breakoutbot/internal/config"
	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

// stubData serves canned 15-minute candles for the short confirmation fetch.
type stubData struct {
	candles []domain.Candle
	err     error

	gotTimeframe domain.Timeframe
	gotLimit     int
}

func (s *stubData) FetchCandles(_ context.Context, tf domain.Timeframe, limit int) ([]domain.Candle, error) {
	s.gotTimeframe = tf
	s.gotLimit = limit
	return s.candles, s.err
}

func (s *stubData) FetchPrice(context.Context) (float64, error) {
	return 0, errors.New("not used")
}

func confirm15m(close float64) []domain.Candle {
	return []domain.Candle{
		{Close: close + 100},
		{Close: close + 50},
		{Close: close},
	}
}

// testLevels has a deliberately narrow chop band so prices slightly outside
// it can exercise the long and short rules.
func testLevels(lastClose float64) domain.LevelSet {
	return domain.LevelSet{
		Resistance1: 67000,
		Support1:    66800,
		Resistance2: 68000,
		TP2Long:     70000,
		TP1Short:    65400,
		TP2Short:    64000,
		LastClose:   lastClose,
	}
}

func newTestDetector(data domain.MarketData) *SignalDetector {
	return NewSignalDetector(config.Defaults().Strategy, data, testLogger())
}

func TestEvaluateChopZone(t *testing.T) {
	d := newTestDetector(&stubData{})
	levels := testLevels(66900)

	for _, price := range []float64{66800, 66900, 67000} {
		sig, reason, err := d.Evaluate(context.Background(), levels, price)
		require.NoError(t, err)
		assert.Nil(t, sig, "price %v inside the chop band must not signal", price)
		assert.Equal(t, domain.ReasonChopZone, reason)
	}
}

func TestEvaluateLongBreakout(t *testing.T) {
	d := newTestDetector(&stubData{})
	levels := testLevels(67001)

	sig, reason, err := d.Evaluate(context.Background(), levels, 67010)
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, domain.ReasonLongBreakout, reason)
	assert.Equal(t, domain.SideLong, sig.Side)
	assert.Equal(t, 66960.0, sig.Entry)    // resistance - 40
	assert.Equal(t, 66360.0, sig.StopLoss) // resistance - 640
	assert.Equal(t, 68000.0, sig.TakeProfit1)
	assert.Equal(t, 70000.0, sig.TakeProfit2)
}

func TestEvaluateLongRejectedOnDeepPullback(t *testing.T) {
	d := newTestDetector(&stubData{})
	levels := testLevels(67001)

	// 66699 is below resistance-300 and below the support band, so neither
	// the chop rule nor the long rule applies; the short rule needs a close
	// below support which 67001 is not.
	sig, reason, err := d.Evaluate(context.Background(), levels, 66699)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Equal(t, domain.ReasonNoSignal, reason)
}

func TestEvaluateLongAtPullbackBoundary(t *testing.T) {
	d := newTestDetector(&stubData{})
	levels := testLevels(67001)

	// Exactly resistance-300 is still inside the allowed band.
	sig, reason, err := d.Evaluate(context.Background(), levels, 66700)
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, domain.ReasonLongBreakout, reason)
}

func TestEvaluateShortBreakdownConfirmed(t *testing.T) {
	data := &stubData{candles: confirm15m(66700)}
	d := newTestDetector(data)
	levels := testLevels(66750)

	sig, reason, err := d.Evaluate(context.Background(), levels, 66720)
	require.NoError(t, err)
	require.NotNil(t, sig)

	assert.Equal(t, domain.ReasonShortBreakout, reason)
	assert.Equal(t, domain.SideShort, sig.Side)
	assert.Equal(t, 66850.0, sig.Entry)    // support + 50
	assert.Equal(t, 67450.0, sig.StopLoss) // support + 650
	assert.Equal(t, 65400.0, sig.TakeProfit1)
	assert.Equal(t, 64000.0, sig.TakeProfit2)

	assert.Equal(t, domain.Timeframe15m, data.gotTimeframe)
	assert.Equal(t, 3, data.gotLimit)
}

func TestEvaluateShortRejectedBy15mClose(t *testing.T) {
	data := &stubData{candles: confirm15m(66850)} // reclaimed the level
	d := newTestDetector(data)
	levels := testLevels(66750)

	sig, reason, err := d.Evaluate(context.Background(), levels, 66720)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Equal(t, domain.ReasonNoSignal, reason)
}

func TestEvaluateShortRejectedWhenPriceReclaimsSupport(t *testing.T) {
	data := &stubData{candles: confirm15m(66700)}
	d := newTestDetector(data)
	levels := testLevels(66750)

	// Price back above resistance: no chop, no long (close below), and the
	// short rule requires price still below support.
	sig, reason, err := d.Evaluate(context.Background(), levels, 67100)
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Equal(t, domain.ReasonNoSignal, reason)
	assert.Zero(t, data.gotLimit, "no confirmation fetch should happen")
}

func TestEvaluateShortConfirmationFetchError(t *testing.T) {
	data := &stubData{err: errors.New("boom")}
	d := newTestDetector(data)
	levels := testLevels(66750)

	sig, _, err := d.Evaluate(context.Background(), levels, 66720)
	require.Error(t, err)
	assert.Nil(t, sig)
}

func TestEvaluateShortEmptyConfirmation(t *testing.T) {
	data := &stubData{candles: nil}
	d := newTestDetector(data)
	levels := testLevels(66750)

	_, _, err := d.Evaluate(context.Background(), levels, 66720)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}
