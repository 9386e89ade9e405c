package binance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKlines(t *testing.T) {
	// Shape of a real /fapi/v1/klines row: numbers as strings, timestamps
	// in milliseconds, trailing fields ignored.
	body := []byte(`[
		[1709294400000,"64000.10","64250.00","63900.50","64100.00","1200.5",1709297999999,"76860000.00",4521,"600.2","38460000.00","0"],
		[1709298000000,"64100.00","64300.00","64050.00","64280.90","980.1",1709301599999,"62900000.00",3877,"490.0","31440000.00","0"]
	]`)

	candles, err := parseKlines(body)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.Equal(t, time.UnixMilli(1709294400000).UTC(), first.OpenTime)
	assert.Equal(t, 64000.10, first.Open)
	assert.Equal(t, 64250.00, first.High)
	assert.Equal(t, 63900.50, first.Low)
	assert.Equal(t, 64100.00, first.Close)
	assert.Equal(t, 1200.5, first.Volume)

	assert.True(t, candles[0].OpenTime.Before(candles[1].OpenTime),
		"chronological order must be preserved")
	assert.Equal(t, 64280.90, candles[1].Close)
}

func TestParseKlinesEmpty(t *testing.T) {
	candles, err := parseKlines([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestParseKlinesMalformed(t *testing.T) {
	cases := map[string][]byte{
		"not json":      []byte(`{"oops":true}`),
		"short row":     []byte(`[[1709294400000,"64000.10","64250.00"]]`),
		"bad number":    []byte(`[[1709294400000,"sixty-four","64250.00","63900.50","64100.00","1200.5"]]`),
		"numeric field": []byte(`[[1709294400000,64000.10,"64250.00","63900.50","64100.00","1200.5"]]`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseKlines(body)
			assert.Error(t, err)
		})
	}
}
