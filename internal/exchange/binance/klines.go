package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

// parseKlines decodes the /fapi/v1/klines payload, which is an array of
// mixed-type arrays:
//
//	[ openTime, open, high, low, close, volume, closeTime, ... ]
//
// Numeric fields arrive as strings; openTime is a millisecond timestamp.
func parseKlines(body []byte) ([]domain.Candle, error) {
	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for i, k := range raw {
		if len(k) < 6 {
			return nil, fmt.Errorf("binance: kline %d has %d fields, want at least 6", i, len(k))
		}

		var openTime int64
		if err := json.Unmarshal(k[0], &openTime); err != nil {
			return nil, fmt.Errorf("binance: kline %d open time: %w", i, err)
		}

		c := domain.Candle{OpenTime: time.UnixMilli(openTime).UTC()}
		fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
		for j, dst := range fields {
			var s string
			if err := json.Unmarshal(k[j+1], &s); err != nil {
				return nil, fmt.Errorf("binance: kline %d field %d: %w", i, j+1, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("binance: kline %d field %d %q: %w", i, j+1, s, err)
			}
			*dst = v
		}
		candles = append(candles, c)
	}
	return candles, nil
}
