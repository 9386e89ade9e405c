package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PriceHandler is invoked for every mark-price tick from the stream.
type PriceHandler func(ctx context.Context, price float64, ts time.Time)

// PriceStream subscribes to the Binance futures mark-price websocket stream
// for one symbol and invokes the handler on every tick. It reconnects with a
// fixed pause on disconnect and runs until the context is cancelled.
type PriceStream struct {
	wsURL     string
	symbol    string
	onPrice   PriceHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewPriceStream creates a stream for the given websocket base URL (e.g.
// "wss://fstream.binance.com/ws") and symbol.
func NewPriceStream(wsURL, symbol string, onPrice PriceHandler, logger *slog.Logger) *PriceStream {
	return &PriceStream{
		wsURL:   wsURL,
		symbol:  symbol,
		onPrice: onPrice,
		logger:  logger.With(slog.String("component", "price_stream")),
		done:    make(chan struct{}),
	}
}

// markPriceEvent is the @markPrice stream payload (fields trimmed to what we
// read).
type markPriceEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	MarkPrice string `json:"p"`
}

// Run connects and reads ticks until ctx is cancelled or Close is called.
func (s *PriceStream) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		if err := s.runConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("price stream disconnected, reconnecting",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *PriceStream) runConnection(ctx context.Context) error {
	streamURL := fmt.Sprintf("%s/%s@markPrice@1s",
		strings.TrimRight(s.wsURL, "/"), strings.ToLower(s.symbol))

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, streamURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("binance: dial %s: %w", streamURL, err)
	}
	defer conn.Close()

	s.logger.Info("price stream connected", slog.String("url", streamURL))

	// Close the connection when the context ends so ReadMessage unblocks.
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("binance: read price stream: %w", err)
		}

		var ev markPriceEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Debug("skipping unparseable stream message", slog.String("error", err.Error()))
			continue
		}
		if ev.EventType != "markPriceUpdate" {
			continue
		}

		price, err := strconv.ParseFloat(ev.MarkPrice, 64)
		if err != nil {
			continue
		}
		if s.onPrice != nil {
			s.onPrice(ctx, price, time.UnixMilli(ev.EventTime).UTC())
		}
	}
}

// Close stops the stream.
func (s *PriceStream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
