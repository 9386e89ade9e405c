package domain

import (
	"context"
	"time"
)

// StateStore durably persists the position record. Load must be called on
// process start; Save is called after every position mutation so a restart
// resumes the correct lifecycle stage.
type StateStore interface {
	// Load returns the stored position, or a flat Position (and no error)
	// when nothing has been stored yet.
	Load(ctx context.Context) (Position, error)
	Save(ctx context.Context, pos Position) error
}

// TradeSummary aggregates the journal for reporting.
type TradeSummary struct {
	Trades   int64
	Wins     int64
	Losses   int64
	TotalPnL float64
}

// TradeStore persists the closed-trade journal.
type TradeStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListRecent(ctx context.Context, limit int) ([]TradeRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]TradeRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	Summary(ctx context.Context) (TradeSummary, error)
}

// PriceCache stores the latest streamed price so the polling cycle can avoid
// a REST round trip when the websocket feed is healthy.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}
