package domain

import "context"

// OrderStatus tracks an order handle returned by the exchange.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "new"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
)

// Order is the minimal order handle the engine needs back from the exchange.
type Order struct {
	ID            string
	ClientOrderID string
	Side          Side
	Qty           float64
	Price         float64
	StopPrice     float64
	Status        OrderStatus
}

// OrderOpts carries optional order parameters.
type OrderOpts struct {
	ReduceOnly  bool
	TimeInForce string // e.g. "GTC"
}

// MarketData is the read side of the exchange contract.
type MarketData interface {
	// FetchCandles returns up to limit candles for the timeframe in
	// chronological order, most recent last.
	FetchCandles(ctx context.Context, tf Timeframe, limit int) ([]Candle, error)
	// FetchPrice returns the current market price.
	FetchPrice(ctx context.Context) (float64, error)
}

// OrderExecutor is the write side of the exchange contract. All close paths
// in the position manager use reduce-only market orders.
type OrderExecutor interface {
	PlaceLimitOrder(ctx context.Context, side Side, qty, price float64, opts OrderOpts) (Order, error)
	PlaceStopMarketOrder(ctx context.Context, side Side, qty, stopPrice float64) (Order, error)
	PlaceMarketOrder(ctx context.Context, side Side, qty float64, opts OrderOpts) (Order, error)
	CancelAllOrders(ctx context.Context) error
}

// Exchange combines market data and order execution.
type Exchange interface {
	MarketData
	OrderExecutor
}
