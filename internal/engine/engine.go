// Package engine runs the polling cycle that ties the strategy, risk, and
// position components together: one evaluation per fixed interval, no
// parallel cycles, with each cycle's side effects complete before the next
// begins.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/breakoutbot/internal/domain"
	"github.com/alanyoungcy/breakoutbot/internal/notify"
	"github.com/alanyoungcy/breakoutbot/internal/position"
	"github.com/alanyoungcy/breakoutbot/internal/risk"
	"github.com/alanyoungcy/breakoutbot/internal/strategy"
)

// priceMaxAge is how fresh a streamed tick must be before the cycle trusts
// the cache instead of a REST round trip.
const priceMaxAge = 30 * time.Second

// Engine owns the trading loop. All position mutation happens on the single
// goroutine running the loop.
type Engine struct {
	symbol      string
	interval    time.Duration
	candleLimit int

	exchange  domain.Exchange
	prices    domain.PriceCache // optional, nil skips the cache lookup
	levels    *strategy.LevelCalculator
	detector  *strategy.SignalDetector
	validator *risk.Validator
	manager   *position.Manager
	notifier  *notify.Notifier
	logger    *slog.Logger
}

// Config bundles the engine construction parameters.
type Config struct {
	Symbol      string
	Interval    time.Duration
	CandleLimit int
}

// New creates an Engine. prices may be nil when no streamed price cache is
// wired.
func New(
	cfg Config,
	exchange domain.Exchange,
	prices domain.PriceCache,
	levels *strategy.LevelCalculator,
	detector *strategy.SignalDetector,
	validator *risk.Validator,
	manager *position.Manager,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		symbol:      cfg.Symbol,
		interval:    cfg.Interval,
		candleLimit: cfg.CandleLimit,
		exchange:    exchange,
		prices:      prices,
		levels:      levels,
		detector:    detector,
		validator:   validator,
		manager:     manager,
		notifier:    notifier,
		logger:      logger.With(slog.String("component", "engine")),
	}
}

// Run executes cycles until the context is cancelled. The next wake time is
// derived from the cycle start so slow cycles do not drift the schedule, and
// a failing cycle never terminates the loop.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "trading loop started",
		slog.String("symbol", e.symbol),
		slog.Duration("interval", e.interval),
	)

	for {
		start := time.Now()
		if err := e.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.ErrorContext(ctx, "cycle failed",
				slog.String("error", err.Error()),
			)
		}

		wait := time.Until(start.Add(e.interval))
		if wait < 0 {
			wait = 0
		}
		e.logger.DebugContext(ctx, "cycle complete", slog.Duration("next_wake", wait))

		select {
		case <-ctx.Done():
			e.logger.InfoContext(ctx, "trading loop stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RunCycle executes a single evaluation: monitor the open position, or look
// for a new entry when flat. Panics inside the cycle are contained and
// reported as errors so the loop schedule survives them.
func (e *Engine) RunCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine: cycle panic: %v", r)
		}
	}()

	price, err := e.currentPrice(ctx)
	if err != nil {
		return fmt.Errorf("engine: current price: %w", err)
	}
	e.logger.InfoContext(ctx, "cycle",
		slog.String("symbol", e.symbol),
		slog.Float64("price", price),
		slog.Bool("position_open", e.manager.HasOpenPosition()),
	)

	if e.manager.HasOpenPosition() {
		return e.manager.Monitor(ctx, price)
	}
	return e.evaluateEntry(ctx, price)
}

// currentPrice prefers a fresh streamed tick from the cache and falls back
// to the REST ticker.
func (e *Engine) currentPrice(ctx context.Context) (float64, error) {
	if e.prices != nil {
		price, ts, err := e.prices.GetPrice(ctx, e.symbol)
		if err == nil && time.Since(ts) <= priceMaxAge {
			return price, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			e.logger.WarnContext(ctx, "price cache lookup failed, using REST",
				slog.String("error", err.Error()),
			)
		}
	}
	return e.exchange.FetchPrice(ctx)
}

// evaluateEntry computes levels, runs the signal rules, gates the result
// through risk validation, and on acceptance places the entry and protective
// orders and opens the position lifecycle.
func (e *Engine) evaluateEntry(ctx context.Context, price float64) error {
	candles, err := e.exchange.FetchCandles(ctx, domain.Timeframe1h, e.candleLimit)
	if err != nil {
		return fmt.Errorf("engine: fetch 1h candles: %w", err)
	}

	levels, err := e.levels.Calculate(candles)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			// Not fatal to the loop; this cycle just cannot evaluate.
			e.logger.WarnContext(ctx, "skipping cycle", slog.String("error", err.Error()))
			return nil
		}
		return fmt.Errorf("engine: calculate levels: %w", err)
	}

	sig, reason, err := e.detector.Evaluate(ctx, levels, price)
	if err != nil {
		return fmt.Errorf("engine: evaluate signal: %w", err)
	}

	switch {
	case reason == domain.ReasonChopZone:
		e.notify(ctx, notify.EventChopZone, "Chop zone",
			fmt.Sprintf("%s at %.2f inside [%.2f, %.2f], no trade",
				e.symbol, price, levels.Support1, levels.Resistance1))
		return nil
	case sig == nil:
		e.logger.InfoContext(ctx, "no signal", slog.String("reason", string(reason)))
		return nil
	}

	e.notify(ctx, notify.EventSignal, fmt.Sprintf("Signal: %s", sig.Side),
		fmt.Sprintf("entry %.2f, SL %.2f, TP1 %.2f, TP2 %.2f",
			sig.Entry, sig.StopLoss, sig.TakeProfit1, sig.TakeProfit2))

	ok, qty, msg := e.validator.ValidateTrade(*sig)
	if !ok {
		e.notify(ctx, notify.EventRiskReject, "Trade rejected", msg)
		return nil
	}

	return e.placeEntry(ctx, *sig, qty)
}

// placeEntry submits the entry limit order plus the protective stop and
// hands the accepted signal to the position manager.
func (e *Engine) placeEntry(ctx context.Context, sig domain.Signal, qty float64) error {
	order, err := e.exchange.PlaceLimitOrder(ctx, sig.Side, qty, sig.Entry,
		domain.OrderOpts{TimeInForce: "GTC"})
	if err != nil {
		e.notify(ctx, notify.EventError, "Entry order failed", err.Error())
		return fmt.Errorf("engine: place entry order: %w", err)
	}

	if _, err := e.exchange.PlaceStopMarketOrder(ctx, sig.Side.Opposite(), qty, sig.StopLoss); err != nil {
		// The entry may rest on the book without protection; surface loudly.
		e.notify(ctx, notify.EventError, "Protective stop failed", err.Error())
		return fmt.Errorf("engine: place protective stop: %w", err)
	}

	if err := e.manager.Open(ctx, sig, qty, order.ID); err != nil {
		return fmt.Errorf("engine: open position: %w", err)
	}

	e.notify(ctx, notify.EventOpen, fmt.Sprintf("Position opened: %s", sig.Side),
		fmt.Sprintf("entry %.2f, qty %.6f, SL %.2f, TP1 %.2f, TP2 %.2f",
			sig.Entry, qty, sig.StopLoss, sig.TakeProfit1, sig.TakeProfit2))
	return nil
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	_ = e.notifier.Notify(ctx, event, title, message)
}
