// Package position owns the lifecycle of the single open position: partial
// take-profit, breakeven relocation, trailing-stop ratcheting, and stop-loss
// closure. The manager is the only writer of the position record and
// persists it after every state transition so a restart resumes the correct
// lifecycle stage.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/breakoutbot/internal/config"
	"github.com/alanyoungcy/breakoutbot/internal/domain"
	"github.com/alanyoungcy/breakoutbot/internal/notify"
)

// Manager drives the position state machine FLAT → OPEN → PARTIAL → FLAT.
// All mutating methods are called from the single engine loop goroutine, so
// no internal locking is needed.
type Manager struct {
	cfg      config.Position
	symbol   string
	exec     domain.OrderExecutor
	store    domain.StateStore
	journal  domain.TradeStore // optional, nil disables the trade journal
	notifier *notify.Notifier
	logger   *slog.Logger

	pos domain.Position
}

// NewManager creates a Manager. journal may be nil when no database is
// configured.
func NewManager(
	cfg config.Position,
	symbol string,
	exec domain.OrderExecutor,
	store domain.StateStore,
	journal domain.TradeStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		cfg:      cfg,
		symbol:   symbol,
		exec:     exec,
		store:    store,
		journal:  journal,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "position")),
	}
}

// Restore loads the persisted position record. Absence of a stored record is
// equivalent to FLAT.
func (m *Manager) Restore(ctx context.Context) error {
	pos, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("position: restore state: %w", err)
	}
	m.pos = pos
	if pos.Active {
		m.logger.Info("resumed open position",
			slog.String("side", string(pos.Side)),
			slog.String("state", string(pos.State())),
			slog.Float64("entry", pos.EntryPrice),
			slog.Float64("qty_remaining", pos.QtyRemaining),
		)
	}
	return nil
}

// HasOpenPosition reports whether a lifecycle is active.
func (m *Manager) HasOpenPosition() bool {
	return m.pos.Active
}

// Position returns a copy of the current position record.
func (m *Manager) Position() domain.Position {
	return m.pos
}

// Open transitions FLAT → OPEN for an accepted signal. It fails with
// domain.ErrPositionOpen if a lifecycle is already active.
func (m *Manager) Open(ctx context.Context, sig domain.Signal, qty float64, orderID string) error {
	if m.pos.Active {
		return fmt.Errorf("position: open: %w", domain.ErrPositionOpen)
	}

	m.pos = domain.Position{
		Active:       true,
		Side:         sig.Side,
		EntryPrice:   sig.Entry,
		QtyTotal:     qty,
		QtyRemaining: qty,
		StopLoss:     sig.StopLoss,
		TakeProfit1:  sig.TakeProfit1,
		TakeProfit2:  sig.TakeProfit2,
		OrderID:      orderID,
	}
	if err := m.store.Save(ctx, m.pos); err != nil {
		return fmt.Errorf("position: persist open: %w", err)
	}

	m.logger.Info("position opened",
		slog.String("side", string(sig.Side)),
		slog.Float64("entry", sig.Entry),
		slog.Float64("qty", qty),
		slog.Float64("stop_loss", sig.StopLoss),
		slog.Float64("tp1", sig.TakeProfit1),
		slog.Float64("tp2", sig.TakeProfit2),
	)
	return nil
}

// Monitor evaluates the open position against the current price. Checks run
// in strict priority order, each short-circuiting the rest: stop-loss, TP2
// (only after TP1), TP1 partial close, trailing-stop update. A no-op when
// FLAT.
func (m *Manager) Monitor(ctx context.Context, price float64) error {
	if !m.pos.Active {
		return nil
	}

	m.logger.Debug("monitoring position",
		slog.String("side", string(m.pos.Side)),
		slog.Float64("price", price),
		slog.Float64("stop_loss", m.pos.StopLoss),
		slog.Float64("tp1", m.pos.TakeProfit1),
		slog.Float64("tp2", m.pos.TakeProfit2),
	)

	if m.stopTriggered(price) {
		return m.closeAll(ctx, price, domain.OutcomeStopLoss)
	}

	if m.pos.TP1Hit && m.tp2Triggered(price) {
		return m.closeAll(ctx, price, domain.OutcomeTP2)
	}

	if !m.pos.TP1Hit && m.tp1Triggered(price) {
		return m.partialClose(ctx, price)
	}

	if m.pos.TP1Hit && m.pos.TrailingActive {
		return m.updateTrailing(ctx, price)
	}

	return nil
}

func (m *Manager) stopTriggered(price float64) bool {
	if m.pos.Side == domain.SideLong {
		return price <= m.pos.StopLoss
	}
	return price >= m.pos.StopLoss
}

func (m *Manager) tp2Triggered(price float64) bool {
	if m.pos.Side == domain.SideLong {
		return price >= m.pos.TakeProfit2
	}
	return price <= m.pos.TakeProfit2
}

func (m *Manager) tp1Triggered(price float64) bool {
	if m.pos.Side == domain.SideLong {
		return price >= m.pos.TakeProfit1
	}
	return price <= m.pos.TakeProfit1
}

// closeAll closes 100% of the remaining quantity at market and resets to
// FLAT. A failed close order is logged but the local state is still cleared:
// not double-closing is preferred over guaranteeing the remote order
// succeeded.
func (m *Manager) closeAll(ctx context.Context, price float64, outcome domain.TradeOutcome) error {
	qty := m.pos.QtyRemaining
	side := m.pos.Side

	if _, err := m.exec.PlaceMarketOrder(ctx, side.Opposite(), qty, domain.OrderOpts{ReduceOnly: true}); err != nil {
		m.logger.Error("close order failed, clearing state anyway",
			slog.String("outcome", string(outcome)),
			slog.String("error", err.Error()),
		)
	}

	// The protective stop-market order is still resting on the exchange
	// after a local close.
	if err := m.exec.CancelAllOrders(ctx); err != nil {
		m.logger.Error("cancel resting orders failed",
			slog.String("error", err.Error()),
		)
	}

	m.recordClose(ctx, outcome, price, qty)

	title := "Stop loss"
	if outcome == domain.OutcomeTP2 {
		title = "TP2 reached"
	}
	m.notify(ctx, string(outcome), title,
		fmt.Sprintf("%s closed %.6f @ %.2f", side, qty, price))

	m.pos = domain.Position{}
	if err := m.store.Save(ctx, m.pos); err != nil {
		return fmt.Errorf("position: persist close: %w", err)
	}

	m.logger.Info("position closed",
		slog.String("outcome", string(outcome)),
		slog.Float64("price", price),
		slog.Float64("qty", qty),
	)
	return nil
}

// partialClose executes the TP1 transition OPEN → PARTIAL: closes the
// configured share of the total quantity, relocates the stop to breakeven,
// and activates the trailing stop when price has already overshot TP1 by
// more than the activation threshold.
func (m *Manager) partialClose(ctx context.Context, price float64) error {
	qtyClose := m.pos.QtyTotal * m.cfg.TP1ClosePct
	side := m.pos.Side

	if _, err := m.exec.PlaceMarketOrder(ctx, side.Opposite(), qtyClose, domain.OrderOpts{ReduceOnly: true}); err != nil {
		// Leave the state untouched so the next cycle retries the partial
		// close.
		return fmt.Errorf("position: tp1 close order: %w", err)
	}

	m.pos.TP1Hit = true
	m.pos.QtyRemaining = m.pos.QtyTotal - qtyClose
	m.pos.StopLoss = m.pos.EntryPrice
	m.pos.BreakevenActive = true

	if m.trailingActivated(price) {
		peak := price
		m.pos.TrailingActive = true
		m.pos.TrailingPeak = &peak
		m.logger.Info("trailing stop activated", slog.Float64("peak", price))
	}

	if err := m.store.Save(ctx, m.pos); err != nil {
		return fmt.Errorf("position: persist tp1: %w", err)
	}

	m.recordClose(ctx, domain.OutcomeTP1, price, qtyClose)
	m.notify(ctx, string(domain.OutcomeTP1), "TP1 reached",
		fmt.Sprintf("%s closed %.6f @ %.2f, stop moved to breakeven %.2f",
			side, qtyClose, price, m.pos.StopLoss))

	m.logger.Info("tp1 partial close",
		slog.Float64("price", price),
		slog.Float64("qty_closed", qtyClose),
		slog.Float64("qty_remaining", m.pos.QtyRemaining),
		slog.Float64("breakeven", m.pos.StopLoss),
	)
	return nil
}

func (m *Manager) trailingActivated(price float64) bool {
	tp1 := m.pos.TakeProfit1
	if m.pos.Side == domain.SideLong {
		return price >= tp1*(1+m.cfg.TrailingActivationPct)
	}
	return price <= tp1*(1-m.cfg.TrailingActivationPct)
}

// updateTrailing ratchets the trailing stop. The peak only moves on a
// favorable extension and the recomputed stop is applied only when strictly
// more favorable than the current one, so the stop never moves against the
// position.
func (m *Manager) updateTrailing(ctx context.Context, price float64) error {
	peak := m.pos.EntryPrice
	if m.pos.TrailingPeak != nil {
		peak = *m.pos.TrailingPeak
	}

	var newStop float64
	if m.pos.Side == domain.SideLong {
		if price <= peak {
			return nil
		}
		newStop = price * (1 - m.cfg.TrailingOffsetPct)
		if newStop <= m.pos.StopLoss {
			m.pos.TrailingPeak = &price
			return nil
		}
	} else {
		if price >= peak {
			return nil
		}
		newStop = price * (1 + m.cfg.TrailingOffsetPct)
		if newStop >= m.pos.StopLoss {
			m.pos.TrailingPeak = &price
			return nil
		}
	}

	m.pos.TrailingPeak = &price
	m.pos.StopLoss = newStop
	if err := m.store.Save(ctx, m.pos); err != nil {
		return fmt.Errorf("position: persist trailing: %w", err)
	}

	m.logger.Info("trailing stop moved",
		slog.Float64("peak", price),
		slog.Float64("stop_loss", newStop),
	)
	return nil
}

// recordClose writes a journal row for a partial or full close. Journal
// failures are logged and never affect the state machine.
func (m *Manager) recordClose(ctx context.Context, outcome domain.TradeOutcome, exit, qty float64) {
	if m.journal == nil {
		return
	}
	rec := domain.TradeRecord{
		ID:          uuid.NewString(),
		Symbol:      m.symbol,
		Side:        m.pos.Side,
		Outcome:     outcome,
		EntryPrice:  m.pos.EntryPrice,
		ExitPrice:   exit,
		Qty:         qty,
		RealizedPnL: domain.PnL(m.pos.Side, m.pos.EntryPrice, exit, qty),
		ClosedAt:    time.Now().UTC(),
	}
	if err := m.journal.Insert(ctx, rec); err != nil {
		m.logger.Error("journal insert failed",
			slog.String("outcome", string(outcome)),
			slog.String("error", err.Error()),
		)
	}
}

// notify delivers a best-effort operator notification; failures are already
// logged inside the notifier and never propagate into the state machine.
func (m *Manager) notify(ctx context.Context, event, title, message string) {
	if m.notifier == nil {
		return
	}
	_ = m.notifier.Notify(ctx, event, title, message)
}
