package position

import (
	"context"
	"errors"
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

type placedOrder struct {
	kind string
	side domain.Side
	qty  float64
	opts domain.OrderOpts
}

// fakeExec records orders and optionally fails every placement.
type fakeExec struct {
	placed []placedOrder
	err    error
}

func (f *fakeExec) PlaceLimitOrder(_ context.Context, side domain.Side, qty, price float64, opts domain.OrderOpts) (domain.Order, error) {
	if f.err != nil {
		return domain.Order{}, f.err
	}
	f.placed = append(f.placed, placedOrder{"limit", side, qty, opts})
	return domain.Order{ID: "1", Side: side, Qty: qty, Price: price, Status: domain.OrderStatusNew}, nil
}

func (f *fakeExec) PlaceStopMarketOrder(_ context.Context, side domain.Side, qty, stopPrice float64) (domain.Order, error) {
	if f.err != nil {
		return domain.Order{}, f.err
	}
	f.placed = append(f.placed, placedOrder{"stop_market", side, qty, domain.OrderOpts{ReduceOnly: true}})
	return domain.Order{ID: "2", Side: side, Qty: qty, StopPrice: stopPrice, Status: domain.OrderStatusNew}, nil
}

func (f *fakeExec) PlaceMarketOrder(_ context.Context, side domain.Side, qty float64, opts domain.OrderOpts) (domain.Order, error) {
	if f.err != nil {
		return domain.Order{}, f.err
	}
	f.placed = append(f.placed, placedOrder{"market", side, qty, opts})
	return domain.Order{ID: "3", Side: side, Qty: qty, Status: domain.OrderStatusFilled}, nil
}

func (f *fakeExec) CancelAllOrders(context.Context) error { return nil }

// fakeStateStore keeps the position in memory and records every save.
type fakeStateStore struct {
	pos   domain.Position
	saves []domain.Position
}

func (f *fakeStateStore) Load(context.Context) (domain.Position, error) { return f.pos, nil }

func (f *fakeStateStore) Save(_ context.Context, pos domain.Position) error {
	f.pos = pos
	f.saves = append(f.saves, pos)
	return nil
}

// fakeJournal records inserted trade rows.
type fakeJournal struct {
	inserted []domain.TradeRecord
}

func (f *fakeJournal) Insert(_ context.Context, rec domain.TradeRecord) error {
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *fakeJournal) ListRecent(context.Context, int) ([]domain.TradeRecord, error) {
	return nil, nil
}

func (f *fakeJournal) ListBefore(context.Context, time.Time) ([]domain.TradeRecord, error) {
	return nil, nil
}

func (f *fakeJournal) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (f *fakeJournal) Summary(context.Context) (domain.TradeSummary, error) {
	return domain.TradeSummary{}, nil
}

func newTestManager(exec *fakeExec, store *fakeStateStore, journal *fakeJournal) *Manager {
	var j domain.TradeStore
	if journal != nil {
		j = journal
	}
	return NewManager(config.Defaults().Position, "BTCUSDT", exec, store, j, nil, testLogger())
}

func longSignal() domain.Signal {
	return domain.Signal{
		Side:        domain.SideLong,
		Entry:       65000,
		StopLoss:    64360,
		TakeProfit1: 65800,
		TakeProfit2: 66200,
	}
}

func TestOpenPersistsAndRejectsDouble(t *testing.T) {
	store := &fakeStateStore{}
	m := newTestManager(&fakeExec{}, store, nil)

	require.NoError(t, m.Open(context.Background(), longSignal(), 0.02, "order-1"))
	assert.True(t, m.HasOpenPosition())
	assert.Equal(t, domain.PositionOpen, m.Position().State())
	require.Len(t, store.saves, 1)
	assert.Equal(t, 0.02, store.saves[0].QtyTotal)
	assert.Equal(t, 0.02, store.saves[0].QtyRemaining)
	assert.Equal(t, "order-1", store.saves[0].OrderID)

	err := m.Open(context.Background(), longSignal(), 0.02, "order-2")
	assert.ErrorIs(t, err, domain.ErrPositionOpen)
}

func TestMonitorNoTriggerLeavesStateUnchanged(t *testing.T) {
	exec := &fakeExec{}
	store := &fakeStateStore{}
	m := newTestManager(exec, store, nil)
	require.NoError(t, m.Open(context.Background(), longSignal(), 0.02, "o"))

	before := m.Position()
	savesBefore := len(store.saves)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Monitor(context.Background(), 65100))
	}

	assert.Equal(t, before, m.Position())
	assert.Len(t, store.saves, savesBefore)
	assert.Empty(t, exec.placed)
}

func TestMonitorStopLossClosesAll(t *testing.T) {
	exec := &fakeExec{}
	store := &fakeStateStore{}
	journal := &fakeJournal{}
	m := newTestManager(exec, store, journal)
	require.NoError(t, m.Open(context.Background(), longSignal(), 0.02, "o"))

	require.NoError(t, m.Monitor(context.Background(), 64360))

	require.Len(t, exec.placed, 1)
	assert.Equal(t, "market", exec.placed[0].kind)
	assert.Equal(t, domain.SideShort, exec.placed[0].side)
	assert.Equal(t, 0.02, exec.placed[0].qty)
	assert.True(t, exec.placed[0].opts.ReduceOnly)

	assert.False(t, m.HasOpenPosition())
	assert.False(t, store.pos.Active, "flat state must be persisted")

	require.Len(t, journal.inserted, 1)
	rec := journal.inserted[0]
	assert.Equal(t, domain.OutcomeStopLoss, rec.Outcome)
	assert.InDelta(t, (64360.0-65000.0)*0.02, rec.RealizedPnL, 1e-9)
}

func TestStopLossOrderFailureStillClearsState(t *testing.T) {
	exec := &fakeExec{err: errors.New("exchange down")}
	store := &fakeStateStore{}
	m := newTestManager(exec, store, nil)
	require.NoError(t, m.Open(context.Background(), longSignal(), 0.02, "o"))

	require.NoError(t, m.Monitor(context.Background(), 64000))
	assert.False(t, m.HasOpenPosition(), "state clears even when the close order fails")
}

func TestTP1PartialClose(t *testing.T) {
	exec := &fakeExec{}
	store := &fakeStateStore{}
	journal := &fakeJournal{}
	m := newTestManager(exec, store, journal)
	require.NoError(t, m.Open(context.Background(), longSignal(), 0.02, "o"))

	require.NoError(t, m.Monitor(context.Background(), 65800))

	require.Len(t, exec.placed, 1)
	assert.Equal(t, "market", exec.placed[0].kind)
	assert.InDelta(t, 0.01, exec.placed[0].qty, 1e-12)
	assert.True(t, exec.placed[0].opts.ReduceOnly)

	pos := m.Position()
	assert.Equal(t, domain.PositionPartial, pos.State())
	assert.True(t, pos.TP1Hit)
	assert.True(t, pos.BreakevenActive)
	assert.InDelta(t, 0.01, pos.QtyRemaining, 1e-12)
	assert.Equal(t, 65000.0, pos.StopLoss, "stop relocates to entry")
	assert.False(t, pos.TrailingActive, "price exactly at TP1 is below the activation threshold")

	require.Len(t, journal.inserted, 1)
	assert.Equal(t, domain.OutcomeTP1, journal.inserted[0].Outcome)
}

func TestTP1OrderFailureLeavesStateForRetry(t *testing.T) {
	exec := &fakeExec{err: errors.New("rejected")}
	store := &fakeStateStore{}
	m := newTestManager(&fakeExec{}, store, nil)
	require.NoError(t, m.Open(context.Background(), longSignal(), 0.02, "o"))

	// Swap in the failing executor after the open.
	m.exec = exec

	err := m.Monitor(context.Background(), 65800)
	require.Error(t, err)

	pos := m.Position()
	assert.False(t, pos.TP1Hit, "failed partial close must not advance the state machine")
	assert.Equal(t, 0.02, pos.QtyRemaining)
	assert.Equal(t, 64360.0, pos.StopLoss)
}

func TestTrailingActivationOnOvershoot(t *testing.T) {
	exec := &fakeExec{}
	store := &fakeStateStore{}
	m := newTestManager(exec, store, nil)
	require.NoError(t, m.Open(context.Background(), longSignal(), 0.02, "o"))

	// 66200 > 65800 * 1.005, so trailing activates together with TP1.
	// (66200 also touches TP2, but TP2 only resolves after TP1 is hit.)
	require.NoError(t, m.Monitor(context.Background(), 66200))

	pos := m.Position()
	require.True(t, pos.TP1Hit)
	assert.True(t, pos.TrailingActive)
	require.NotNil(t, pos.TrailingPeak)
	assert.Equal(t, 66200.0, *pos.TrailingPeak)
}

func restorePartial(t *testing.T, store *fakeStateStore, m *Manager, peak float64) {
	t.Helper()
	store.pos = domain.Position{
		Active:          true,
		Side:            domain.SideLong,
		EntryPrice:      65000,
		QtyTotal:        0.02,
		QtyRemaining:    0.01,
		StopLoss:        65000,
		TakeProfit1:     65800,
		TakeProfit2:     66200,
		TP1Hit:          true,
		BreakevenActive: true,
		TrailingActive:  true,
		TrailingPeak:    &peak,
	}
	require.NoError(t, m.Restore(context.Background()))
}

func TestTrailingStopRatchet(t *testing.T) {
	exec := &fakeExec{}
	store := &fakeStateStore{}
	m := newTestManager(exec, store, nil)
	restorePartial(t, store, m, 65900)

	// Favorable extension moves the stop up behind the price.
	require.NoError(t, m.Monitor(context.Background(), 66000))
	stop1 := m.Position().StopLoss
	assert.InDelta(t, 66000*(1-0.004), stop1, 1e-9)

	// Price below the peak never moves the stop.
	require.NoError(t, m.Monitor(context.Background(), 65950))
	assert.Equal(t, stop1, m.Position().StopLoss)

	// A further extension ratchets again, never downward.
	require.NoError(t, m.Monitor(context.Background(), 66100))
	stop2 := m.Position().StopLoss
	assert.InDelta(t, 66100*(1-0.004), stop2, 1e-9)
	assert.Greater(t, stop2, stop1)

	assert.Empty(t, exec.placed, "trailing updates must not place orders")
}

func TestTP2ClosesRemainingAfterTP1(t *testing.T) {
	exec := &fakeExec{}
	store := &fakeStateStore{}
	journal := &fakeJournal{}
	m := newTestManager(exec, store, journal)
	restorePartial(t, store, m, 65900)

	require.NoError(t, m.Monitor(context.Background(), 66200))

	require.Len(t, exec.placed, 1)
	assert.InDelta(t, 0.01, exec.placed[0].qty, 1e-12)
	assert.False(t, m.HasOpenPosition())

	require.Len(t, journal.inserted, 1)
	assert.Equal(t, domain.OutcomeTP2, journal.inserted[0].Outcome)
}

func TestRestoreResumesOpenPosition(t *testing.T) {
	store := &fakeStateStore{pos: domain.Position{
		Active:       true,
		Side:         domain.SideShort,
		EntryPrice:   66850,
		QtyTotal:     0.03,
		QtyRemaining: 0.03,
		StopLoss:     67450,
	}}
	m := newTestManager(&fakeExec{}, store, nil)

	require.NoError(t, m.Restore(context.Background()))
	assert.True(t, m.HasOpenPosition())
	assert.Equal(t, domain.SideShort, m.Position().Side)
}

// Mirrors a full long lifecycle: open at 65000, partial close at TP1 65800
// with breakeven relocation, final close at TP2 66200.
func TestEndToEndLongLifecycle(t *testing.T) {
	exec := &fakeExec{}
	store := &fakeStateStore{}
	journal := &fakeJournal{}
	m := newTestManager(exec, store, journal)

	qty := 0.03076923 // notional 2000 at entry 65000
	require.NoError(t, m.Open(context.Background(), longSignal(), qty, "o"))
	assert.Equal(t, domain.PositionOpen, m.Position().State())

	require.NoError(t, m.Monitor(context.Background(), 65100))
	assert.Equal(t, domain.PositionOpen, m.Position().State())

	require.NoError(t, m.Monitor(context.Background(), 65800))
	pos := m.Position()
	assert.Equal(t, domain.PositionPartial, pos.State())
	assert.InDelta(t, qty/2, pos.QtyRemaining, 1e-9)
	assert.Equal(t, 65000.0, pos.StopLoss)

	require.NoError(t, m.Monitor(context.Background(), 66200))
	assert.Equal(t, domain.PositionFlat, m.Position().State())

	require.Len(t, journal.inserted, 2)
	assert.Equal(t, domain.OutcomeTP1, journal.inserted[0].Outcome)
	assert.Equal(t, domain.OutcomeTP2, journal.inserted[1].Outcome)

	total := journal.inserted[0].RealizedPnL + journal.inserted[1].RealizedPnL
	want := (65800.0-65000.0)*(qty/2) + (66200.0-65000.0)*(qty/2)
	assert.InDelta(t, want, total, 1e-6)
}
