package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, symbol, side, outcome, entry_price, exit_price, qty, realized_pnl, closed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		if err := rows.Scan(
			&t.ID, &t.Symbol, &t.Side, &t.Outcome,
			&t.EntryPrice, &t.ExitPrice, &t.Qty, &t.RealizedPnL, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert writes one journal row.
func (s *TradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (id, symbol, side, outcome, entry_price, exit_price, qty, realized_pnl, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Symbol, rec.Side, rec.Outcome,
		rec.EntryPrice, rec.ExitPrice, rec.Qty, rec.RealizedPnL, rec.ClosedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert trade: %w", err)
	}
	return nil
}

// ListRecent returns the newest journal rows, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + tradeSelectCols + ` FROM trades ORDER BY closed_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns all trades closed strictly before the given time, in
// chronological order (for archiving).
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE closed_at < $1 ORDER BY closed_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before: %w", err)
	}
	return trades, nil
}

// DeleteBefore deletes all trades closed before the given time and returns
// the number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Summary aggregates the whole journal.
func (s *TradeStore) Summary(ctx context.Context) (domain.TradeSummary, error) {
	const query = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE realized_pnl > 0),
		       COUNT(*) FILTER (WHERE realized_pnl <= 0),
		       COALESCE(SUM(realized_pnl), 0)
		FROM trades`

	var sum domain.TradeSummary
	if err := s.pool.QueryRow(ctx, query).Scan(
		&sum.Trades, &sum.Wins, &sum.Losses, &sum.TotalPnL,
	); err != nil {
		return domain.TradeSummary{}, fmt.Errorf("postgres: trade summary: %w", err)
	}
	return sum, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
