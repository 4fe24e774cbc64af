package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, account_id, copier_id, symbol, side, type, quantity,
	entry_price, exit_price, stop_loss, take_profit,
	status, realized_pnl, external_order_id, external_trade_id,
	opened_at, closed_at, filled_at, created_at, updated_at`

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var t domain.Trade
	err := row.Scan(
		&t.ID, &t.AccountID, &t.CopierID, &t.Symbol, &t.Side, &t.Type, &t.Quantity,
		&t.EntryPrice, &t.ExitPrice, &t.StopLoss, &t.TakeProfit,
		&t.Status, &t.RealizedPnL, &t.ExternalOrderID, &t.ExternalTradeID,
		&t.OpenedAt, &t.ClosedAt, &t.FilledAt, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert records one execution. Returns domain.ErrAlreadyExists when the
// broker replayed a trade id the account already recorded.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, account_id, copier_id, symbol, side, type, quantity,
			entry_price, exit_price, stop_loss, take_profit,
			status, realized_pnl, external_order_id, external_trade_id,
			opened_at, closed_at, filled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18
		)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.AccountID, t.CopierID, t.Symbol, t.Side, t.Type, t.Quantity,
		t.EntryPrice, t.ExitPrice, t.StopLoss, t.TakeProfit,
		t.Status, t.RealizedPnL, t.ExternalOrderID, t.ExternalTradeID,
		t.OpenedAt, t.ClosedAt, t.FilledAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: trade %s on account %s: %w",
			t.ExternalTradeID, t.AccountID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("postgres: insert trade: %w", err)
	}
	return nil
}

// GetByID returns the trade or domain.ErrNotFound.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE id = $1`
	t, err := scanTrade(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Trade{}, fmt.Errorf("postgres: trade %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: get trade: %w", err)
	}
	return t, nil
}

func (s *TradeStore) list(ctx context.Context, where string, firstArg any, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE ` + where
	args := []any{firstArg}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// ListByAccount returns the account's trades, newest first.
func (s *TradeStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.list(ctx, "account_id = $1", accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by account: %w", err)
	}
	return trades, nil
}

// ListByCopier returns trades produced or observed by the copier, newest first.
func (s *TradeStore) ListByCopier(ctx context.Context, copierID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.list(ctx, "copier_id = $1", copierID, opts)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by copier: %w", err)
	}
	return trades, nil
}

// ListByUser returns trades across every account the user owns, newest first.
func (s *TradeStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.list(ctx,
		"account_id IN (SELECT id FROM trading_accounts WHERE user_id = $1)", userID, opts)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by user: %w", err)
	}
	return trades, nil
}

// SumRealizedPnL sums realised P&L of filled trades on the account since the
// given time. Returns zero when no trades match.
func (s *TradeStore) SumRealizedPnL(ctx context.Context, accountID string, since time.Time) (float64, error) {
	const query = `
		SELECT COALESCE(SUM(realized_pnl), 0) FROM trades
		WHERE account_id = $1 AND status = 'FILLED'
		  AND realized_pnl IS NOT NULL AND created_at >= $2`

	var sum float64
	if err := s.pool.QueryRow(ctx, query, accountID, since).Scan(&sum); err != nil {
		return 0, fmt.Errorf("postgres: sum realized pnl: %w", err)
	}
	return sum, nil
}

// ListBefore returns trades created strictly before the given time (for archiving).
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE created_at < $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore deletes trades created before the given time. Returns the number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}
