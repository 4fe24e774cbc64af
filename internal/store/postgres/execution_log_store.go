package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// ExecutionLogStore implements domain.ExecutionLogStore using PostgreSQL.
type ExecutionLogStore struct {
	pool *pgxpool.Pool
}

// NewExecutionLogStore creates a new ExecutionLogStore backed by the given
// connection pool.
func NewExecutionLogStore(pool *pgxpool.Pool) *ExecutionLogStore {
	return &ExecutionLogStore{pool: pool}
}

const executionLogSelectCols = `id, copier_id, level, message,
	master_trade_id, slave_trade_id, slave_account_id, details, created_at`

func scanExecutionLogRows(rows pgx.Rows) ([]domain.ExecutionLog, error) {
	var logs []domain.ExecutionLog
	for rows.Next() {
		var e domain.ExecutionLog
		if err := rows.Scan(
			&e.ID, &e.CopierID, &e.Level, &e.Message,
			&e.MasterTradeID, &e.SlaveTradeID, &e.SlaveAccountID,
			&e.Details, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// Append writes one audit entry. Entries are never updated.
func (s *ExecutionLogStore) Append(ctx context.Context, e domain.ExecutionLog) error {
	const query = `
		INSERT INTO execution_logs (
			copier_id, level, message,
			master_trade_id, slave_trade_id, slave_account_id, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	_, err := s.pool.Exec(ctx, query,
		e.CopierID, e.Level, e.Message,
		e.MasterTradeID, e.SlaveTradeID, e.SlaveAccountID, details,
	)
	if err != nil {
		return fmt.Errorf("postgres: append execution log: %w", err)
	}
	return nil
}

// ListByCopier returns the copier's audit entries, newest first.
func (s *ExecutionLogStore) ListByCopier(ctx context.Context, copierID string, opts domain.ListOpts) ([]domain.ExecutionLog, error) {
	query := `SELECT ` + executionLogSelectCols + ` FROM execution_logs WHERE copier_id = $1`
	args := []any{copierID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
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
		return nil, fmt.Errorf("postgres: list execution logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanExecutionLogRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan execution logs: %w", err)
	}
	return logs, nil
}

// ListBefore returns entries created strictly before the given time (for archiving).
func (s *ExecutionLogStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionLog, error) {
	query := `SELECT ` + executionLogSelectCols + ` FROM execution_logs
		WHERE created_at < $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution logs before: %w", err)
	}
	defer rows.Close()
	return scanExecutionLogRows(rows)
}

// DeleteBefore deletes entries created before the given time. Returns the number deleted.
func (s *ExecutionLogStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM execution_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete execution logs before: %w", err)
	}
	return tag.RowsAffected(), nil
}
