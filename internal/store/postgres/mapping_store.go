package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// MappingStore implements domain.MappingStore using PostgreSQL.
type MappingStore struct {
	pool *pgxpool.Pool
}

// NewMappingStore creates a new MappingStore backed by the given connection pool.
func NewMappingStore(pool *pgxpool.Pool) *MappingStore {
	return &MappingStore{pool: pool}
}

const mappingSelectCols = `id, copier_id, master_trade_id, slave_trade_id,
	slave_account_id, status, error_message, synced_at, created_at`

func scanMapping(row pgx.Row) (domain.TradeMapping, error) {
	var m domain.TradeMapping
	var slaveTradeID *string
	err := row.Scan(
		&m.ID, &m.CopierID, &m.MasterTradeID, &slaveTradeID,
		&m.SlaveAccountID, &m.Status, &m.ErrorMessage, &m.SyncedAt, &m.CreatedAt,
	)
	if slaveTradeID != nil {
		m.SlaveTradeID = *slaveTradeID
	}
	return m, err
}

// Insert records one replication outcome. Returns domain.ErrAlreadyExists on
// a duplicate (master trade, slave account) pair; callers rely on this as the
// idempotency signal under concurrent delivery.
func (s *MappingStore) Insert(ctx context.Context, m domain.TradeMapping) error {
	const query = `
		INSERT INTO trade_mappings (
			id, copier_id, master_trade_id, slave_trade_id,
			slave_account_id, status, error_message, synced_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.CopierID, m.MasterTradeID, m.SlaveTradeID,
		m.SlaveAccountID, m.Status, m.ErrorMessage, m.SyncedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: mapping for master %s slave %s: %w",
			m.MasterTradeID, m.SlaveAccountID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("postgres: insert mapping: %w", err)
	}
	return nil
}

// ListByCopier returns the copier's mappings, newest first.
func (s *MappingStore) ListByCopier(ctx context.Context, copierID string, opts domain.ListOpts) ([]domain.TradeMapping, error) {
	query := `SELECT ` + mappingSelectCols + ` FROM trade_mappings WHERE copier_id = $1`
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
		return nil, fmt.Errorf("postgres: list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []domain.TradeMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// GetByMasterAndSlave returns the mapping for the pair or domain.ErrNotFound.
func (s *MappingStore) GetByMasterAndSlave(ctx context.Context, masterTradeID, slaveAccountID string) (domain.TradeMapping, error) {
	query := `SELECT ` + mappingSelectCols + ` FROM trade_mappings
		WHERE master_trade_id = $1 AND slave_account_id = $2`
	m, err := scanMapping(s.pool.QueryRow(ctx, query, masterTradeID, slaveAccountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TradeMapping{}, fmt.Errorf("postgres: mapping: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.TradeMapping{}, fmt.Errorf("postgres: get mapping: %w", err)
	}
	return m, nil
}
