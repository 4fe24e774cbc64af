package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// ConfigStore implements domain.ConfigStore using PostgreSQL.
type ConfigStore struct {
	pool *pgxpool.Pool
}

// NewConfigStore creates a new ConfigStore backed by the given connection pool.
func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

const configSelectCols = `id, copier_id, slave_account_id, scaling_type,
	fixed_contracts, percentage_scale, max_contracts, daily_loss_limit,
	auto_disable, is_active, disabled_reason, created_at, updated_at`

func scanConfig(row pgx.Row) (domain.CopierAccountConfig, error) {
	var c domain.CopierAccountConfig
	err := row.Scan(
		&c.ID, &c.CopierID, &c.SlaveAccountID, &c.ScalingType,
		&c.FixedContracts, &c.PercentageScale, &c.MaxContracts, &c.DailyLossLimit,
		&c.AutoDisable, &c.IsActive, &c.DisabledReason,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func scanConfigRows(rows pgx.Rows) ([]domain.CopierAccountConfig, error) {
	var configs []domain.CopierAccountConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// Create inserts a follower binding. Returns domain.ErrAlreadyExists when the
// account is already attached to the copier.
func (s *ConfigStore) Create(ctx context.Context, c domain.CopierAccountConfig) error {
	const query = `
		INSERT INTO copier_account_configs (
			id, copier_id, slave_account_id, scaling_type,
			fixed_contracts, percentage_scale, max_contracts, daily_loss_limit,
			auto_disable, is_active, disabled_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.CopierID, c.SlaveAccountID, c.ScalingType,
		c.FixedContracts, c.PercentageScale, c.MaxContracts, c.DailyLossLimit,
		c.AutoDisable, c.IsActive, c.DisabledReason,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: config for copier %s account %s: %w",
			c.CopierID, c.SlaveAccountID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("postgres: create config: %w", err)
	}
	return nil
}

// Get returns the binding for (copier, slave account) or domain.ErrNotFound.
func (s *ConfigStore) Get(ctx context.Context, copierID, slaveAccountID string) (domain.CopierAccountConfig, error) {
	query := `SELECT ` + configSelectCols + ` FROM copier_account_configs
		WHERE copier_id = $1 AND slave_account_id = $2`
	c, err := scanConfig(s.pool.QueryRow(ctx, query, copierID, slaveAccountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CopierAccountConfig{}, fmt.Errorf("postgres: config: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.CopierAccountConfig{}, fmt.Errorf("postgres: get config: %w", err)
	}
	return c, nil
}

// ListByCopier returns every follower binding of the copier.
func (s *ConfigStore) ListByCopier(ctx context.Context, copierID string) ([]domain.CopierAccountConfig, error) {
	query := `SELECT ` + configSelectCols + ` FROM copier_account_configs
		WHERE copier_id = $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, copierID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list configs: %w", err)
	}
	defer rows.Close()

	configs, err := scanConfigRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan configs: %w", err)
	}
	return configs, nil
}

// ListBySlaveAccount returns bindings where the account follows (deletion guard).
func (s *ConfigStore) ListBySlaveAccount(ctx context.Context, accountID string) ([]domain.CopierAccountConfig, error) {
	query := `SELECT ` + configSelectCols + ` FROM copier_account_configs WHERE slave_account_id = $1`
	rows, err := s.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list configs by slave: %w", err)
	}
	defer rows.Close()

	configs, err := scanConfigRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan configs by slave: %w", err)
	}
	return configs, nil
}

// Update rewrites the binding's scaling and risk fields.
func (s *ConfigStore) Update(ctx context.Context, c domain.CopierAccountConfig) error {
	const query = `
		UPDATE copier_account_configs SET
			scaling_type = $2, fixed_contracts = $3, percentage_scale = $4,
			max_contracts = $5, daily_loss_limit = $6, auto_disable = $7,
			is_active = $8, disabled_reason = $9, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		c.ID, c.ScalingType, c.FixedContracts, c.PercentageScale,
		c.MaxContracts, c.DailyLossLimit, c.AutoDisable,
		c.IsActive, c.DisabledReason,
	)
	if err != nil {
		return fmt.Errorf("postgres: update config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: config %s: %w", c.ID, domain.ErrNotFound)
	}
	return nil
}

// Disable deactivates the binding with the given reason in one statement.
func (s *ConfigStore) Disable(ctx context.Context, id, reason string) error {
	const query = `
		UPDATE copier_account_configs SET
			is_active = FALSE, disabled_reason = $2, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("postgres: disable config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: config %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Delete removes the binding.
func (s *ConfigStore) Delete(ctx context.Context, copierID, slaveAccountID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM copier_account_configs WHERE copier_id = $1 AND slave_account_id = $2`,
		copierID, slaveAccountID)
	if err != nil {
		return fmt.Errorf("postgres: delete config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: config: %w", domain.ErrNotFound)
	}
	return nil
}
