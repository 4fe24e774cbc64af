package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// CopierStore implements domain.CopierStore using PostgreSQL.
type CopierStore struct {
	pool *pgxpool.Pool
}

// NewCopierStore creates a new CopierStore backed by the given connection pool.
func NewCopierStore(pool *pgxpool.Pool) *CopierStore {
	return &CopierStore{pool: pool}
}

const copierSelectCols = `id, user_id, organization_id, name, master_account_id,
	status, latency_tolerance_ms, copy_entries, copy_exits, copy_modifications,
	created_at, updated_at`

func scanCopier(row pgx.Row) (domain.Copier, error) {
	var c domain.Copier
	err := row.Scan(
		&c.ID, &c.UserID, &c.OrganizationID, &c.Name, &c.MasterAccountID,
		&c.Status, &c.LatencyToleranceMs,
		&c.CopyEntries, &c.CopyExits, &c.CopyModifications,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func scanCopierRows(rows pgx.Rows) ([]domain.Copier, error) {
	var copiers []domain.Copier
	for rows.Next() {
		c, err := scanCopier(rows)
		if err != nil {
			return nil, err
		}
		copiers = append(copiers, c)
	}
	return copiers, rows.Err()
}

// Create inserts a copier.
func (s *CopierStore) Create(ctx context.Context, c domain.Copier) error {
	const query = `
		INSERT INTO copiers (
			id, user_id, organization_id, name, master_account_id,
			status, latency_tolerance_ms,
			copy_entries, copy_exits, copy_modifications
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		c.ID, c.UserID, c.OrganizationID, c.Name, c.MasterAccountID,
		c.Status, c.LatencyToleranceMs,
		c.CopyEntries, c.CopyExits, c.CopyModifications,
	)
	if err != nil {
		return fmt.Errorf("postgres: create copier: %w", err)
	}
	return nil
}

// GetByID returns the copier or domain.ErrNotFound.
func (s *CopierStore) GetByID(ctx context.Context, id string) (domain.Copier, error) {
	query := `SELECT ` + copierSelectCols + ` FROM copiers WHERE id = $1`
	c, err := scanCopier(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Copier{}, fmt.Errorf("postgres: copier %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Copier{}, fmt.Errorf("postgres: get copier: %w", err)
	}
	return c, nil
}

// GetOwned returns the copier only when it belongs to userID.
func (s *CopierStore) GetOwned(ctx context.Context, id, userID string) (domain.Copier, error) {
	query := `SELECT ` + copierSelectCols + ` FROM copiers WHERE id = $1 AND user_id = $2`
	c, err := scanCopier(s.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Copier{}, fmt.Errorf("postgres: copier %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Copier{}, fmt.Errorf("postgres: get owned copier: %w", err)
	}
	return c, nil
}

// ListByUser returns the user's copiers ordered by creation time.
func (s *CopierStore) ListByUser(ctx context.Context, userID string) ([]domain.Copier, error) {
	query := `SELECT ` + copierSelectCols + ` FROM copiers WHERE user_id = $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list copiers: %w", err)
	}
	defer rows.Close()

	copiers, err := scanCopierRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan copiers: %w", err)
	}
	return copiers, nil
}

// ListByStatus returns all copiers in the given state (startup recovery).
func (s *CopierStore) ListByStatus(ctx context.Context, status domain.CopierStatus) ([]domain.Copier, error) {
	query := `SELECT ` + copierSelectCols + ` FROM copiers WHERE status = $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("postgres: list copiers by status: %w", err)
	}
	defer rows.Close()

	copiers, err := scanCopierRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan copiers by status: %w", err)
	}
	return copiers, nil
}

// ListByMasterAccount returns copiers fed by the account.
func (s *CopierStore) ListByMasterAccount(ctx context.Context, accountID string) ([]domain.Copier, error) {
	query := `SELECT ` + copierSelectCols + ` FROM copiers WHERE master_account_id = $1`
	rows, err := s.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list copiers by master: %w", err)
	}
	defer rows.Close()

	copiers, err := scanCopierRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan copiers by master: %w", err)
	}
	return copiers, nil
}

// Update rewrites the mutable fields of the copier.
func (s *CopierStore) Update(ctx context.Context, c domain.Copier) error {
	const query = `
		UPDATE copiers SET
			name = $2, latency_tolerance_ms = $3,
			copy_entries = $4, copy_exits = $5, copy_modifications = $6,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		c.ID, c.Name, c.LatencyToleranceMs,
		c.CopyEntries, c.CopyExits, c.CopyModifications,
	)
	if err != nil {
		return fmt.Errorf("postgres: update copier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: copier %s: %w", c.ID, domain.ErrNotFound)
	}
	return nil
}

// UpdateStatus persists a lifecycle transition.
func (s *CopierStore) UpdateStatus(ctx context.Context, id string, status domain.CopierStatus) error {
	const query = `UPDATE copiers SET status = $2, updated_at = NOW() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("postgres: update copier status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: copier %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Delete removes the copier; follower bindings, mappings, and logs cascade.
func (s *CopierStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM copiers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete copier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: copier %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
