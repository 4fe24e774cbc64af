package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountSelectCols = `id, user_id, firm, platform, account_number, name,
	account_size, current_balance,
	cred_email, cred_password, cred_api_key, cred_api_secret,
	is_connected, last_sync_at, error_message,
	max_drawdown, daily_loss_limit, additional_config,
	created_at, updated_at`

func scanAccount(row pgx.Row) (domain.TradingAccount, error) {
	var a domain.TradingAccount
	err := row.Scan(
		&a.ID, &a.UserID, &a.Firm, &a.Platform, &a.AccountNumber, &a.Name,
		&a.AccountSize, &a.CurrentBalance,
		&a.Credentials.Email, &a.Credentials.Password,
		&a.Credentials.APIKey, &a.Credentials.APISecret,
		&a.IsConnected, &a.LastSyncAt, &a.ErrorMessage,
		&a.MaxDrawdown, &a.DailyLossLimit, &a.AdditionalConfig,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func scanAccountRows(rows pgx.Rows) ([]domain.TradingAccount, error) {
	var accounts []domain.TradingAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// Create inserts an account. Returns domain.ErrAlreadyExists on a duplicate
// (user, firm, account number) triple.
func (s *AccountStore) Create(ctx context.Context, a domain.TradingAccount) error {
	const query = `
		INSERT INTO trading_accounts (
			id, user_id, firm, platform, account_number, name,
			account_size, current_balance,
			cred_email, cred_password, cred_api_key, cred_api_secret,
			max_drawdown, daily_loss_limit, additional_config
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8,
			$9, $10, $11, $12,
			$13, $14, $15
		)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.UserID, a.Firm, a.Platform, a.AccountNumber, a.Name,
		a.AccountSize, a.CurrentBalance,
		a.Credentials.Email, a.Credentials.Password,
		a.Credentials.APIKey, a.Credentials.APISecret,
		a.MaxDrawdown, a.DailyLossLimit, a.AdditionalConfig,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: create account %s: %w", a.AccountNumber, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("postgres: create account: %w", err)
	}
	return nil
}

// Upsert inserts or updates keyed by (user_id, firm, account_number) and
// returns the stored row. Credentials are refreshed on conflict; the caller's
// balance wins so platform syncs can update it in one call.
func (s *AccountStore) Upsert(ctx context.Context, a domain.TradingAccount) (domain.TradingAccount, error) {
	query := `
		INSERT INTO trading_accounts (
			id, user_id, firm, platform, account_number, name,
			account_size, current_balance,
			cred_email, cred_password, cred_api_key, cred_api_secret,
			max_drawdown, daily_loss_limit, additional_config
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8,
			$9, $10, $11, $12,
			$13, $14, $15
		)
		ON CONFLICT (user_id, firm, account_number) DO UPDATE SET
			platform = EXCLUDED.platform,
			name = EXCLUDED.name,
			account_size = EXCLUDED.account_size,
			current_balance = EXCLUDED.current_balance,
			cred_email = EXCLUDED.cred_email,
			cred_password = EXCLUDED.cred_password,
			cred_api_key = EXCLUDED.cred_api_key,
			cred_api_secret = EXCLUDED.cred_api_secret,
			additional_config = EXCLUDED.additional_config,
			updated_at = NOW()
		RETURNING ` + accountSelectCols

	stored, err := scanAccount(s.pool.QueryRow(ctx, query,
		a.ID, a.UserID, a.Firm, a.Platform, a.AccountNumber, a.Name,
		a.AccountSize, a.CurrentBalance,
		a.Credentials.Email, a.Credentials.Password,
		a.Credentials.APIKey, a.Credentials.APISecret,
		a.MaxDrawdown, a.DailyLossLimit, a.AdditionalConfig,
	))
	if err != nil {
		return domain.TradingAccount{}, fmt.Errorf("postgres: upsert account: %w", err)
	}
	return stored, nil
}

// GetByID returns the account or domain.ErrNotFound.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.TradingAccount, error) {
	query := `SELECT ` + accountSelectCols + ` FROM trading_accounts WHERE id = $1`
	a, err := scanAccount(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TradingAccount{}, fmt.Errorf("postgres: account %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TradingAccount{}, fmt.Errorf("postgres: get account: %w", err)
	}
	return a, nil
}

// GetOwned returns the account only when it belongs to userID; a foreign
// account is indistinguishable from a missing one.
func (s *AccountStore) GetOwned(ctx context.Context, id, userID string) (domain.TradingAccount, error) {
	query := `SELECT ` + accountSelectCols + ` FROM trading_accounts WHERE id = $1 AND user_id = $2`
	a, err := scanAccount(s.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TradingAccount{}, fmt.Errorf("postgres: account %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TradingAccount{}, fmt.Errorf("postgres: get owned account: %w", err)
	}
	return a, nil
}

// ListByUser returns the user's accounts ordered by creation time.
func (s *AccountStore) ListByUser(ctx context.Context, userID string) ([]domain.TradingAccount, error) {
	query := `SELECT ` + accountSelectCols + ` FROM trading_accounts WHERE user_id = $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	accounts, err := scanAccountRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan accounts: %w", err)
	}
	return accounts, nil
}

// Update rewrites the mutable fields of the account.
func (s *AccountStore) Update(ctx context.Context, a domain.TradingAccount) error {
	const query = `
		UPDATE trading_accounts SET
			name = $2, account_size = $3, current_balance = $4,
			cred_email = $5, cred_password = $6,
			cred_api_key = $7, cred_api_secret = $8,
			max_drawdown = $9, daily_loss_limit = $10,
			additional_config = $11, updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		a.ID, a.Name, a.AccountSize, a.CurrentBalance,
		a.Credentials.Email, a.Credentials.Password,
		a.Credentials.APIKey, a.Credentials.APISecret,
		a.MaxDrawdown, a.DailyLossLimit, a.AdditionalConfig,
	)
	if err != nil {
		return fmt.Errorf("postgres: update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: account %s: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

// UpdateConnection persists the outcome of a connect or disconnect attempt.
func (s *AccountStore) UpdateConnection(ctx context.Context, id string, connected bool, errMsg string) error {
	if connected {
		errMsg = ""
	}
	const query = `
		UPDATE trading_accounts SET
			is_connected = $2,
			error_message = $3,
			last_sync_at = CASE WHEN $2 THEN NOW() ELSE last_sync_at END,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, connected, errMsg)
	if err != nil {
		return fmt.Errorf("postgres: update account connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdateBalance sets the current balance after a sync.
func (s *AccountStore) UpdateBalance(ctx context.Context, id string, balance float64) error {
	const query = `
		UPDATE trading_accounts SET
			current_balance = $2, last_sync_at = NOW(), updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, balance)
	if err != nil {
		return fmt.Errorf("postgres: update account balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Delete removes the account. Fails while a copier still references it as
// master or follower (RESTRICT foreign keys); callers check first to return
// a friendlier error.
func (s *AccountStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trading_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
