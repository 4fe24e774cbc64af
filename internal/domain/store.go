package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// UserStore persists users.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Delete(ctx context.Context, id string) error
}

// AccountStore persists trading accounts.
type AccountStore interface {
	Create(ctx context.Context, a TradingAccount) error
	// Upsert inserts or updates keyed by (userID, firm, accountNumber) and
	// returns the stored account.
	Upsert(ctx context.Context, a TradingAccount) (TradingAccount, error)
	GetByID(ctx context.Context, id string) (TradingAccount, error)
	// GetOwned returns ErrNotFound when the account does not belong to userID.
	GetOwned(ctx context.Context, id, userID string) (TradingAccount, error)
	ListByUser(ctx context.Context, userID string) ([]TradingAccount, error)
	Update(ctx context.Context, a TradingAccount) error
	// UpdateConnection persists connection flags after a connect/disconnect
	// attempt. errMsg is cleared when connected is true.
	UpdateConnection(ctx context.Context, id string, connected bool, errMsg string) error
	UpdateBalance(ctx context.Context, id string, balance float64) error
	Delete(ctx context.Context, id string) error
}

// CopierStore persists copiers.
type CopierStore interface {
	Create(ctx context.Context, c Copier) error
	GetByID(ctx context.Context, id string) (Copier, error)
	GetOwned(ctx context.Context, id, userID string) (Copier, error)
	ListByUser(ctx context.Context, userID string) ([]Copier, error)
	ListByStatus(ctx context.Context, status CopierStatus) ([]Copier, error)
	// ListByMasterAccount returns copiers using the account as master
	// (deletion guard).
	ListByMasterAccount(ctx context.Context, accountID string) ([]Copier, error)
	Update(ctx context.Context, c Copier) error
	UpdateStatus(ctx context.Context, id string, status CopierStatus) error
	Delete(ctx context.Context, id string) error
}

// ConfigStore persists follower bindings.
type ConfigStore interface {
	// Create returns ErrAlreadyExists on a duplicate
	// (copierID, slaveAccountID) pair.
	Create(ctx context.Context, c CopierAccountConfig) error
	Get(ctx context.Context, copierID, slaveAccountID string) (CopierAccountConfig, error)
	ListByCopier(ctx context.Context, copierID string) ([]CopierAccountConfig, error)
	// ListBySlaveAccount returns bindings referencing the account as a
	// follower (deletion guard).
	ListBySlaveAccount(ctx context.Context, accountID string) ([]CopierAccountConfig, error)
	Update(ctx context.Context, c CopierAccountConfig) error
	// Disable atomically sets isActive=false with the given reason.
	Disable(ctx context.Context, id, reason string) error
	Delete(ctx context.Context, copierID, slaveAccountID string) error
}

// TradeStore persists recorded executions.
type TradeStore interface {
	// Insert returns ErrAlreadyExists when a trade with the same
	// (accountID, externalTradeID) was already recorded.
	Insert(ctx context.Context, t Trade) error
	GetByID(ctx context.Context, id string) (Trade, error)
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]Trade, error)
	ListByCopier(ctx context.Context, copierID string, opts ListOpts) ([]Trade, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Trade, error)
	// SumRealizedPnL sums realised P&L of FILLED trades on the account since
	// the given time (the daily loss gate window).
	SumRealizedPnL(ctx context.Context, accountID string, since time.Time) (float64, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// MappingStore persists master-to-follower trade mappings.
type MappingStore interface {
	// Insert returns ErrAlreadyExists on a duplicate
	// (masterTradeID, slaveAccountID) pair, which callers treat as the
	// idempotency signal.
	Insert(ctx context.Context, m TradeMapping) error
	ListByCopier(ctx context.Context, copierID string, opts ListOpts) ([]TradeMapping, error)
	GetByMasterAndSlave(ctx context.Context, masterTradeID, slaveAccountID string) (TradeMapping, error)
}

// ExecutionLogStore persists the append-only copier audit log.
type ExecutionLogStore interface {
	Append(ctx context.Context, e ExecutionLog) error
	ListByCopier(ctx context.Context, copierID string, opts ListOpts) ([]ExecutionLog, error)
	ListBefore(ctx context.Context, before time.Time) ([]ExecutionLog, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
