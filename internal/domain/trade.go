package domain

import "time"

// TradeSide is the canonical order direction.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// Opposite returns the other side.
func (s TradeSide) Opposite() TradeSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// TradeType is the order type.
type TradeType string

const (
	TypeMarket TradeType = "MARKET"
	TypeLimit  TradeType = "LIMIT"
	TypeStop   TradeType = "STOP"
)

// TradeStatus tracks the execution lifecycle.
type TradeStatus string

const (
	TradePending         TradeStatus = "PENDING"
	TradeFilled          TradeStatus = "FILLED"
	TradePartiallyFilled TradeStatus = "PARTIALLY_FILLED"
	TradeCancelled       TradeStatus = "CANCELLED"
	TradeRejected        TradeStatus = "REJECTED"
)

// Trade is one recorded execution on a trading account, optionally linked to
// the copier that produced or observed it.
type Trade struct {
	ID        string
	AccountID string
	CopierID  *string

	Symbol   string
	Side     TradeSide
	Type     TradeType
	Quantity int

	EntryPrice *float64
	ExitPrice  *float64
	StopLoss   *float64
	TakeProfit *float64

	Status      TradeStatus
	RealizedPnL *float64

	// Broker-assigned identifiers. (AccountID, ExternalTradeID) dedupes
	// replayed executions.
	ExternalOrderID string
	ExternalTradeID string

	OpenedAt  *time.Time
	ClosedAt  *time.Time
	FilledAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MappingStatus is the replication outcome for one follower.
type MappingStatus string

const (
	MappingPending MappingStatus = "pending"
	MappingSynced  MappingStatus = "synced"
	MappingFailed  MappingStatus = "failed"
)

// TradeMapping links one master trade to the follower trade it produced on
// one slave account, or records the failure. (MasterTradeID, SlaveAccountID)
// is unique, which makes replication idempotent under retries.
type TradeMapping struct {
	ID             string
	CopierID       string
	MasterTradeID  string
	SlaveTradeID   string // empty when Status == failed
	SlaveAccountID string
	Status         MappingStatus
	ErrorMessage   string
	SyncedAt       *time.Time
	CreatedAt      time.Time
}
