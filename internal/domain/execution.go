package domain

import "time"

// TradeExecution is a normalised fill as reported by a brokerage adapter.
// Vendor-specific side/status strings are mapped to the canonical enums
// before an execution leaves the adapter boundary.
type TradeExecution struct {
	ExternalOrderID string
	ExternalTradeID string
	AccountNumber   string
	Symbol          string
	Side            TradeSide
	Type            TradeType
	Quantity        int
	Price           float64
	StopLoss        *float64
	TakeProfit      *float64
	Status          TradeStatus
	ExecutedAt      time.Time
}

// PositionSnapshot is a normalised open position.
type PositionSnapshot struct {
	Symbol        string
	Side          TradeSide
	Quantity      int
	AvgPrice      float64
	UnrealizedPnL float64
}

// AccountSnapshot is a normalised view of one brokerage account.
type AccountSnapshot struct {
	AccountID     string
	AccountNumber string
	Name          string
	Balance       float64
	Equity        float64
	MarginUsed    float64
	Positions     []PositionSnapshot
}

// TradeOrder is a normalised order request submitted through an adapter.
type TradeOrder struct {
	Symbol     string
	Side       TradeSide
	Type       TradeType
	Quantity   int
	Price      *float64 // limit/stop price; nil for market
	StopLoss   *float64
	TakeProfit *float64
}
