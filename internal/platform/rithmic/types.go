package rithmic

import (
	"strings"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// Wire shapes for Rithmic REST gateways. Firms fronting Rithmic (TakeProfit
// Trader, MyFunded Futures, Alpha Futures, Tradeify) expose slightly
// different JSON, so fields carry alternates and normalisation is defensive.

type rtAccount struct {
	ID         string  `json:"id"`
	Number     string  `json:"accountNumber"`
	Name       string  `json:"name"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	MarginUsed float64 `json:"marginUsed"`
}

type rtAccountsResponse struct {
	Accounts []rtAccount `json:"accounts"`
	Data     []rtAccount `json:"data"`
}

func (r rtAccountsResponse) all() []rtAccount {
	if len(r.Accounts) > 0 {
		return r.Accounts
	}
	return r.Data
}

type rtTrade struct {
	ID        string    `json:"id"`
	TradeID   string    `json:"tradeId"`
	OrderID   string    `json:"orderId"`
	Account   string    `json:"account"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type rtTradesResponse struct {
	Trades []rtTrade `json:"trades"`
	Data   []rtTrade `json:"data"`
}

func (r rtTradesResponse) all() []rtTrade {
	if len(r.Trades) > 0 {
		return r.Trades
	}
	return r.Data
}

type rtOrderRequest struct {
	Account    string   `json:"account"`
	Symbol     string   `json:"symbol"`
	Side       string   `json:"side"`
	Type       string   `json:"type"`
	Quantity   int      `json:"quantity"`
	LimitPrice *float64 `json:"limitPrice,omitempty"`
	StopPrice  *float64 `json:"stopPrice,omitempty"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
}

type rtOrderResponse struct {
	OrderID string `json:"orderId"`
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (r rtOrderResponse) orderID() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.ID
}

// ---------------------------------------------------------------------------
// Normalisation
// ---------------------------------------------------------------------------

// NormalizeSide maps a vendor side string to the canonical enum.
func NormalizeSide(s string) domain.TradeSide {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sell", "s", "short", "1":
		return domain.SideSell
	default:
		return domain.SideBuy
	}
}

// NormalizeStatus maps a vendor status string to the canonical enum.
func NormalizeStatus(s string) domain.TradeStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "filled", "complete", "completed", "executed":
		return domain.TradeFilled
	case "partially_filled", "partial", "partialfill":
		return domain.TradePartiallyFilled
	case "cancelled", "canceled":
		return domain.TradeCancelled
	case "rejected", "refused":
		return domain.TradeRejected
	default:
		return domain.TradePending
	}
}

func encodeSide(side domain.TradeSide) string {
	if side == domain.SideSell {
		return "SELL"
	}
	return "BUY"
}

func encodeType(t domain.TradeType) string {
	switch t {
	case domain.TypeLimit:
		return "LIMIT"
	case domain.TypeStop:
		return "STOP"
	default:
		return "MARKET"
	}
}

func normalizeTrade(t rtTrade) domain.TradeExecution {
	tradeID := t.TradeID
	if tradeID == "" {
		tradeID = t.ID
	}
	return domain.TradeExecution{
		ExternalOrderID: t.OrderID,
		ExternalTradeID: tradeID,
		AccountNumber:   t.Account,
		Symbol:          t.Symbol,
		Side:            NormalizeSide(t.Side),
		Type:            domain.TypeMarket,
		Quantity:        t.Quantity,
		Price:           t.Price,
		Status:          NormalizeStatus(t.Status),
		ExecutedAt:      t.Timestamp,
	}
}

func snapshotAccount(acct rtAccount) domain.AccountSnapshot {
	number := acct.Number
	if number == "" {
		number = acct.ID
	}
	return domain.AccountSnapshot{
		AccountID:     acct.ID,
		AccountNumber: number,
		Name:          acct.Name,
		Balance:       acct.Balance,
		Equity:        acct.Equity,
		MarginUsed:    acct.MarginUsed,
	}
}
