package ninjatrader

import (
	"strings"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// Wire shapes for NinjaTrader-backed firm gateways. The hosted REST bridges
// wrap the desktop platform, so payloads are flat and loosely typed.

type ntAccount struct {
	AccountID    string  `json:"accountId"`
	DisplayName  string  `json:"displayName"`
	CashValue    float64 `json:"cashValue"`
	NetLiq       float64 `json:"netLiquidation"`
	ExcessMargin float64 `json:"excessInitialMargin"`
}

type ntAccountsResponse struct {
	Accounts []ntAccount `json:"accounts"`
	Data     []ntAccount `json:"data"`
}

func (r ntAccountsResponse) all() []ntAccount {
	if len(r.Accounts) > 0 {
		return r.Accounts
	}
	return r.Data
}

type ntExecution struct {
	ExecutionID string    `json:"executionId"`
	OrderID     string    `json:"orderId"`
	Account     string    `json:"account"`
	Instrument  string    `json:"instrument"`
	MarketSide  string    `json:"marketPosition"`
	Quantity    int       `json:"quantity"`
	Price       float64   `json:"price"`
	OrderState  string    `json:"orderState"`
	Time        time.Time `json:"time"`
}

type ntExecutionsResponse struct {
	Executions []ntExecution `json:"executions"`
	Data       []ntExecution `json:"data"`
}

func (r ntExecutionsResponse) all() []ntExecution {
	if len(r.Executions) > 0 {
		return r.Executions
	}
	return r.Data
}

type ntOrderRequest struct {
	Account      string   `json:"account"`
	Instrument   string   `json:"instrument"`
	Action       string   `json:"action"`    // Buy / Sell
	OrderType    string   `json:"orderType"` // Market / Limit / StopMarket
	Quantity     int      `json:"quantity"`
	LimitPrice   *float64 `json:"limitPrice,omitempty"`
	StopPrice    *float64 `json:"stopPrice,omitempty"`
	StopLoss     *float64 `json:"stopLoss,omitempty"`
	ProfitTarget *float64 `json:"profitTarget,omitempty"`
}

type ntOrderResponse struct {
	OrderID    string `json:"orderId"`
	ID         string `json:"id"`
	OrderState string `json:"orderState"`
	Message    string `json:"message"`
}

func (r ntOrderResponse) orderID() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.ID
}

func normalizeAction(s string) domain.TradeSide {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sell", "sellshort", "short":
		return domain.SideSell
	default:
		return domain.SideBuy
	}
}

func normalizeState(s string) domain.TradeStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "filled", "complete":
		return domain.TradeFilled
	case "partfilled", "partiallyfilled":
		return domain.TradePartiallyFilled
	case "cancelled", "canceled":
		return domain.TradeCancelled
	case "rejected":
		return domain.TradeRejected
	default:
		return domain.TradePending
	}
}

func encodeAction(side domain.TradeSide) string {
	if side == domain.SideSell {
		return "Sell"
	}
	return "Buy"
}

func encodeOrderType(t domain.TradeType) string {
	switch t {
	case domain.TypeLimit:
		return "Limit"
	case domain.TypeStop:
		return "StopMarket"
	default:
		return "Market"
	}
}

func normalizeExecution(e ntExecution) domain.TradeExecution {
	return domain.TradeExecution{
		ExternalOrderID: e.OrderID,
		ExternalTradeID: e.ExecutionID,
		AccountNumber:   e.Account,
		Symbol:          e.Instrument,
		Side:            normalizeAction(e.MarketSide),
		Type:            domain.TypeMarket,
		Quantity:        e.Quantity,
		Price:           e.Price,
		Status:          normalizeState(e.OrderState),
		ExecutedAt:      e.Time,
	}
}

func snapshotAccount(acct ntAccount) domain.AccountSnapshot {
	return domain.AccountSnapshot{
		AccountID:     acct.AccountID,
		AccountNumber: acct.AccountID,
		Name:          acct.DisplayName,
		Balance:       acct.CashValue,
		Equity:        acct.NetLiq,
		MarginUsed:    acct.CashValue - acct.ExcessMargin,
	}
}
