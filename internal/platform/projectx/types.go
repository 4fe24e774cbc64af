package projectx

import (
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// Wire shapes for the ProjectX gateway API. Field names follow the vendor's
// JSON exactly; normalisation to the canonical enums happens in this file so
// nothing vendor-shaped leaves the package.

// loginKeyRequest authenticates with an API key.
type loginKeyRequest struct {
	UserName string `json:"userName"`
	APIKey   string `json:"apiKey"`
}

// loginAppRequest authenticates with email and password.
type loginAppRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
	AppID    string `json:"appId,omitempty"`
}

type loginResponse struct {
	Token        string `json:"token"`
	Success      bool   `json:"success"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type accountSearchRequest struct {
	OnlyActiveAccounts bool `json:"onlyActiveAccounts"`
}

type pxAccount struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Balance   float64 `json:"balance"`
	CanTrade  bool    `json:"canTrade"`
	Simulated bool    `json:"simulated"`
}

type accountSearchResponse struct {
	Accounts     []pxAccount `json:"accounts"`
	Success      bool        `json:"success"`
	ErrorMessage string      `json:"errorMessage"`
}

// Order sides and types as the gateway encodes them.
const (
	pxSideBuy  = 0
	pxSideSell = 1

	pxTypeLimit  = 1
	pxTypeMarket = 2
	pxTypeStop   = 4
)

type placeOrderRequest struct {
	AccountID  int64    `json:"accountId"`
	ContractID string   `json:"contractId"`
	Type       int      `json:"type"`
	Side       int      `json:"side"`
	Size       int      `json:"size"`
	LimitPrice *float64 `json:"limitPrice,omitempty"`
	StopPrice  *float64 `json:"stopPrice,omitempty"`
}

type placeOrderResponse struct {
	OrderID      int64  `json:"orderId"`
	Success      bool   `json:"success"`
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type cancelOrderRequest struct {
	AccountID int64 `json:"accountId"`
	OrderID   int64 `json:"orderId"`
}

type modifyOrderRequest struct {
	AccountID  int64    `json:"accountId"`
	OrderID    int64    `json:"orderId"`
	Size       *int     `json:"size,omitempty"`
	LimitPrice *float64 `json:"limitPrice,omitempty"`
	StopPrice  *float64 `json:"stopPrice,omitempty"`
}

type closePositionRequest struct {
	AccountID  int64  `json:"accountId"`
	ContractID string `json:"contractId"`
}

type tradeSearchRequest struct {
	AccountID      int64  `json:"accountId"`
	StartTimestamp string `json:"startTimestamp,omitempty"`
}

type pxTrade struct {
	ID           int64     `json:"id"`
	OrderID      int64     `json:"orderId"`
	AccountID    int64     `json:"accountId"`
	ContractID   string    `json:"contractId"`
	Price        float64   `json:"price"`
	Size         int       `json:"size"`
	Side         int       `json:"side"`
	Fees         float64   `json:"fees"`
	Voided       bool      `json:"voided"`
	CreationTime time.Time `json:"creationTimestamp"`
}

type tradeSearchResponse struct {
	Trades       []pxTrade `json:"trades"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"errorMessage"`
}

type pxPosition struct {
	ContractID   string  `json:"contractId"`
	Type         int     `json:"type"` // 1 long, 2 short
	Size         int     `json:"size"`
	AveragePrice float64 `json:"averagePrice"`
}

type errorResponse struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// ---------------------------------------------------------------------------
// Normalisation
// ---------------------------------------------------------------------------

func normalizeSide(side int) domain.TradeSide {
	if side == pxSideSell {
		return domain.SideSell
	}
	return domain.SideBuy
}

func encodeSide(side domain.TradeSide) int {
	if side == domain.SideSell {
		return pxSideSell
	}
	return pxSideBuy
}

func encodeType(t domain.TradeType) int {
	switch t {
	case domain.TypeLimit:
		return pxTypeLimit
	case domain.TypeStop:
		return pxTypeStop
	default:
		return pxTypeMarket
	}
}

// normalizeTrade maps one gateway trade row to the canonical execution shape.
func normalizeTrade(t pxTrade, accountNumber string) domain.TradeExecution {
	status := domain.TradeFilled
	if t.Voided {
		status = domain.TradeCancelled
	}
	return domain.TradeExecution{
		ExternalOrderID: formatID(t.OrderID),
		ExternalTradeID: formatID(t.ID),
		AccountNumber:   accountNumber,
		Symbol:          t.ContractID,
		Side:            normalizeSide(t.Side),
		Type:            domain.TypeMarket,
		Quantity:        t.Size,
		Price:           t.Price,
		Status:          status,
		ExecutedAt:      t.CreationTime,
	}
}

func normalizePosition(p pxPosition) domain.PositionSnapshot {
	side := domain.SideBuy
	if p.Type == 2 {
		side = domain.SideSell
	}
	return domain.PositionSnapshot{
		Symbol:   p.ContractID,
		Side:     side,
		Quantity: p.Size,
		AvgPrice: p.AveragePrice,
	}
}
