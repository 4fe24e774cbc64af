package tradovate

import (
	"strconv"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// Wire shapes for the Tradovate REST API.

type accessTokenRequest struct {
	Name       string `json:"name"`
	Password   string `json:"password,omitempty"`
	AppID      string `json:"appId,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
	CID        string `json:"cid,omitempty"`
	Sec        string `json:"sec,omitempty"`
}

type accessTokenResponse struct {
	AccessToken    string `json:"accessToken"`
	ExpirationTime string `json:"expirationTime"`
	ErrorText      string `json:"errorText"`
}

type tvAccount struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	UserID    int64  `json:"userId"`
	Active    bool   `json:"active"`
	LegalType string `json:"legalStatus"`
}

type cashBalanceSnapshot struct {
	TotalCashValue float64 `json:"totalCashValue"`
	RealizedPnL    float64 `json:"realizedPnL"`
	OpenPnL        float64 `json:"openPnL"`
	InitialMargin  float64 `json:"initialMargin"`
}

type placeOrderRequest struct {
	AccountSpec string   `json:"accountSpec"`
	AccountID   int64    `json:"accountId"`
	Action      string   `json:"action"` // "Buy" | "Sell"
	Symbol      string   `json:"symbol"`
	OrderQty    int      `json:"orderQty"`
	OrderType   string   `json:"orderType"` // "Market" | "Limit" | "Stop"
	Price       *float64 `json:"price,omitempty"`
	StopPrice   *float64 `json:"stopPrice,omitempty"`
	IsAutomated bool     `json:"isAutomated"`
}

type placeOrderResponse struct {
	OrderID       int64  `json:"orderId"`
	FailureReason string `json:"failureReason"`
	FailureText   string `json:"failureText"`
}

type modifyOrderRequest struct {
	OrderID   int64    `json:"orderId"`
	OrderQty  *int     `json:"orderQty,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	StopPrice *float64 `json:"stopPrice,omitempty"`
}

type liquidateRequest struct {
	AccountID int64 `json:"accountId"`
	// ContractID is resolved from the symbol by the caller.
	ContractID int64 `json:"contractId"`
	Admin      bool  `json:"admin"`
}

type tvFill struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"orderId"`
	ContractS string    `json:"contractName"`
	Qty       int       `json:"qty"`
	Price     float64   `json:"price"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Active    bool      `json:"active"`
}

type tvPosition struct {
	ContractName string  `json:"contractName"`
	NetPos       int     `json:"netPos"`
	NetPrice     float64 `json:"netPrice"`
}

// ---------------------------------------------------------------------------
// Normalisation
// ---------------------------------------------------------------------------

func normalizeAction(action string) domain.TradeSide {
	if action == "Sell" {
		return domain.SideSell
	}
	return domain.SideBuy
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
		return "Stop"
	default:
		return "Market"
	}
}

func normalizeFill(f tvFill, accountNumber string) domain.TradeExecution {
	status := domain.TradeFilled
	if !f.Active {
		status = domain.TradeCancelled
	}
	return domain.TradeExecution{
		ExternalOrderID: strconv.FormatInt(f.OrderID, 10),
		ExternalTradeID: strconv.FormatInt(f.ID, 10),
		AccountNumber:   accountNumber,
		Symbol:          f.ContractS,
		Side:            normalizeAction(f.Action),
		Type:            domain.TypeMarket,
		Quantity:        f.Qty,
		Price:           f.Price,
		Status:          status,
		ExecutedAt:      f.Timestamp,
	}
}

func normalizePosition(p tvPosition) domain.PositionSnapshot {
	side := domain.SideBuy
	qty := p.NetPos
	if qty < 0 {
		side = domain.SideSell
		qty = -qty
	}
	return domain.PositionSnapshot{
		Symbol:   p.ContractName,
		Side:     side,
		Quantity: qty,
		AvgPrice: p.NetPrice,
	}
}
