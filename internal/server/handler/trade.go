package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
	"github.com/skybread8/tradesyncer/internal/service"
)

// TradeHandler serves read access to recorded trades.
type TradeHandler struct {
	trades *service.TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades *service.TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

type tradeResponse struct {
	ID              string     `json:"id"`
	AccountID       string     `json:"account_id"`
	CopierID        *string    `json:"copier_id,omitempty"`
	Symbol          string     `json:"symbol"`
	Side            string     `json:"side"`
	Type            string     `json:"type"`
	Quantity        int        `json:"quantity"`
	EntryPrice      *float64   `json:"entry_price,omitempty"`
	ExitPrice       *float64   `json:"exit_price,omitempty"`
	StopLoss        *float64   `json:"stop_loss,omitempty"`
	TakeProfit      *float64   `json:"take_profit,omitempty"`
	Status          string     `json:"status"`
	RealizedPnL     *float64   `json:"realized_pnl,omitempty"`
	ExternalOrderID string     `json:"external_order_id,omitempty"`
	ExternalTradeID string     `json:"external_trade_id,omitempty"`
	OpenedAt        *time.Time `json:"opened_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	FilledAt        *time.Time `json:"filled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toTradeResponse(t domain.Trade) tradeResponse {
	return tradeResponse{
		ID:              t.ID,
		AccountID:       t.AccountID,
		CopierID:        t.CopierID,
		Symbol:          t.Symbol,
		Side:            string(t.Side),
		Type:            string(t.Type),
		Quantity:        t.Quantity,
		EntryPrice:      t.EntryPrice,
		ExitPrice:       t.ExitPrice,
		StopLoss:        t.StopLoss,
		TakeProfit:      t.TakeProfit,
		Status:          string(t.Status),
		RealizedPnL:     t.RealizedPnL,
		ExternalOrderID: t.ExternalOrderID,
		ExternalTradeID: t.ExternalTradeID,
		OpenedAt:        t.OpenedAt,
		ClosedAt:        t.ClosedAt,
		FilledAt:        t.FilledAt,
		CreatedAt:       t.CreatedAt,
	}
}

func toTradeResponses(trades []domain.Trade) []tradeResponse {
	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, toTradeResponse(t))
	}
	return out
}

type mappingResponse struct {
	ID             string     `json:"id"`
	CopierID       string     `json:"copier_id"`
	MasterTradeID  string     `json:"master_trade_id"`
	SlaveTradeID   string     `json:"slave_trade_id,omitempty"`
	SlaveAccountID string     `json:"slave_account_id"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	SyncedAt       *time.Time `json:"synced_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toMappingResponses(mappings []domain.TradeMapping) []mappingResponse {
	out := make([]mappingResponse, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, mappingResponse{
			ID:             m.ID,
			CopierID:       m.CopierID,
			MasterTradeID:  m.MasterTradeID,
			SlaveTradeID:   m.SlaveTradeID,
			SlaveAccountID: m.SlaveAccountID,
			Status:         string(m.Status),
			ErrorMessage:   m.ErrorMessage,
			SyncedAt:       m.SyncedAt,
			CreatedAt:      m.CreatedAt,
		})
	}
	return out
}

type logResponse struct {
	ID             int64          `json:"id"`
	CopierID       string         `json:"copier_id"`
	Level          string         `json:"level"`
	Message        string         `json:"message"`
	MasterTradeID  *string        `json:"master_trade_id,omitempty"`
	SlaveTradeID   *string        `json:"slave_trade_id,omitempty"`
	SlaveAccountID *string        `json:"slave_account_id,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func toLogResponses(logs []domain.ExecutionLog) []logResponse {
	out := make([]logResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, logResponse{
			ID:             l.ID,
			CopierID:       l.CopierID,
			Level:          string(l.Level),
			Message:        l.Message,
			MasterTradeID:  l.MasterTradeID,
			SlaveTradeID:   l.SlaveTradeID,
			SlaveAccountID: l.SlaveAccountID,
			Details:        l.Details,
			CreatedAt:      l.CreatedAt,
		})
	}
	return out
}

// History returns the caller's trades across all accounts, newest first.
// GET /api/trades/history
func (h *TradeHandler) History(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.History(r.Context(), callerID(r), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": toTradeResponses(trades), "count": len(trades)})
}

// ListByAccount returns trades on one account.
// GET /api/accounts/{id}/trades
func (h *TradeHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.ListByAccount(r.Context(), pathParam(r, "id"), callerID(r), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": toTradeResponses(trades), "count": len(trades)})
}
