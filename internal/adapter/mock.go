package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// Mock is an in-memory adapter used in mock mode and in tests. Orders fill
// instantly at the last emitted price and positions are tracked per symbol.
type Mock struct {
	firm     domain.Firm
	platform domain.Platform
	hub      *Hub

	mu        sync.Mutex
	connected bool
	balance   float64
	account   string
	positions map[string]*domain.PositionSnapshot
	orders    []domain.TradeExecution

	// PlaceOrderErr, when set, is returned by PlaceOrder (failure injection).
	PlaceOrderErr error
}

// NewMock creates a mock adapter reporting the given identity with a
// 100k starting balance.
func NewMock(firm domain.Firm, platform domain.Platform) *Mock {
	return &Mock{
		firm:      firm,
		platform:  platform,
		hub:       NewHub(),
		balance:   100_000,
		positions: make(map[string]*domain.PositionSnapshot),
	}
}

// Identity implements Adapter.
func (m *Mock) Identity() (domain.Firm, domain.Platform) {
	return m.firm, m.platform
}

// Connect accepts any non-empty credential combination.
func (m *Mock) Connect(ctx context.Context, cfg ConnectConfig) error {
	creds := cfg.Credentials
	if creds.Email == "" && creds.APIKey == "" && cfg.AccountNumber == "" {
		return fmt.Errorf("mock: empty credentials: %w", domain.ErrAuthFailed)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	m.account = cfg.AccountNumber
	if m.account == "" {
		m.account = "SIM-" + uuid.NewString()[:8]
	}
	return nil
}

// Disconnect implements Adapter. Idempotent.
func (m *Mock) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected implements Adapter.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// PlaceOrder fills immediately and returns the synthetic execution.
func (m *Mock) PlaceOrder(ctx context.Context, order domain.TradeOrder) (domain.TradeExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return domain.TradeExecution{}, domain.ErrNotConnected
	}
	if m.PlaceOrderErr != nil {
		return domain.TradeExecution{}, m.PlaceOrderErr
	}

	price := 0.0
	if order.Price != nil {
		price = *order.Price
	}
	exec := domain.TradeExecution{
		ExternalOrderID: "mock-ord-" + uuid.NewString()[:8],
		ExternalTradeID: "mock-trd-" + uuid.NewString()[:8],
		AccountNumber:   m.account,
		Symbol:          order.Symbol,
		Side:            order.Side,
		Type:            order.Type,
		Quantity:        order.Quantity,
		Price:           price,
		StopLoss:        order.StopLoss,
		TakeProfit:      order.TakeProfit,
		Status:          domain.TradeFilled,
		ExecutedAt:      time.Now().UTC(),
	}
	m.orders = append(m.orders, exec)
	m.applyFill(exec)
	return exec, nil
}

// CancelOrder implements Adapter.
func (m *Mock) CancelOrder(ctx context.Context, externalOrderID string) error {
	if !m.IsConnected() {
		return domain.ErrNotConnected
	}
	return nil
}

// ModifyOrder implements Adapter.
func (m *Mock) ModifyOrder(ctx context.Context, externalOrderID string, updates domain.TradeOrder) error {
	if !m.IsConnected() {
		return domain.ErrNotConnected
	}
	return nil
}

// ClosePosition flattens the symbol.
func (m *Mock) ClosePosition(ctx context.Context, symbol string, side *domain.TradeSide) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return domain.ErrNotConnected
	}
	pos, ok := m.positions[symbol]
	if !ok {
		return fmt.Errorf("mock: no open position for %s: %w", symbol, domain.ErrNotFound)
	}
	if side != nil && pos.Side != *side {
		return nil
	}
	delete(m.positions, symbol)
	return nil
}

// GetAccountInfo implements Adapter.
func (m *Mock) GetAccountInfo(ctx context.Context) (domain.AccountSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return domain.AccountSnapshot{}, domain.ErrNotConnected
	}
	positions := make([]domain.PositionSnapshot, 0, len(m.positions))
	for _, p := range m.positions {
		positions = append(positions, *p)
	}
	return domain.AccountSnapshot{
		AccountID:     m.account,
		AccountNumber: m.account,
		Name:          string(m.firm) + " simulated",
		Balance:       m.balance,
		Equity:        m.balance,
		Positions:     positions,
	}, nil
}

// GetAllAccounts returns the single simulated account.
func (m *Mock) GetAllAccounts(ctx context.Context) ([]domain.AccountSnapshot, error) {
	info, err := m.GetAccountInfo(ctx)
	if err != nil {
		return nil, err
	}
	return []domain.AccountSnapshot{info}, nil
}

// OnTradeUpdate implements Adapter.
func (m *Mock) OnTradeUpdate(h TradeHandler) Disposer {
	return m.hub.OnTrade(h)
}

// OnPositionUpdate implements Adapter.
func (m *Mock) OnPositionUpdate(h PositionHandler) Disposer {
	return m.hub.OnPosition(h)
}

// Unsubscribe implements Adapter.
func (m *Mock) Unsubscribe() {
	m.hub.Clear()
}

// EmitTrade injects a normalised execution as if the provider streamed it.
// Used by mock mode demos and tests.
func (m *Mock) EmitTrade(exec domain.TradeExecution) {
	m.hub.EmitTrade(exec)
}

// applyFill nets the fill into the tracked position. Caller holds m.mu.
func (m *Mock) applyFill(exec domain.TradeExecution) {
	pos, ok := m.positions[exec.Symbol]
	if !ok {
		m.positions[exec.Symbol] = &domain.PositionSnapshot{
			Symbol:   exec.Symbol,
			Side:     exec.Side,
			Quantity: exec.Quantity,
			AvgPrice: exec.Price,
		}
		return
	}
	if pos.Side == exec.Side {
		total := pos.Quantity + exec.Quantity
		pos.AvgPrice = (pos.AvgPrice*float64(pos.Quantity) + exec.Price*float64(exec.Quantity)) / float64(total)
		pos.Quantity = total
		return
	}
	switch {
	case exec.Quantity < pos.Quantity:
		pos.Quantity -= exec.Quantity
	case exec.Quantity == pos.Quantity:
		delete(m.positions, exec.Symbol)
	default:
		pos.Side = exec.Side
		pos.Quantity = exec.Quantity - pos.Quantity
		pos.AvgPrice = exec.Price
	}
}
