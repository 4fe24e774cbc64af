package adapter

import (
	"sync"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// Hub is the shared callback registry every concrete adapter embeds. It keeps
// trade and position handlers keyed by a monotonically increasing id so a
// Disposer can remove exactly the handler it registered. Safe for concurrent
// use.
type Hub struct {
	mu        sync.RWMutex
	nextID    int
	trades    map[int]TradeHandler
	positions map[int]PositionHandler
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		trades:    make(map[int]TradeHandler),
		positions: make(map[int]PositionHandler),
	}
}

// OnTrade registers a trade handler and returns its disposer.
func (h *Hub) OnTrade(fn TradeHandler) Disposer {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.trades[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.trades, id)
	}
}

// OnPosition registers a position handler and returns its disposer.
func (h *Hub) OnPosition(fn PositionHandler) Disposer {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.positions[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.positions, id)
	}
}

// EmitTrade delivers a normalised execution to every registered handler.
func (h *Hub) EmitTrade(exec domain.TradeExecution) {
	h.mu.RLock()
	handlers := make([]TradeHandler, 0, len(h.trades))
	for _, fn := range h.trades {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(exec)
	}
}

// EmitPosition delivers a normalised position to every registered handler.
func (h *Hub) EmitPosition(pos domain.PositionSnapshot) {
	h.mu.RLock()
	handlers := make([]PositionHandler, 0, len(h.positions))
	for _, fn := range h.positions {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(pos)
	}
}

// Clear removes every registered handler.
func (h *Hub) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trades = make(map[int]TradeHandler)
	h.positions = make(map[int]PositionHandler)
}

// HandlerCount returns the number of registered handlers (for liveness checks).
func (h *Hub) HandlerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.trades) + len(h.positions)
}
