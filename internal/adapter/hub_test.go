package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skybread8/tradesyncer/internal/domain"
)

func TestHubDispatchAndDispose(t *testing.T) {
	hub := NewHub()

	var a, b int
	disposeA := hub.OnTrade(func(domain.TradeExecution) { a++ })
	hub.OnTrade(func(domain.TradeExecution) { b++ })
	assert.Equal(t, 2, hub.HandlerCount())

	hub.EmitTrade(domain.TradeExecution{Symbol: "NQZ6"})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)

	// Disposing removes exactly the handler that was registered.
	disposeA()
	hub.EmitTrade(domain.TradeExecution{Symbol: "NQZ6"})
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, hub.HandlerCount())
}

func TestHubPositionHandlers(t *testing.T) {
	hub := NewHub()

	var got domain.PositionSnapshot
	hub.OnPosition(func(p domain.PositionSnapshot) { got = p })

	hub.EmitPosition(domain.PositionSnapshot{Symbol: "ESZ6", Quantity: 3})
	assert.Equal(t, "ESZ6", got.Symbol)
	assert.Equal(t, 3, got.Quantity)
}

func TestHubClear(t *testing.T) {
	hub := NewHub()

	var calls int
	hub.OnTrade(func(domain.TradeExecution) { calls++ })
	hub.OnPosition(func(domain.PositionSnapshot) { calls++ })

	hub.Clear()
	assert.Equal(t, 0, hub.HandlerCount())

	hub.EmitTrade(domain.TradeExecution{})
	hub.EmitPosition(domain.PositionSnapshot{})
	assert.Equal(t, 0, calls)
}
