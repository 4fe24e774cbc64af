// Package adapter defines the uniform brokerage interface that every
// platform implementation exposes, together with the shared plumbing they
// consume: auth probing, endpoint discovery, reconnect backoff, the polling
// fallback, and the callback hub.
package adapter

import (
	"context"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// ConnectConfig carries everything an adapter may need to open a session.
// Either the email/password pair or the API key pair must be present.
type ConnectConfig struct {
	Credentials   domain.Credentials
	AccountNumber string

	// Environment selects a vendor environment ("live", "demo", ...).
	Environment string
	// BaseURL, when set, overrides candidate selection entirely.
	BaseURL string
	// WSURL, when set, overrides the push stream endpoint.
	WSURL string

	// Cached is a previously discovered endpoint tuple; when present the
	// adapter skips probing.
	Cached *domain.DiscoveredEndpoints
}

// Disposer removes a previously registered callback.
type Disposer func()

// TradeHandler receives normalised executions from the adapter's stream or
// polling fallback.
type TradeHandler func(domain.TradeExecution)

// PositionHandler receives normalised position updates.
type PositionHandler func(domain.PositionSnapshot)

// Adapter is the uniform brokerage contract. Implementations must be safe
// for concurrent PlaceOrder/GetAccountInfo calls once Connect has returned.
type Adapter interface {
	// Identity returns the firm and platform this instance serves.
	Identity() (domain.Firm, domain.Platform)

	// Connect opens a session. It fails with domain.ErrAuthFailed when no
	// credential combination yields a session and domain.ErrTransport on
	// network failure.
	Connect(ctx context.Context, cfg ConnectConfig) error

	// Disconnect is idempotent and releases timers and streams.
	Disconnect(ctx context.Context) error

	// IsConnected reflects the live session state including underlying
	// socket health.
	IsConnected() bool

	PlaceOrder(ctx context.Context, order domain.TradeOrder) (domain.TradeExecution, error)
	CancelOrder(ctx context.Context, externalOrderID string) error
	ModifyOrder(ctx context.Context, externalOrderID string, updates domain.TradeOrder) error
	// ClosePosition flattens the symbol. side, when non-nil, restricts the
	// close to positions on that side.
	ClosePosition(ctx context.Context, symbol string, side *domain.TradeSide) error

	GetAccountInfo(ctx context.Context) (domain.AccountSnapshot, error)
	// GetAllAccounts enumerates every account reachable under the session,
	// falling back to a single GetAccountInfo result when the provider does
	// not support enumeration.
	GetAllAccounts(ctx context.Context) ([]domain.AccountSnapshot, error)

	OnTradeUpdate(h TradeHandler) Disposer
	OnPositionUpdate(h PositionHandler) Disposer
	// Unsubscribe clears all registered callbacks.
	Unsubscribe()
}
