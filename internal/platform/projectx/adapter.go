package projectx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skybread8/tradesyncer/internal/adapter"
	"github.com/skybread8/tradesyncer/internal/domain"
)

// Config tunes one ProjectX adapter instance.
type Config struct {
	Firm                 domain.Firm
	BaseURLs             []string // firm overrides first, then platform defaults
	WSURL                string
	HTTPTimeout          time.Duration
	PollInterval         time.Duration
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	ReconnectMaxAttempts int
	Logger               *slog.Logger
}

// Adapter implements adapter.Adapter for the ProjectX gateway. The push
// stream is preferred; the polling fallback is armed when the stream cannot
// be established.
type Adapter struct {
	cfg Config
	hub *adapter.Hub

	mu            sync.RWMutex
	client        *Client
	ws            *WSClient
	poller        *adapter.Poller
	connected     bool
	accountID     int64
	accountNumber string
	lastFetch     time.Time
}

// New creates a ProjectX adapter for the given firm.
func New(cfg Config) *Adapter {
	if len(cfg.BaseURLs) == 0 {
		cfg.BaseURLs = DefaultBaseURLs
	}
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultWSURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Adapter{
		cfg: cfg,
		hub: adapter.NewHub(),
	}
}

// Identity implements adapter.Adapter.
func (a *Adapter) Identity() (domain.Firm, domain.Platform) {
	return a.cfg.Firm, domain.PlatformProjectX
}

// Connect authenticates against the first candidate base URL that accepts
// the credentials, resolves the target account, and attaches the stream.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.ConnectConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		return nil
	}

	candidates := a.cfg.BaseURLs
	if cfg.BaseURL != "" {
		candidates = append([]string{cfg.BaseURL}, candidates...)
	}

	var client *Client
	var lastErr error
	for _, base := range candidates {
		c := NewClient(base, a.cfg.HTTPTimeout)
		if err := a.authenticate(ctx, c, cfg); err != nil {
			lastErr = err
			continue
		}
		client = c
		break
	}
	if client == nil {
		if lastErr == nil {
			lastErr = domain.ErrAuthFailed
		}
		return fmt.Errorf("projectx: connect: %w", lastErr)
	}

	accountID, accountNumber, err := a.resolveAccount(ctx, client, cfg.AccountNumber)
	if err != nil {
		return fmt.Errorf("projectx: connect: %w", err)
	}

	a.client = client
	a.accountID = accountID
	a.accountNumber = accountNumber
	a.connected = true
	a.lastFetch = time.Now().UTC()

	wsURL := a.cfg.WSURL
	if cfg.WSURL != "" {
		wsURL = cfg.WSURL
	}

	backoff := adapter.NewBackoff(a.cfg.ReconnectBase, a.cfg.ReconnectCap, a.cfg.ReconnectMaxAttempts)
	ws := NewWSClient(wsURL, a.hub, backoff, a.cfg.Logger)
	ws.SetOnDown(a.markDisconnected)
	if err := ws.Connect(ctx, client.Token(), accountID, accountNumber); err != nil {
		// No stream: fall back to polling the trade-fetch endpoint.
		a.cfg.Logger.Warn("stream unavailable, starting polling fallback",
			slog.String("firm", string(a.cfg.Firm)),
			slog.String("error", err.Error()),
		)
		a.poller = adapter.NewPoller(a.cfg.PollInterval, a.fetchTrades, a.hub, a.cfg.Logger)
		a.poller.Start(context.Background())
		return nil
	}
	a.ws = ws
	return nil
}

// authenticate tries the credential shapes the gateway understands: API key
// first, then username + password.
func (a *Adapter) authenticate(ctx context.Context, c *Client, cfg adapter.ConnectConfig) error {
	creds := cfg.Credentials
	userName := creds.Email
	if userName == "" {
		userName = cfg.AccountNumber
	}

	if creds.APIKey != "" {
		if err := c.LoginKey(ctx, userName, creds.APIKey); err == nil {
			return nil
		} else if creds.Password == "" {
			return err
		}
	}
	if creds.Password != "" {
		return c.LoginApp(ctx, userName, creds.Password)
	}
	return fmt.Errorf("no usable credentials: %w", domain.ErrAuthFailed)
}

// resolveAccount picks the account matching the requested number, or the
// first tradable account when none was requested.
func (a *Adapter) resolveAccount(ctx context.Context, c *Client, accountNumber string) (int64, string, error) {
	accounts, err := c.SearchAccounts(ctx, true)
	if err != nil {
		return 0, "", err
	}
	if len(accounts) == 0 {
		return 0, "", fmt.Errorf("no active accounts: %w", domain.ErrNotFound)
	}

	if accountNumber != "" {
		for _, acct := range accounts {
			if acct.Name == accountNumber || formatID(acct.ID) == accountNumber {
				return acct.ID, acct.Name, nil
			}
		}
		return 0, "", fmt.Errorf("account %s not reachable under session: %w", accountNumber, domain.ErrNotFound)
	}
	return accounts[0].ID, accounts[0].Name, nil
}

// Disconnect implements adapter.Adapter. Idempotent.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ws != nil {
		a.ws.Close()
		a.ws = nil
	}
	if a.poller != nil {
		a.poller.Stop()
		a.poller = nil
	}
	a.connected = false
	a.client = nil
	return nil
}

// IsConnected implements adapter.Adapter; it reflects socket health when a
// stream is attached.
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return false
	}
	if a.ws != nil {
		return a.ws.IsConnected()
	}
	return true
}

func (a *Adapter) markDisconnected() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
}

// PlaceOrder implements adapter.Adapter. The returned execution carries the
// gateway order id; the fill itself arrives on the stream.
func (a *Adapter) PlaceOrder(ctx context.Context, order domain.TradeOrder) (domain.TradeExecution, error) {
	client, accountID, accountNumber, err := a.session()
	if err != nil {
		return domain.TradeExecution{}, err
	}

	req := placeOrderRequest{
		AccountID:  accountID,
		ContractID: order.Symbol,
		Type:       encodeType(order.Type),
		Side:       encodeSide(order.Side),
		Size:       order.Quantity,
	}
	switch order.Type {
	case domain.TypeLimit:
		req.LimitPrice = order.Price
	case domain.TypeStop:
		req.StopPrice = order.Price
	}

	orderID, err := client.PlaceOrder(ctx, req)
	if err != nil {
		return domain.TradeExecution{}, err
	}

	return domain.TradeExecution{
		ExternalOrderID: formatID(orderID),
		AccountNumber:   accountNumber,
		Symbol:          order.Symbol,
		Side:            order.Side,
		Type:            order.Type,
		Quantity:        order.Quantity,
		StopLoss:        order.StopLoss,
		TakeProfit:      order.TakeProfit,
		Status:          domain.TradePending,
		ExecutedAt:      time.Now().UTC(),
	}, nil
}

// CancelOrder implements adapter.Adapter.
func (a *Adapter) CancelOrder(ctx context.Context, externalOrderID string) error {
	client, accountID, _, err := a.session()
	if err != nil {
		return err
	}
	orderID, err := parseID(externalOrderID)
	if err != nil {
		return fmt.Errorf("projectx: bad order id %q: %w", externalOrderID, domain.ErrValidation)
	}
	return client.CancelOrder(ctx, accountID, orderID)
}

// ModifyOrder implements adapter.Adapter.
func (a *Adapter) ModifyOrder(ctx context.Context, externalOrderID string, updates domain.TradeOrder) error {
	client, accountID, _, err := a.session()
	if err != nil {
		return err
	}
	orderID, err := parseID(externalOrderID)
	if err != nil {
		return fmt.Errorf("projectx: bad order id %q: %w", externalOrderID, domain.ErrValidation)
	}

	req := modifyOrderRequest{AccountID: accountID, OrderID: orderID}
	if updates.Quantity > 0 {
		req.Size = &updates.Quantity
	}
	switch updates.Type {
	case domain.TypeLimit:
		req.LimitPrice = updates.Price
	case domain.TypeStop:
		req.StopPrice = updates.Price
	}
	return client.ModifyOrder(ctx, req)
}

// ClosePosition implements adapter.Adapter. The gateway flattens the whole
// contract, so the side hint is advisory only.
func (a *Adapter) ClosePosition(ctx context.Context, symbol string, _ *domain.TradeSide) error {
	client, accountID, _, err := a.session()
	if err != nil {
		return err
	}
	return client.ClosePosition(ctx, accountID, symbol)
}

// GetAccountInfo implements adapter.Adapter.
func (a *Adapter) GetAccountInfo(ctx context.Context) (domain.AccountSnapshot, error) {
	client, accountID, _, err := a.session()
	if err != nil {
		return domain.AccountSnapshot{}, err
	}

	accounts, err := client.SearchAccounts(ctx, false)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	for _, acct := range accounts {
		if acct.ID == accountID {
			return snapshotAccount(acct), nil
		}
	}
	return domain.AccountSnapshot{}, fmt.Errorf("projectx: session account missing: %w", domain.ErrNotFound)
}

// GetAllAccounts implements adapter.Adapter.
func (a *Adapter) GetAllAccounts(ctx context.Context) ([]domain.AccountSnapshot, error) {
	client, _, _, err := a.session()
	if err != nil {
		return nil, err
	}

	accounts, err := client.SearchAccounts(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AccountSnapshot, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, snapshotAccount(acct))
	}
	return out, nil
}

// OnTradeUpdate implements adapter.Adapter.
func (a *Adapter) OnTradeUpdate(h adapter.TradeHandler) adapter.Disposer {
	return a.hub.OnTrade(h)
}

// OnPositionUpdate implements adapter.Adapter.
func (a *Adapter) OnPositionUpdate(h adapter.PositionHandler) adapter.Disposer {
	return a.hub.OnPosition(h)
}

// Unsubscribe implements adapter.Adapter.
func (a *Adapter) Unsubscribe() {
	a.hub.Clear()
}

// session returns the live client or ErrNotConnected.
func (a *Adapter) session() (*Client, int64, string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected || a.client == nil {
		return nil, 0, "", domain.ErrNotConnected
	}
	return a.client, a.accountID, a.accountNumber, nil
}

// fetchTrades is the polling fallback's fetch function. It advances the
// since-cursor on every successful call.
func (a *Adapter) fetchTrades(ctx context.Context) ([]domain.TradeExecution, error) {
	client, accountID, accountNumber, err := a.session()
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	since := a.lastFetch
	a.mu.RUnlock()

	trades, err := client.SearchTrades(ctx, accountID, since)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.lastFetch = time.Now().UTC()
	a.mu.Unlock()

	out := make([]domain.TradeExecution, 0, len(trades))
	for _, t := range trades {
		out = append(out, normalizeTrade(t, accountNumber))
	}
	return out, nil
}

func snapshotAccount(acct pxAccount) domain.AccountSnapshot {
	return domain.AccountSnapshot{
		AccountID:     formatID(acct.ID),
		AccountNumber: acct.Name,
		Name:          acct.Name,
		Balance:       acct.Balance,
		Equity:        acct.Balance,
	}
}
