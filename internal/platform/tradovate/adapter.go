package tradovate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skybread8/tradesyncer/internal/adapter"
	"github.com/skybread8/tradesyncer/internal/domain"
)

// Config tunes one Tradovate adapter instance.
type Config struct {
	Firm                 domain.Firm
	BaseURLs             []string
	WSURL                string
	AppID                string
	HTTPTimeout          time.Duration
	PollInterval         time.Duration
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	ReconnectMaxAttempts int
	Logger               *slog.Logger
}

// Adapter implements adapter.Adapter for Tradovate. The realtime socket is
// preferred; the polling fallback fetches /fill/list when the socket cannot
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
	userID        int64
	accountNumber string
}

// New creates a Tradovate adapter for the given firm.
func New(cfg Config) *Adapter {
	if len(cfg.BaseURLs) == 0 {
		cfg.BaseURLs = DefaultBaseURLs
	}
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultWSURL
	}
	if cfg.AppID == "" {
		cfg.AppID = "tradesyncer"
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
	return a.cfg.Firm, domain.PlatformTradovate
}

// Connect requests an access token with the first working credential shape,
// resolves the target account, and attaches the realtime socket.
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
		return fmt.Errorf("tradovate: connect: %w", lastErr)
	}

	account, err := a.resolveAccount(ctx, client, cfg.AccountNumber)
	if err != nil {
		return fmt.Errorf("tradovate: connect: %w", err)
	}

	a.client = client
	a.accountID = account.ID
	a.userID = account.UserID
	a.accountNumber = account.Name
	a.connected = true

	wsURL := a.cfg.WSURL
	if cfg.WSURL != "" {
		wsURL = cfg.WSURL
	}

	backoff := adapter.NewBackoff(a.cfg.ReconnectBase, a.cfg.ReconnectCap, a.cfg.ReconnectMaxAttempts)
	ws := NewWSClient(wsURL, a.hub, backoff, a.cfg.Logger)
	ws.SetOnDown(a.markDisconnected)
	if err := ws.Connect(ctx, client.Token(), account.UserID, account.Name); err != nil {
		a.cfg.Logger.Warn("socket unavailable, starting polling fallback",
			slog.String("firm", string(a.cfg.Firm)),
			slog.String("error", err.Error()),
		)
		a.poller = adapter.NewPoller(a.cfg.PollInterval, a.fetchFills, a.hub, a.cfg.Logger)
		a.poller.Start(context.Background())
		return nil
	}
	a.ws = ws
	return nil
}

// authenticate tries username/password first, then the API key pair mapped
// to Tradovate's cid/sec fields.
func (a *Adapter) authenticate(ctx context.Context, c *Client, cfg adapter.ConnectConfig) error {
	creds := cfg.Credentials
	name := creds.Email
	if name == "" {
		name = cfg.AccountNumber
	}

	if name != "" && creds.Password != "" {
		req := accessTokenRequest{Name: name, Password: creds.Password, AppID: a.cfg.AppID, AppVersion: "1.0"}
		if err := c.RequestAccessToken(ctx, req); err == nil {
			return nil
		} else if creds.APIKey == "" {
			return err
		}
	}
	if creds.APIKey != "" && creds.APISecret != "" {
		req := accessTokenRequest{Name: name, CID: creds.APIKey, Sec: creds.APISecret, AppID: a.cfg.AppID, AppVersion: "1.0"}
		return c.RequestAccessToken(ctx, req)
	}
	return fmt.Errorf("no usable credentials: %w", domain.ErrAuthFailed)
}

func (a *Adapter) resolveAccount(ctx context.Context, c *Client, accountNumber string) (tvAccount, error) {
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return tvAccount{}, err
	}
	if len(accounts) == 0 {
		return tvAccount{}, fmt.Errorf("no accounts: %w", domain.ErrNotFound)
	}
	if accountNumber != "" {
		for _, acct := range accounts {
			if acct.Name == accountNumber || formatID(acct.ID) == accountNumber {
				return acct, nil
			}
		}
		return tvAccount{}, fmt.Errorf("account %s not reachable under session: %w", accountNumber, domain.ErrNotFound)
	}
	return accounts[0], nil
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

// IsConnected implements adapter.Adapter.
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

// PlaceOrder implements adapter.Adapter.
func (a *Adapter) PlaceOrder(ctx context.Context, order domain.TradeOrder) (domain.TradeExecution, error) {
	client, accountID, accountNumber, err := a.session()
	if err != nil {
		return domain.TradeExecution{}, err
	}

	req := placeOrderRequest{
		AccountSpec: accountNumber,
		AccountID:   accountID,
		Action:      encodeAction(order.Side),
		Symbol:      order.Symbol,
		OrderQty:    order.Quantity,
		OrderType:   encodeOrderType(order.Type),
		IsAutomated: true,
	}
	switch order.Type {
	case domain.TypeLimit:
		req.Price = order.Price
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
	client, _, _, err := a.session()
	if err != nil {
		return err
	}
	orderID, err := parseID(externalOrderID)
	if err != nil {
		return fmt.Errorf("tradovate: bad order id %q: %w", externalOrderID, domain.ErrValidation)
	}
	return client.CancelOrder(ctx, orderID)
}

// ModifyOrder implements adapter.Adapter.
func (a *Adapter) ModifyOrder(ctx context.Context, externalOrderID string, updates domain.TradeOrder) error {
	client, _, _, err := a.session()
	if err != nil {
		return err
	}
	orderID, err := parseID(externalOrderID)
	if err != nil {
		return fmt.Errorf("tradovate: bad order id %q: %w", externalOrderID, domain.ErrValidation)
	}

	req := modifyOrderRequest{OrderID: orderID}
	if updates.Quantity > 0 {
		req.OrderQty = &updates.Quantity
	}
	switch updates.Type {
	case domain.TypeLimit:
		req.Price = updates.Price
	case domain.TypeStop:
		req.StopPrice = updates.Price
	}
	return client.ModifyOrder(ctx, req)
}

// ClosePosition implements adapter.Adapter. The side hint is advisory;
// liquidation flattens the whole contract.
func (a *Adapter) ClosePosition(ctx context.Context, symbol string, _ *domain.TradeSide) error {
	client, accountID, _, err := a.session()
	if err != nil {
		return err
	}
	contractID, err := client.FindContract(ctx, symbol)
	if err != nil {
		return err
	}
	return client.LiquidatePosition(ctx, liquidateRequest{AccountID: accountID, ContractID: contractID})
}

// GetAccountInfo implements adapter.Adapter.
func (a *Adapter) GetAccountInfo(ctx context.Context) (domain.AccountSnapshot, error) {
	client, accountID, accountNumber, err := a.session()
	if err != nil {
		return domain.AccountSnapshot{}, err
	}

	snap, err := client.CashBalanceSnapshot(ctx, accountID)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	positions, err := client.ListPositions(ctx)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}

	out := domain.AccountSnapshot{
		AccountID:     formatID(accountID),
		AccountNumber: accountNumber,
		Name:          accountNumber,
		Balance:       snap.TotalCashValue,
		Equity:        snap.TotalCashValue + snap.OpenPnL,
		MarginUsed:    snap.InitialMargin,
	}
	for _, p := range positions {
		if p.NetPos != 0 {
			out.Positions = append(out.Positions, normalizePosition(p))
		}
	}
	return out, nil
}

// GetAllAccounts implements adapter.Adapter.
func (a *Adapter) GetAllAccounts(ctx context.Context) ([]domain.AccountSnapshot, error) {
	client, _, _, err := a.session()
	if err != nil {
		return nil, err
	}

	accounts, err := client.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.AccountSnapshot, 0, len(accounts))
	for _, acct := range accounts {
		snap := domain.AccountSnapshot{
			AccountID:     formatID(acct.ID),
			AccountNumber: acct.Name,
			Name:          acct.Name,
		}
		if bal, err := client.CashBalanceSnapshot(ctx, acct.ID); err == nil {
			snap.Balance = bal.TotalCashValue
			snap.Equity = bal.TotalCashValue + bal.OpenPnL
			snap.MarginUsed = bal.InitialMargin
		}
		out = append(out, snap)
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

func (a *Adapter) session() (*Client, int64, string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected || a.client == nil {
		return nil, 0, "", domain.ErrNotConnected
	}
	return a.client, a.accountID, a.accountNumber, nil
}

// fetchFills is the polling fallback's fetch function.
func (a *Adapter) fetchFills(ctx context.Context) ([]domain.TradeExecution, error) {
	client, _, accountNumber, err := a.session()
	if err != nil {
		return nil, err
	}

	fills, err := client.ListFills(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TradeExecution, 0, len(fills))
	for _, f := range fills {
		out = append(out, normalizeFill(f, accountNumber))
	}
	return out, nil
}
