// Package ninjatrader implements the brokerage adapter for firms whose
// accounts run on hosted NinjaTrader bridges. Like the Rithmic gateways
// these expose bespoke REST fronts per firm, so sessions come from the
// shared auth probe and executions from the polling fallback.
package ninjatrader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/skybread8/tradesyncer/internal/adapter"
	"github.com/skybread8/tradesyncer/internal/domain"
)

var firmBaseURLs = map[domain.Firm][]string{
	domain.FirmTakeProfit:      {"https://nt.takeprofittrader.com", "https://api.takeprofittrader.com/nt"},
	domain.FirmMyFundedFutures: {"https://nt.myfundedfutures.com", "https://api.myfundedfutures.com/nt"},
}

const (
	orderPath  = "/api/orders"
	cancelPath = "/api/orders/%s/cancel"
	modifyPath = "/api/orders/%s"
	closePath  = "/api/positions/flatten"
)

// Config tunes one NinjaTrader adapter instance.
type Config struct {
	Firm            domain.Firm
	BaseURLs        []string
	EnableDiscovery bool
	HTTPTimeout     time.Duration
	PollInterval    time.Duration
	Logger          *slog.Logger
}

// Adapter implements adapter.Adapter over a probed NinjaTrader bridge
// session.
type Adapter struct {
	cfg        Config
	hub        *adapter.Hub
	httpClient *http.Client
	prober     *adapter.Prober

	mu        sync.RWMutex
	connected bool
	session   adapter.Session
	endpoints domain.DiscoveredEndpoints
	account   string
	poller    *adapter.Poller
}

// New creates a NinjaTrader adapter for the given firm.
func New(cfg Config) *Adapter {
	if len(cfg.BaseURLs) == 0 {
		cfg.BaseURLs = firmBaseURLs[cfg.Firm]
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	return &Adapter{
		cfg:        cfg,
		hub:        adapter.NewHub(),
		httpClient: httpClient,
		prober:     adapter.NewProber(httpClient),
	}
}

// Identity implements adapter.Adapter.
func (a *Adapter) Identity() (domain.Firm, domain.Platform) {
	return a.cfg.Firm, domain.PlatformNinjaTrader
}

// Connect establishes a session, preferring a cached endpoint tuple over a
// fresh probe.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.ConnectConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		return nil
	}

	baseURLs := a.cfg.BaseURLs
	if cfg.BaseURL != "" {
		baseURLs = append([]string{cfg.BaseURL}, baseURLs...)
	}

	var sess adapter.Session
	var eps domain.DiscoveredEndpoints
	var err error

	switch {
	case cfg.Cached != nil:
		sess, err = a.prober.Auth(ctx,
			[]string{cfg.Cached.BaseURL},
			[]string{cfg.Cached.AuthEndpoint},
			cfg.Credentials, cfg.AccountNumber)
		if err != nil {
			return fmt.Errorf("ninjatrader: cached endpoint login: %w", err)
		}
		eps = *cfg.Cached

	case a.cfg.EnableDiscovery:
		eps, sess, err = a.prober.Discover(ctx, baseURLs, cfg.Credentials, cfg.AccountNumber)
		if err != nil {
			return fmt.Errorf("ninjatrader: discovery: %w", err)
		}

	default:
		sess, err = a.prober.Auth(ctx, baseURLs, nil, cfg.Credentials, cfg.AccountNumber)
		if err != nil {
			return fmt.Errorf("ninjatrader: auth probe: %w", err)
		}
		eps = domain.DiscoveredEndpoints{
			BaseURL:      sess.BaseURL,
			AuthEndpoint: sess.AuthEndpoint,
			AuthShape:    sess.AuthShape,
			AccountPath:  adapter.AccountEndpoints[0],
			TradesPath:   "/api/executions",
			DiscoveredAt: time.Now().UTC(),
		}
	}

	a.session = sess
	a.endpoints = eps
	a.account = cfg.AccountNumber
	a.connected = true

	a.poller = adapter.NewPoller(a.cfg.PollInterval, a.fetchExecutions, a.hub, a.cfg.Logger)
	a.poller.Start(context.Background())
	return nil
}

// Endpoints returns the resolved endpoint tuple for caching by the caller.
func (a *Adapter) Endpoints() domain.DiscoveredEndpoints {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.endpoints
}

// Disconnect implements adapter.Adapter. Idempotent.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.poller != nil {
		a.poller.Stop()
		a.poller = nil
	}
	a.connected = false
	a.session = adapter.Session{}
	return nil
}

// IsConnected implements adapter.Adapter.
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// PlaceOrder implements adapter.Adapter.
func (a *Adapter) PlaceOrder(ctx context.Context, order domain.TradeOrder) (domain.TradeExecution, error) {
	sess, account, err := a.liveSession()
	if err != nil {
		return domain.TradeExecution{}, err
	}

	req := ntOrderRequest{
		Account:      account,
		Instrument:   order.Symbol,
		Action:       encodeAction(order.Side),
		OrderType:    encodeOrderType(order.Type),
		Quantity:     order.Quantity,
		StopLoss:     order.StopLoss,
		ProfitTarget: order.TakeProfit,
	}
	switch order.Type {
	case domain.TypeLimit:
		req.LimitPrice = order.Price
	case domain.TypeStop:
		req.StopPrice = order.Price
	}

	body, err := a.doJSON(ctx, sess, http.MethodPost, orderPath, req)
	if err != nil {
		return domain.TradeExecution{}, fmt.Errorf("ninjatrader: place order: %w", err)
	}

	var resp ntOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.TradeExecution{}, fmt.Errorf("ninjatrader: decode order response: %w", err)
	}

	return domain.TradeExecution{
		ExternalOrderID: resp.orderID(),
		AccountNumber:   account,
		Symbol:          order.Symbol,
		Side:            order.Side,
		Type:            order.Type,
		Quantity:        order.Quantity,
		StopLoss:        order.StopLoss,
		TakeProfit:      order.TakeProfit,
		Status:          normalizeState(resp.OrderState),
		ExecutedAt:      time.Now().UTC(),
	}, nil
}

// CancelOrder implements adapter.Adapter.
func (a *Adapter) CancelOrder(ctx context.Context, externalOrderID string) error {
	sess, _, err := a.liveSession()
	if err != nil {
		return err
	}
	if _, err := a.doJSON(ctx, sess, http.MethodPost, fmt.Sprintf(cancelPath, externalOrderID), nil); err != nil {
		return fmt.Errorf("ninjatrader: cancel order %s: %w", externalOrderID, err)
	}
	return nil
}

// ModifyOrder implements adapter.Adapter.
func (a *Adapter) ModifyOrder(ctx context.Context, externalOrderID string, updates domain.TradeOrder) error {
	sess, account, err := a.liveSession()
	if err != nil {
		return err
	}

	req := ntOrderRequest{
		Account:      account,
		Instrument:   updates.Symbol,
		Quantity:     updates.Quantity,
		StopLoss:     updates.StopLoss,
		ProfitTarget: updates.TakeProfit,
	}
	switch updates.Type {
	case domain.TypeLimit:
		req.LimitPrice = updates.Price
	case domain.TypeStop:
		req.StopPrice = updates.Price
	}

	if _, err := a.doJSON(ctx, sess, http.MethodPatch, fmt.Sprintf(modifyPath, externalOrderID), req); err != nil {
		return fmt.Errorf("ninjatrader: modify order %s: %w", externalOrderID, err)
	}
	return nil
}

// ClosePosition implements adapter.Adapter.
func (a *Adapter) ClosePosition(ctx context.Context, symbol string, side *domain.TradeSide) error {
	sess, account, err := a.liveSession()
	if err != nil {
		return err
	}

	payload := map[string]string{"account": account, "instrument": symbol}
	if side != nil {
		payload["action"] = encodeAction(*side)
	}
	if _, err := a.doJSON(ctx, sess, http.MethodPost, closePath, payload); err != nil {
		return fmt.Errorf("ninjatrader: flatten %s: %w", symbol, err)
	}
	return nil
}

// GetAccountInfo implements adapter.Adapter.
func (a *Adapter) GetAccountInfo(ctx context.Context) (domain.AccountSnapshot, error) {
	accounts, err := a.GetAllAccounts(ctx)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	if len(accounts) == 0 {
		return domain.AccountSnapshot{}, fmt.Errorf("ninjatrader: no accounts: %w", domain.ErrNotFound)
	}

	a.mu.RLock()
	account := a.account
	a.mu.RUnlock()
	if account != "" {
		for _, snap := range accounts {
			if snap.AccountNumber == account || snap.AccountID == account {
				return snap, nil
			}
		}
	}
	return accounts[0], nil
}

// GetAllAccounts implements adapter.Adapter.
func (a *Adapter) GetAllAccounts(ctx context.Context) ([]domain.AccountSnapshot, error) {
	sess, _, err := a.liveSession()
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	path := a.endpoints.AccountPath
	a.mu.RUnlock()

	body, err := a.doJSON(ctx, sess, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("ninjatrader: fetch accounts: %w", err)
	}

	var resp ntAccountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		var bare []ntAccount
		if err2 := json.Unmarshal(body, &bare); err2 != nil {
			return nil, fmt.Errorf("ninjatrader: decode accounts: %w", err)
		}
		resp.Accounts = bare
	}

	raw := resp.all()
	out := make([]domain.AccountSnapshot, 0, len(raw))
	for _, acct := range raw {
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

func (a *Adapter) liveSession() (adapter.Session, string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return adapter.Session{}, "", domain.ErrNotConnected
	}
	return a.session, a.account, nil
}

func (a *Adapter) fetchExecutions(ctx context.Context) ([]domain.TradeExecution, error) {
	sess, _, err := a.liveSession()
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	path := a.endpoints.TradesPath
	a.mu.RUnlock()

	body, err := a.doJSON(ctx, sess, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("ninjatrader: fetch executions: %w", err)
	}

	var resp ntExecutionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		var bare []ntExecution
		if err2 := json.Unmarshal(body, &bare); err2 != nil {
			return nil, fmt.Errorf("ninjatrader: decode executions: %w", err)
		}
		resp.Executions = bare
	}

	raw := resp.all()
	out := make([]domain.TradeExecution, 0, len(raw))
	for _, e := range raw {
		out = append(out, normalizeExecution(e))
	}
	return out, nil
}

func (a *Adapter) doJSON(ctx context.Context, sess adapter.Session, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, sess.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrAuthFailed)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrNotFound)
	default:
		return nil, fmt.Errorf("HTTP %d: %w", resp.StatusCode, domain.ErrTransport)
	}
}
