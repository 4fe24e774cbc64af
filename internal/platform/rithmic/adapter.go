// Package rithmic implements the brokerage adapter for firms fronting the
// Rithmic platform behind REST gateways. These firms publish no stable API
// documentation, so sessions are established through the shared auth probe
// (or full endpoint discovery) and executions arrive via the polling
// fallback; there is no push stream.
package rithmic

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

// firmBaseURLs maps each Rithmic-fronted firm to its candidate gateway
// roots, probed in order.
var firmBaseURLs = map[domain.Firm][]string{
	domain.FirmTopstepX:        {"https://api.topstep.com", "https://gateway.topstep.com"},
	domain.FirmTakeProfit:      {"https://api.takeprofittrader.com", "https://dashboard.takeprofittrader.com/api"},
	domain.FirmMyFundedFutures: {"https://api.myfundedfutures.com", "https://app.myfundedfutures.com/api"},
	domain.FirmAlphaFutures:    {"https://api.alphafutures.com", "https://app.alpha-futures.com/api"},
	domain.FirmTradeify:        {"https://api.tradeify.co", "https://app.tradeify.co/api"},
}

// Default order paths relative to the discovered base URL.
const (
	orderPath  = "/api/orders"
	cancelPath = "/api/orders/%s/cancel"
	modifyPath = "/api/orders/%s"
	closePath  = "/api/positions/close"
)

// Config tunes one Rithmic adapter instance.
type Config struct {
	Firm            domain.Firm
	BaseURLs        []string // overrides firmBaseURLs when set
	EnableDiscovery bool
	HTTPTimeout     time.Duration
	PollInterval    time.Duration
	Logger          *slog.Logger
}

// Adapter implements adapter.Adapter over a probed Rithmic gateway session.
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
	lastPoll  time.Time
}

// New creates a Rithmic adapter for the given firm.
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
	return a.cfg.Firm, domain.PlatformRithmic
}

// Connect establishes a session. A cached endpoint tuple skips probing; with
// discovery enabled the full tuple is resolved and exposed for caching.
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
			return fmt.Errorf("rithmic: cached endpoint login: %w", err)
		}
		eps = *cfg.Cached

	case a.cfg.EnableDiscovery:
		eps, sess, err = a.prober.Discover(ctx, baseURLs, cfg.Credentials, cfg.AccountNumber)
		if err != nil {
			return fmt.Errorf("rithmic: discovery: %w", err)
		}

	default:
		sess, err = a.prober.Auth(ctx, baseURLs, nil, cfg.Credentials, cfg.AccountNumber)
		if err != nil {
			return fmt.Errorf("rithmic: auth probe: %w", err)
		}
		eps = domain.DiscoveredEndpoints{
			BaseURL:      sess.BaseURL,
			AuthEndpoint: sess.AuthEndpoint,
			AuthShape:    sess.AuthShape,
			AccountPath:  adapter.AccountEndpoints[0],
			TradesPath:   adapter.TradeEndpoints[0],
			DiscoveredAt: time.Now().UTC(),
		}
	}

	a.session = sess
	a.endpoints = eps
	a.account = cfg.AccountNumber
	a.connected = true
	a.lastPoll = time.Now().UTC()

	// No push stream on these gateways: polling is the delivery path.
	a.poller = adapter.NewPoller(a.cfg.PollInterval, a.fetchTrades, a.hub, a.cfg.Logger)
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

	req := rtOrderRequest{
		Account:    account,
		Symbol:     order.Symbol,
		Side:       encodeSide(order.Side),
		Type:       encodeType(order.Type),
		Quantity:   order.Quantity,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
	}
	switch order.Type {
	case domain.TypeLimit:
		req.LimitPrice = order.Price
	case domain.TypeStop:
		req.StopPrice = order.Price
	}

	body, err := a.doJSON(ctx, sess, http.MethodPost, orderPath, req)
	if err != nil {
		return domain.TradeExecution{}, fmt.Errorf("rithmic: place order: %w", err)
	}

	var resp rtOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.TradeExecution{}, fmt.Errorf("rithmic: decode order response: %w", err)
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
		Status:          NormalizeStatus(resp.Status),
		ExecutedAt:      time.Now().UTC(),
	}, nil
}

// CancelOrder implements adapter.Adapter.
func (a *Adapter) CancelOrder(ctx context.Context, externalOrderID string) error {
	sess, _, err := a.liveSession()
	if err != nil {
		return err
	}
	_, err = a.doJSON(ctx, sess, http.MethodPost, fmt.Sprintf(cancelPath, externalOrderID), nil)
	if err != nil {
		return fmt.Errorf("rithmic: cancel order %s: %w", externalOrderID, err)
	}
	return nil
}

// ModifyOrder implements adapter.Adapter.
func (a *Adapter) ModifyOrder(ctx context.Context, externalOrderID string, updates domain.TradeOrder) error {
	sess, account, err := a.liveSession()
	if err != nil {
		return err
	}

	req := rtOrderRequest{
		Account:    account,
		Symbol:     updates.Symbol,
		Quantity:   updates.Quantity,
		StopLoss:   updates.StopLoss,
		TakeProfit: updates.TakeProfit,
	}
	switch updates.Type {
	case domain.TypeLimit:
		req.LimitPrice = updates.Price
	case domain.TypeStop:
		req.StopPrice = updates.Price
	}

	_, err = a.doJSON(ctx, sess, http.MethodPatch, fmt.Sprintf(modifyPath, externalOrderID), req)
	if err != nil {
		return fmt.Errorf("rithmic: modify order %s: %w", externalOrderID, err)
	}
	return nil
}

// ClosePosition implements adapter.Adapter.
func (a *Adapter) ClosePosition(ctx context.Context, symbol string, side *domain.TradeSide) error {
	sess, account, err := a.liveSession()
	if err != nil {
		return err
	}

	payload := map[string]string{"account": account, "symbol": symbol}
	if side != nil {
		payload["side"] = encodeSide(*side)
	}
	_, err = a.doJSON(ctx, sess, http.MethodPost, closePath, payload)
	if err != nil {
		return fmt.Errorf("rithmic: close position %s: %w", symbol, err)
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
		return domain.AccountSnapshot{}, fmt.Errorf("rithmic: no accounts: %w", domain.ErrNotFound)
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
		return nil, fmt.Errorf("rithmic: fetch accounts: %w", err)
	}

	var resp rtAccountsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// Some gateways return a bare array.
		var bare []rtAccount
		if err2 := json.Unmarshal(body, &bare); err2 != nil {
			return nil, fmt.Errorf("rithmic: decode accounts: %w", err)
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

// fetchTrades is the polling delivery path.
func (a *Adapter) fetchTrades(ctx context.Context) ([]domain.TradeExecution, error) {
	sess, _, err := a.liveSession()
	if err != nil {
		return nil, err
	}

	a.mu.RLock()
	path := a.endpoints.TradesPath
	a.mu.RUnlock()

	body, err := a.doJSON(ctx, sess, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("rithmic: fetch trades: %w", err)
	}

	var resp rtTradesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		var bare []rtTrade
		if err2 := json.Unmarshal(body, &bare); err2 != nil {
			return nil, fmt.Errorf("rithmic: decode trades: %w", err)
		}
		resp.Trades = bare
	}

	raw := resp.all()
	out := make([]domain.TradeExecution, 0, len(raw))
	for _, t := range raw {
		out = append(out, normalizeTrade(t))
	}
	return out, nil
}

// doJSON sends one authenticated request against the session base URL.
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
