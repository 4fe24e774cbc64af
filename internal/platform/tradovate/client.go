// Package tradovate implements the brokerage adapter for the Tradovate API,
// used by TakeProfit Trader and MyFunded Futures accounts.
package tradovate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// DefaultBaseURLs are the candidate REST roots, live first.
var DefaultBaseURLs = []string{
	"https://live.tradovateapi.com/v1",
	"https://demo.tradovateapi.com/v1",
}

// DefaultWSURL is the realtime socket endpoint.
const DefaultWSURL = "wss://md.tradovateapi.com/v1/websocket"

// Client is the REST client for the Tradovate API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a Tradovate REST client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Token returns the cached access token, empty before authentication.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// RequestAccessToken authenticates with username/password or API key pair
// (cid/sec) and caches the access token.
func (c *Client) RequestAccessToken(ctx context.Context, req accessTokenRequest) error {
	body, err := c.doRequest(ctx, http.MethodPost, "/auth/accesstokenrequest", req)
	if err != nil {
		return fmt.Errorf("tradovate: access token request: %w", err)
	}

	var resp accessTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("tradovate: decode access token: %w", err)
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("tradovate: token refused: %s: %w", resp.ErrorText, domain.ErrAuthFailed)
	}

	c.mu.Lock()
	c.token = resp.AccessToken
	c.mu.Unlock()
	return nil
}

// ListAccounts returns all accounts reachable under the session.
func (c *Client) ListAccounts(ctx context.Context) ([]tvAccount, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/account/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tradovate: list accounts: %w", err)
	}
	var accounts []tvAccount
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, fmt.Errorf("tradovate: decode accounts: %w", err)
	}
	return accounts, nil
}

// CashBalanceSnapshot returns the balance snapshot for one account.
func (c *Client) CashBalanceSnapshot(ctx context.Context, accountID int64) (cashBalanceSnapshot, error) {
	payload := map[string]int64{"accountId": accountID}
	body, err := c.doRequest(ctx, http.MethodPost, "/cashBalance/getcashbalancesnapshot", payload)
	if err != nil {
		return cashBalanceSnapshot{}, fmt.Errorf("tradovate: cash balance snapshot: %w", err)
	}
	var snap cashBalanceSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return cashBalanceSnapshot{}, fmt.Errorf("tradovate: decode cash balance: %w", err)
	}
	return snap, nil
}

// PlaceOrder submits an order and returns the Tradovate order id.
func (c *Client) PlaceOrder(ctx context.Context, req placeOrderRequest) (int64, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/order/placeorder", req)
	if err != nil {
		return 0, fmt.Errorf("tradovate: place order: %w", err)
	}

	var resp placeOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("tradovate: decode order response: %w", err)
	}
	if resp.FailureReason != "" {
		return 0, fmt.Errorf("tradovate: order rejected: %s (%s)", resp.FailureReason, resp.FailureText)
	}
	return resp.OrderID, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	payload := map[string]int64{"orderId": orderID}
	if _, err := c.doRequest(ctx, http.MethodPost, "/order/cancelorder", payload); err != nil {
		return fmt.Errorf("tradovate: cancel order %d: %w", orderID, err)
	}
	return nil
}

// ModifyOrder updates quantity and/or prices of an open order.
func (c *Client) ModifyOrder(ctx context.Context, req modifyOrderRequest) error {
	if _, err := c.doRequest(ctx, http.MethodPost, "/order/modifyorder", req); err != nil {
		return fmt.Errorf("tradovate: modify order %d: %w", req.OrderID, err)
	}
	return nil
}

// LiquidatePosition flattens the contract on the account.
func (c *Client) LiquidatePosition(ctx context.Context, req liquidateRequest) error {
	if _, err := c.doRequest(ctx, http.MethodPost, "/order/liquidateposition", req); err != nil {
		return fmt.Errorf("tradovate: liquidate position: %w", err)
	}
	return nil
}

// FindContract resolves a symbol to its contract id.
func (c *Client) FindContract(ctx context.Context, symbol string) (int64, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/contract/find?name="+url.QueryEscape(symbol), nil)
	if err != nil {
		return 0, fmt.Errorf("tradovate: find contract %s: %w", symbol, err)
	}
	var contract struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &contract); err != nil {
		return 0, fmt.Errorf("tradovate: decode contract: %w", err)
	}
	if contract.ID == 0 {
		return 0, fmt.Errorf("tradovate: contract %s: %w", symbol, domain.ErrNotFound)
	}
	return contract.ID, nil
}

// ListFills returns recent fills for the session user.
func (c *Client) ListFills(ctx context.Context) ([]tvFill, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/fill/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tradovate: list fills: %w", err)
	}
	var fills []tvFill
	if err := json.Unmarshal(body, &fills); err != nil {
		return nil, fmt.Errorf("tradovate: decode fills: %w", err)
	}
	return fills, nil
}

// ListPositions returns open positions for the session user.
func (c *Client) ListPositions(ctx context.Context) ([]tvPosition, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/position/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tradovate: list positions: %w", err)
	}
	var positions []tvPosition
	if err := json.Unmarshal(body, &positions); err != nil {
		return nil, fmt.Errorf("tradovate: decode positions: %w", err)
	}
	return positions, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("tradovate: %s: %w", msg, domain.ErrAuthFailed)
	case http.StatusNotFound:
		return fmt.Errorf("tradovate: %s: %w", msg, domain.ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("tradovate: %s: %w", msg, domain.ErrRateLimited)
	default:
		return fmt.Errorf("tradovate: HTTP %d: %s: %w", statusCode, msg, domain.ErrTransport)
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
