// Package projectx implements the brokerage adapter for the ProjectX gateway,
// the primary real platform behind TopstepX.
package projectx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// DefaultBaseURLs are the candidate REST roots, probed in order when no
// firm-level override is configured.
var DefaultBaseURLs = []string{
	"https://api.topstepx.com",
	"https://gateway-api-demo.s2f.projectx.com",
}

// DefaultWSURL is the user-hub stream endpoint.
const DefaultWSURL = "wss://rtc.topstepx.com/hubs/user"

// Client is the REST client for the ProjectX gateway API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a ProjectX REST client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Token returns the cached session token, empty before login.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// LoginKey authenticates with userName + API key and caches the session
// token.
func (c *Client) LoginKey(ctx context.Context, userName, apiKey string) error {
	return c.login(ctx, "/api/Auth/loginKey", loginKeyRequest{UserName: userName, APIKey: apiKey})
}

// LoginApp authenticates with userName + password.
func (c *Client) LoginApp(ctx context.Context, userName, password string) error {
	return c.login(ctx, "/api/Auth/loginApp", loginAppRequest{UserName: userName, Password: password})
}

func (c *Client) login(ctx context.Context, path string, payload any) error {
	body, err := c.doRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return fmt.Errorf("projectx: login: %w", err)
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("projectx: decode login response: %w", err)
	}
	if !resp.Success || resp.Token == "" {
		return fmt.Errorf("projectx: login rejected (%d): %s: %w",
			resp.ErrorCode, resp.ErrorMessage, domain.ErrAuthFailed)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()
	return nil
}

// SearchAccounts lists the accounts reachable under the session.
func (c *Client) SearchAccounts(ctx context.Context, onlyActive bool) ([]pxAccount, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/Account/search",
		accountSearchRequest{OnlyActiveAccounts: onlyActive})
	if err != nil {
		return nil, fmt.Errorf("projectx: search accounts: %w", err)
	}

	var resp accountSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("projectx: decode accounts: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("projectx: account search rejected: %s", resp.ErrorMessage)
	}
	return resp.Accounts, nil
}

// PlaceOrder submits an order for the account and returns the gateway order
// id.
func (c *Client) PlaceOrder(ctx context.Context, req placeOrderRequest) (int64, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/Order/place", req)
	if err != nil {
		return 0, fmt.Errorf("projectx: place order: %w", err)
	}

	var resp placeOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("projectx: decode order response: %w", err)
	}
	if !resp.Success {
		return 0, fmt.Errorf("projectx: order rejected (%d): %s", resp.ErrorCode, resp.ErrorMessage)
	}
	return resp.OrderID, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, accountID, orderID int64) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/Order/cancel",
		cancelOrderRequest{AccountID: accountID, OrderID: orderID})
	if err != nil {
		return fmt.Errorf("projectx: cancel order %d: %w", orderID, err)
	}
	return nil
}

// ModifyOrder updates size and/or prices of an open order.
func (c *Client) ModifyOrder(ctx context.Context, req modifyOrderRequest) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/Order/modify", req)
	if err != nil {
		return fmt.Errorf("projectx: modify order %d: %w", req.OrderID, err)
	}
	return nil
}

// ClosePosition flattens the contract for the account.
func (c *Client) ClosePosition(ctx context.Context, accountID int64, contractID string) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/Position/closeContract",
		closePositionRequest{AccountID: accountID, ContractID: contractID})
	if err != nil {
		return fmt.Errorf("projectx: close position %s: %w", contractID, err)
	}
	return nil
}

// SearchTrades returns executions for the account since the given time.
func (c *Client) SearchTrades(ctx context.Context, accountID int64, since time.Time) ([]pxTrade, error) {
	req := tradeSearchRequest{AccountID: accountID}
	if !since.IsZero() {
		req.StartTimestamp = since.UTC().Format(time.RFC3339)
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/Trade/search", req)
	if err != nil {
		return nil, fmt.Errorf("projectx: search trades: %w", err)
	}

	var resp tradeSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("projectx: decode trades: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("projectx: trade search rejected: %s", resp.ErrorMessage)
	}
	return resp.Trades, nil
}

// doRequest builds, sends, and reads an authenticated request against the
// gateway.
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

// checkStatus maps non-2xx HTTP status codes to domain errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("projectx: %s: %w", apiErr.ErrorMessage, domain.ErrAuthFailed)
	case http.StatusNotFound:
		return fmt.Errorf("projectx: %s: %w", apiErr.ErrorMessage, domain.ErrNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("projectx: %s: %w", apiErr.ErrorMessage, domain.ErrRateLimited)
	default:
		return fmt.Errorf("projectx: HTTP %d: %s: %w", statusCode, apiErr.ErrorMessage, domain.ErrTransport)
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
