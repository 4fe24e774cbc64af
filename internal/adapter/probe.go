package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// Credential shapes tried by the auth probe, in order.
const (
	ShapeEmail   = "email"   // email + password
	ShapeAPIKey  = "apikey"  // apiKey + apiSecret
	ShapeAccount = "account" // username (= account number) + password
)

// AuthEndpoints is the ordered list of auth endpoint candidates probed
// against every base URL. Adapters for OAuth platforms may prepend variants.
var AuthEndpoints = []string{
	"/auth/login",
	"/api/auth/login",
	"/v1/auth/login",
	"/login",
	"/api/login",
	"/authenticate",
	"/api/authenticate",
	"/oauth/token",
}

// AccountEndpoints are the candidate account-listing paths used by endpoint
// discovery.
var AccountEndpoints = []string{
	"/api/accounts",
	"/accounts",
	"/v1/accounts",
	"/api/account",
	"/account/list",
}

// TradeEndpoints are the candidate trade-listing paths used by endpoint
// discovery and the polling fallback.
var TradeEndpoints = []string{
	"/api/trades",
	"/trades",
	"/v1/trades",
	"/fill/list",
	"/api/executions",
}

// Session is the result of a successful auth probe. The resolved tuple is
// cached for the lifetime of the connection so later requests skip probing.
type Session struct {
	BaseURL      string
	AuthEndpoint string
	AuthShape    string
	Token        string
}

// Prober walks base URL and endpoint candidates until one credential shape
// yields a 2xx auth response.
type Prober struct {
	client *http.Client
}

// NewProber creates a Prober using the given HTTP client. A nil client gets
// a 30 second timeout default.
func NewProber(client *http.Client) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Prober{client: client}
}

// Auth probes baseURLs x endpoints x credential shapes in order and returns
// the first session issued. Shapes whose credentials are absent are skipped.
// A 4xx response moves to the next candidate; a 5xx response abandons the
// base URL entirely. Returns domain.ErrAuthFailed when every candidate was
// rejected and domain.ErrTransport when no candidate was reachable at all.
func (p *Prober) Auth(ctx context.Context, baseURLs, endpoints []string, creds domain.Credentials, accountNumber string) (Session, error) {
	if len(endpoints) == 0 {
		endpoints = AuthEndpoints
	}

	shapes := credentialShapes(creds, accountNumber)
	if len(shapes) == 0 {
		return Session{}, fmt.Errorf("adapter: no usable credentials: %w", domain.ErrAuthFailed)
	}

	reachable := false
	for _, base := range baseURLs {
	endpointLoop:
		for _, ep := range endpoints {
			for _, shape := range shapes {
				status, token, err := p.tryAuth(ctx, base+ep, shape)
				if err != nil {
					if ctx.Err() != nil {
						return Session{}, ctx.Err()
					}
					// Unreachable endpoint: skip the whole base URL.
					break endpointLoop
				}
				reachable = true
				switch {
				case status >= 200 && status < 300:
					return Session{
						BaseURL:      base,
						AuthEndpoint: ep,
						AuthShape:    shape.name,
						Token:        token,
					}, nil
				case status >= 500:
					break endpointLoop
				}
				// 4xx: next shape, then next endpoint.
			}
		}
	}

	if !reachable {
		return Session{}, fmt.Errorf("adapter: no auth endpoint reachable: %w", domain.ErrTransport)
	}
	return Session{}, fmt.Errorf("adapter: all credential combinations rejected: %w", domain.ErrAuthFailed)
}

// Discover resolves the full endpoint tuple for a firm sharing a platform
// family: it probes auth, then verifies the account and trade paths with the
// issued token. This is how new firms are onboarded without hard-coded URLs.
func (p *Prober) Discover(ctx context.Context, baseURLs []string, creds domain.Credentials, accountNumber string) (domain.DiscoveredEndpoints, Session, error) {
	sess, err := p.Auth(ctx, baseURLs, nil, creds, accountNumber)
	if err != nil {
		return domain.DiscoveredEndpoints{}, Session{}, err
	}

	accountPath, err := p.firstReachable(ctx, sess, AccountEndpoints)
	if err != nil {
		return domain.DiscoveredEndpoints{}, Session{}, fmt.Errorf("adapter: discover account endpoint: %w", err)
	}
	tradesPath, err := p.firstReachable(ctx, sess, TradeEndpoints)
	if err != nil {
		return domain.DiscoveredEndpoints{}, Session{}, fmt.Errorf("adapter: discover trades endpoint: %w", err)
	}

	eps := domain.DiscoveredEndpoints{
		BaseURL:      sess.BaseURL,
		AuthEndpoint: sess.AuthEndpoint,
		AuthShape:    sess.AuthShape,
		AccountPath:  accountPath,
		TradesPath:   tradesPath,
		DiscoveredAt: time.Now().UTC(),
	}
	return eps, sess, nil
}

// firstReachable returns the first candidate path that answers 2xx with the
// session token attached.
func (p *Prober) firstReachable(ctx context.Context, sess Session, candidates []string) (string, error) {
	for _, path := range candidates {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sess.BaseURL+path, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Accept", "application/json")
		if sess.Token != "" {
			req.Header.Set("Authorization", "Bearer "+sess.Token)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return path, nil
		}
	}
	return "", fmt.Errorf("no candidate accepted the session: %w", domain.ErrTransport)
}

// credentialShape is one concrete auth payload variant.
type credentialShape struct {
	name    string
	payload map[string]string
}

// credentialShapes builds the ordered payload list from whatever credentials
// are present.
func credentialShapes(creds domain.Credentials, accountNumber string) []credentialShape {
	var shapes []credentialShape
	if creds.Email != "" && creds.Password != "" {
		shapes = append(shapes, credentialShape{
			name:    ShapeEmail,
			payload: map[string]string{"email": creds.Email, "password": creds.Password},
		})
	}
	if creds.APIKey != "" && creds.APISecret != "" {
		shapes = append(shapes, credentialShape{
			name:    ShapeAPIKey,
			payload: map[string]string{"apiKey": creds.APIKey, "apiSecret": creds.APISecret},
		})
	}
	if accountNumber != "" && creds.Password != "" {
		shapes = append(shapes, credentialShape{
			name:    ShapeAccount,
			payload: map[string]string{"username": accountNumber, "password": creds.Password},
		})
	}
	return shapes
}

// tryAuth POSTs one credential payload and extracts a session token from the
// response body when one was issued.
func (p *Prober) tryAuth(ctx context.Context, url string, shape credentialShape) (int, string, error) {
	body, err := json.Marshal(shape.payload)
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, "", err
	}

	return resp.StatusCode, ExtractToken(respBody), nil
}

// ExtractToken pulls a session token out of an auth response body. Providers
// disagree on the field name, so the well-known spellings are tried in order.
func ExtractToken(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"token", "accessToken", "access_token", "sessionToken", "session_token", "id_token"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	// Some providers nest the token under "data".
	if data, ok := payload["data"].(map[string]any); ok {
		for _, key := range []string{"token", "accessToken", "access_token"} {
			if v, ok := data[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}
