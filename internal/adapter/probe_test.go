package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybread8/tradesyncer/internal/domain"
)

func TestProberAuthResolvesEndpointAndShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		if payload["apiKey"] == "" {
			// Email logins are rejected by this provider.
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "tok-123"})
	}))
	defer srv.Close()

	creds := domain.Credentials{
		Email:     "trader@example.com",
		Password:  "hunter22",
		APIKey:    "key",
		APISecret: "secret",
	}

	p := NewProber(srv.Client())
	sess, err := p.Auth(context.Background(), []string{srv.URL}, nil, creds, "")
	require.NoError(t, err)

	assert.Equal(t, srv.URL, sess.BaseURL)
	assert.Equal(t, "/api/auth/login", sess.AuthEndpoint)
	assert.Equal(t, ShapeAPIKey, sess.AuthShape)
	assert.Equal(t, "tok-123", sess.Token)
}

func TestProberAuthServerErrorAbandonsBaseURL(t *testing.T) {
	var brokenHits atomic.Int64
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		brokenHits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	}))
	defer healthy.Close()

	creds := domain.Credentials{Email: "trader@example.com", Password: "hunter22"}

	p := NewProber(nil)
	sess, err := p.Auth(context.Background(), []string{broken.URL, healthy.URL}, nil, creds, "")
	require.NoError(t, err)

	assert.Equal(t, healthy.URL, sess.BaseURL)
	// The first 5xx abandons the whole base URL; no other candidate is tried.
	assert.Equal(t, int64(1), brokenHits.Load())
}

func TestProberAuthAllRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	creds := domain.Credentials{Email: "trader@example.com", Password: "nope"}

	p := NewProber(srv.Client())
	_, err := p.Auth(context.Background(), []string{srv.URL}, nil, creds, "")
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
}

func TestProberAuthUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	creds := domain.Credentials{Email: "trader@example.com", Password: "hunter22"}

	p := NewProber(nil)
	_, err := p.Auth(context.Background(), []string{url}, nil, creds, "")
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestProberAuthWithoutCredentials(t *testing.T) {
	p := NewProber(nil)
	_, err := p.Auth(context.Background(), []string{"http://localhost:0"}, nil, domain.Credentials{}, "")
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
}

func TestProberDiscoverResolvesFullTuple(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/login":
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-xyz"})
		case r.Method == http.MethodGet && r.URL.Path == "/accounts":
			if r.Header.Get("Authorization") != "Bearer tok-xyz" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode([]any{})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/trades":
			if r.Header.Get("Authorization") != "Bearer tok-xyz" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode([]any{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	creds := domain.Credentials{Email: "trader@example.com", Password: "hunter22"}

	p := NewProber(srv.Client())
	eps, sess, err := p.Discover(context.Background(), []string{srv.URL}, creds, "")
	require.NoError(t, err)

	assert.Equal(t, srv.URL, eps.BaseURL)
	assert.Equal(t, "/login", eps.AuthEndpoint)
	assert.Equal(t, ShapeEmail, eps.AuthShape)
	assert.Equal(t, "/accounts", eps.AccountPath)
	assert.Equal(t, "/v1/trades", eps.TradesPath)
	assert.False(t, eps.DiscoveredAt.IsZero())
	assert.Equal(t, "tok-xyz", sess.Token)
}

func TestCredentialShapes(t *testing.T) {
	tests := []struct {
		name          string
		creds         domain.Credentials
		accountNumber string
		want          []string
	}{
		{
			name:  "email pair only",
			creds: domain.Credentials{Email: "a@b.c", Password: "pw"},
			want:  []string{ShapeEmail},
		},
		{
			name:  "api key pair only",
			creds: domain.Credentials{APIKey: "k", APISecret: "s"},
			want:  []string{ShapeAPIKey},
		},
		{
			name:          "account number plus password",
			creds:         domain.Credentials{Password: "pw"},
			accountNumber: "ACC-1",
			want:          []string{ShapeAccount},
		},
		{
			name:          "everything present keeps probe order",
			creds:         domain.Credentials{Email: "a@b.c", Password: "pw", APIKey: "k", APISecret: "s"},
			accountNumber: "ACC-1",
			want:          []string{ShapeEmail, ShapeAPIKey, ShapeAccount},
		},
		{
			name:  "password without a login name yields nothing",
			creds: domain.Credentials{Password: "pw"},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shapes := credentialShapes(tt.creds, tt.accountNumber)
			var names []string
			for _, s := range shapes {
				names = append(names, s.name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "token", body: `{"token":"a"}`, want: "a"},
		{name: "accessToken", body: `{"accessToken":"b"}`, want: "b"},
		{name: "snake case", body: `{"access_token":"c"}`, want: "c"},
		{name: "session token", body: `{"sessionToken":"d"}`, want: "d"},
		{name: "nested under data", body: `{"data":{"accessToken":"e"}}`, want: "e"},
		{name: "first spelling wins", body: `{"token":"a","accessToken":"b"}`, want: "a"},
		{name: "no token field", body: `{"ok":true}`, want: ""},
		{name: "not json", body: `<html>`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractToken([]byte(tt.body)))
		})
	}
}
