package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
	"github.com/skybread8/tradesyncer/internal/service"
)

// AccountHandler serves the trading-account resource.
type AccountHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// accountRequest is the write shape for accounts. Credential fields arriving
// empty on update keep the stored secret.
type accountRequest struct {
	Firm             string            `json:"firm"`
	Platform         string            `json:"platform"`
	AccountNumber    string            `json:"account_number"`
	Name             string            `json:"name"`
	AccountSize      float64           `json:"account_size"`
	Email            string            `json:"email"`
	Password         string            `json:"password"`
	APIKey           string            `json:"api_key"`
	APISecret        string            `json:"api_secret"`
	MaxDrawdown      *float64          `json:"max_drawdown"`
	DailyLossLimit   *float64          `json:"daily_loss_limit"`
	AdditionalConfig map[string]string `json:"additional_config"`
}

// accountResponse echoes an account without its secrets. Stored credentials
// surface only as presence booleans.
type accountResponse struct {
	ID             string     `json:"id"`
	Firm           string     `json:"firm"`
	Platform       string     `json:"platform"`
	AccountNumber  string     `json:"account_number"`
	Name           string     `json:"name"`
	AccountSize    float64    `json:"account_size"`
	CurrentBalance float64    `json:"current_balance"`
	Email          string     `json:"email"`
	HasPassword    bool       `json:"has_password"`
	HasAPIKey      bool       `json:"has_api_key"`
	IsConnected    bool       `json:"is_connected"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	MaxDrawdown    *float64   `json:"max_drawdown,omitempty"`
	DailyLossLimit *float64   `json:"daily_loss_limit,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toAccountResponse(a domain.TradingAccount) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Firm:           string(a.Firm),
		Platform:       string(a.Platform),
		AccountNumber:  a.AccountNumber,
		Name:           a.Name,
		AccountSize:    a.AccountSize,
		CurrentBalance: a.CurrentBalance,
		Email:          a.Credentials.Email,
		HasPassword:    a.Credentials.Password != "",
		HasAPIKey:      a.Credentials.APIKey != "",
		IsConnected:    a.IsConnected,
		LastSyncAt:     a.LastSyncAt,
		ErrorMessage:   a.ErrorMessage,
		MaxDrawdown:    a.MaxDrawdown,
		DailyLossLimit: a.DailyLossLimit,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toAccountResponses(accounts []domain.TradingAccount) []accountResponse {
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return out
}

// List returns the caller's accounts.
// GET /api/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context(), callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": toAccountResponses(accounts),
		"count":    len(accounts),
	})
}

// Create registers one account manually.
// POST /api/accounts
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accounts.Create(r.Context(), callerID(r), service.CreateParams{
		Firm:          domain.Firm(req.Firm),
		Platform:      domain.Platform(req.Platform),
		AccountNumber: req.AccountNumber,
		Name:          req.Name,
		AccountSize:   req.AccountSize,
		Credentials: domain.Credentials{
			Email:     req.Email,
			Password:  req.Password,
			APIKey:    req.APIKey,
			APISecret: req.APISecret,
		},
		MaxDrawdown:      req.MaxDrawdown,
		DailyLossLimit:   req.DailyLossLimit,
		AdditionalConfig: req.AdditionalConfig,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

// snapshotResponse echoes a live account snapshot.
type snapshotResponse struct {
	AccountNumber string  `json:"account_number"`
	Name          string  `json:"name"`
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	MarginUsed    float64 `json:"margin_used"`
}

func toSnapshotResponse(s domain.AccountSnapshot) snapshotResponse {
	return snapshotResponse{
		AccountNumber: s.AccountNumber,
		Name:          s.Name,
		Balance:       s.Balance,
		Equity:        s.Equity,
		MarginUsed:    s.MarginUsed,
	}
}

// ConnectPlatform logs in to a platform once and lists every account the
// credentials reach. Nothing is persisted; the client picks accounts and
// posts them to CreateFromPlatform.
// POST /api/accounts/platforms/connect
func (h *AccountHandler) ConnectPlatform(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Firm == "" || req.Platform == "" {
		writeError(w, http.StatusBadRequest, "firm and platform are required")
		return
	}

	discovery, err := h.accounts.ConnectPlatform(r.Context(), callerID(r),
		domain.Firm(req.Firm), domain.Platform(req.Platform),
		domain.Credentials{
			Email:     req.Email,
			Password:  req.Password,
			APIKey:    req.APIKey,
			APISecret: req.APISecret,
		},
		req.AdditionalConfig,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	snapshots := make([]snapshotResponse, 0, len(discovery.Accounts))
	for _, snap := range discovery.Accounts {
		snapshots = append(snapshots, toSnapshotResponse(snap))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": snapshots,
		"count":    len(snapshots),
		"credentials": map[string]any{
			"email":        discovery.Email,
			"has_password": discovery.HasPassword,
			"has_api_key":  discovery.HasAPIKey,
		},
	})
}

// createAccountsRequest imports accounts selected from a platform discovery.
type createAccountsRequest struct {
	Firm     string `json:"firm"`
	Platform string `json:"platform"`
	Accounts []struct {
		AccountNumber string  `json:"account_number"`
		Name          string  `json:"name"`
		Balance       float64 `json:"balance"`
	} `json:"accounts"`
	Email            string            `json:"email"`
	Password         string            `json:"password"`
	APIKey           string            `json:"api_key"`
	APISecret        string            `json:"api_secret"`
	AdditionalConfig map[string]string `json:"additional_config"`
}

// CreateFromPlatform persists accounts chosen from a platform discovery.
// POST /api/accounts/platforms/create-accounts
func (h *AccountHandler) CreateFromPlatform(w http.ResponseWriter, r *http.Request) {
	var req createAccountsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	discovered := make([]service.DiscoveredAccount, 0, len(req.Accounts))
	for _, a := range req.Accounts {
		discovered = append(discovered, service.DiscoveredAccount{
			AccountNumber: a.AccountNumber,
			Name:          a.Name,
			Balance:       a.Balance,
		})
	}

	accounts, err := h.accounts.CreateAccountsFromPlatform(r.Context(), callerID(r),
		domain.Firm(req.Firm), domain.Platform(req.Platform), discovered,
		domain.Credentials{
			Email:     req.Email,
			Password:  req.Password,
			APIKey:    req.APIKey,
			APISecret: req.APISecret,
		},
		req.AdditionalConfig,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"accounts": toAccountResponses(accounts),
		"count":    len(accounts),
	})
}

// Get returns one account.
// GET /api/accounts/{id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Get(r.Context(), pathParam(r, "id"), callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// Update rewrites the account's mutable fields.
// PUT /api/accounts/{id}
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.accounts.Update(r.Context(), callerID(r), domain.TradingAccount{
		ID:            pathParam(r, "id"),
		Firm:          domain.Firm(req.Firm),
		Platform:      domain.Platform(req.Platform),
		AccountNumber: req.AccountNumber,
		Name:          req.Name,
		AccountSize:   req.AccountSize,
		Credentials: domain.Credentials{
			Email:     req.Email,
			Password:  req.Password,
			APIKey:    req.APIKey,
			APISecret: req.APISecret,
		},
		MaxDrawdown:      req.MaxDrawdown,
		DailyLossLimit:   req.DailyLossLimit,
		AdditionalConfig: req.AdditionalConfig,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// Delete removes the account unless a copier still references it.
// DELETE /api/accounts/{id}
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Delete(r.Context(), pathParam(r, "id"), callerID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Connect opens the brokerage session for the account.
// POST /api/accounts/{id}/connect
func (h *AccountHandler) Connect(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.accounts.Connect(r.Context(), id, callerID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	account, err := h.accounts.Get(r.Context(), id, callerID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// Disconnect closes the brokerage session.
// POST /api/accounts/{id}/disconnect
func (h *AccountHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Disconnect(r.Context(), pathParam(r, "id"), callerID(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// TestConnection tries the submitted credentials with a throwaway session and
// reports whether they work. No account row is involved.
// POST /api/accounts/test-connection
func (h *AccountHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.accounts.TestConnection(r.Context(), service.TestConnectionParams{
		Firm:          domain.Firm(req.Firm),
		Platform:      domain.Platform(req.Platform),
		AccountNumber: req.AccountNumber,
		Credentials: domain.Credentials{
			Email:     req.Email,
			Password:  req.Password,
			APIKey:    req.APIKey,
			APISecret: req.APISecret,
		},
		AdditionalConfig: req.AdditionalConfig,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	body := map[string]any{
		"success": result.Success,
		"message": result.Message,
	}
	if result.Success {
		body["account"] = toSnapshotResponse(result.Account)
	}
	writeJSON(w, http.StatusOK, body)
}
