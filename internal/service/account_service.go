// Package service implements the application use-cases on top of the domain
// stores, the adapter registry, and the replication engine. Every operation
// is scoped to the calling user; foreign resources read as not found.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/skybread8/tradesyncer/internal/adapter"
	"github.com/skybread8/tradesyncer/internal/domain"
)

// AccountService manages trading accounts and their brokerage sessions.
type AccountService struct {
	accounts  domain.AccountStore
	copiers   domain.CopierStore
	configs   domain.ConfigStore
	registry  *adapter.Registry
	discovery domain.DiscoveryCache
	logger    *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(
	accounts domain.AccountStore,
	copiers domain.CopierStore,
	configs domain.ConfigStore,
	registry *adapter.Registry,
	discovery domain.DiscoveryCache,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts:  accounts,
		copiers:   copiers,
		configs:   configs,
		registry:  registry,
		discovery: discovery,
		logger:    logger.With(slog.String("component", "account_service")),
	}
}

// CreateParams carries the fields needed to register one account manually.
type CreateParams struct {
	Firm             domain.Firm
	Platform         domain.Platform
	AccountNumber    string
	Name             string
	AccountSize      float64
	Credentials      domain.Credentials
	MaxDrawdown      *float64
	DailyLossLimit   *float64
	AdditionalConfig map[string]string
}

func (p CreateParams) validate() error {
	if p.Firm == "" || p.Platform == "" {
		return fmt.Errorf("service: firm and platform are required: %w", domain.ErrValidation)
	}
	if strings.TrimSpace(p.AccountNumber) == "" {
		return fmt.Errorf("service: account number is required: %w", domain.ErrValidation)
	}
	creds := p.Credentials
	if (creds.Email == "" || creds.Password == "") && (creds.APIKey == "" || creds.APISecret == "") && creds.Password == "" {
		return fmt.Errorf("service: either email/password or api key pair is required: %w", domain.ErrValidation)
	}
	return nil
}

// Create registers one account for the user.
func (s *AccountService) Create(ctx context.Context, userID string, p CreateParams) (domain.TradingAccount, error) {
	if err := p.validate(); err != nil {
		return domain.TradingAccount{}, err
	}

	account := domain.TradingAccount{
		ID:               uuid.New().String(),
		UserID:           userID,
		Firm:             p.Firm,
		Platform:         p.Platform,
		AccountNumber:    p.AccountNumber,
		Name:             p.Name,
		AccountSize:      p.AccountSize,
		Credentials:      p.Credentials,
		MaxDrawdown:      p.MaxDrawdown,
		DailyLossLimit:   p.DailyLossLimit,
		AdditionalConfig: p.AdditionalConfig,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return domain.TradingAccount{}, err
	}

	s.logger.InfoContext(ctx, "account created",
		slog.String("account_id", account.ID),
		slog.String("firm", string(account.Firm)),
		slog.String("platform", string(account.Platform)),
	)
	return s.accounts.GetByID(ctx, account.ID)
}

// PlatformDiscovery is the outcome of a one-shot platform login: the accounts
// the credentials reach plus a masked echo of what was supplied. Secrets never
// appear here, only presence booleans.
type PlatformDiscovery struct {
	Accounts    []domain.AccountSnapshot
	Email       string
	HasPassword bool
	HasAPIKey   bool
}

// ConnectPlatform authenticates against the platform once, enumerates every
// account the credentials reach, and closes the session again. Nothing is
// persisted; pair with CreateAccountsFromPlatform to import the discovery.
func (s *AccountService) ConnectPlatform(ctx context.Context, userID string, firm domain.Firm, platform domain.Platform, creds domain.Credentials, extra map[string]string) (PlatformDiscovery, error) {
	ad, err := s.registry.Get(platform, firm)
	if err != nil {
		return PlatformDiscovery{}, err
	}

	cc := adapter.ConnectConfig{Credentials: creds}
	if extra != nil {
		cc.Environment = extra["environment"]
		cc.BaseURL = extra["base_url"]
	}
	if err := ad.Connect(ctx, cc); err != nil {
		return PlatformDiscovery{}, fmt.Errorf("service: platform login: %w", err)
	}
	defer func() { _ = ad.Disconnect(ctx) }()

	snapshots, err := ad.GetAllAccounts(ctx)
	if err != nil {
		return PlatformDiscovery{}, fmt.Errorf("service: enumerate accounts: %w", err)
	}

	s.logger.InfoContext(ctx, "platform accounts discovered",
		slog.String("user_id", userID),
		slog.String("firm", string(firm)),
		slog.String("platform", string(platform)),
		slog.Int("count", len(snapshots)),
	)
	return PlatformDiscovery{
		Accounts:    snapshots,
		Email:       creds.Email,
		HasPassword: creds.Password != "",
		HasAPIKey:   creds.APIKey != "",
	}, nil
}

// DiscoveredAccount identifies one account from a prior platform discovery.
type DiscoveredAccount struct {
	AccountNumber string
	Name          string
	Balance       float64
}

// CreateAccountsFromPlatform persists a platform discovery: each account is
// upserted keyed by (user, firm, account number) with the supplied
// credentials, then marked connected and freshly synced. Existing rows get
// refreshed credentials and balances instead of duplicates.
func (s *AccountService) CreateAccountsFromPlatform(ctx context.Context, userID string, firm domain.Firm, platform domain.Platform, discovered []DiscoveredAccount, creds domain.Credentials, extra map[string]string) ([]domain.TradingAccount, error) {
	if firm == "" || platform == "" {
		return nil, fmt.Errorf("service: firm and platform are required: %w", domain.ErrValidation)
	}
	if len(discovered) == 0 {
		return nil, fmt.Errorf("service: no accounts to create: %w", domain.ErrValidation)
	}

	stored := make([]domain.TradingAccount, 0, len(discovered))
	for _, d := range discovered {
		if strings.TrimSpace(d.AccountNumber) == "" {
			return nil, fmt.Errorf("service: discovered account without a number: %w", domain.ErrValidation)
		}
		account := domain.TradingAccount{
			ID:               uuid.New().String(),
			UserID:           userID,
			Firm:             firm,
			Platform:         platform,
			AccountNumber:    d.AccountNumber,
			Name:             d.Name,
			AccountSize:      d.Balance,
			CurrentBalance:   d.Balance,
			Credentials:      creds,
			AdditionalConfig: extra,
		}
		row, err := s.accounts.Upsert(ctx, account)
		if err != nil {
			return nil, err
		}
		if err := s.accounts.UpdateConnection(ctx, row.ID, true, ""); err != nil {
			return nil, err
		}
		row, err = s.accounts.GetByID(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		stored = append(stored, row)
	}

	s.logger.InfoContext(ctx, "platform accounts imported",
		slog.String("firm", string(firm)),
		slog.String("platform", string(platform)),
		slog.Int("count", len(stored)),
	)
	return stored, nil
}

// Get returns the user's account or domain.ErrNotFound.
func (s *AccountService) Get(ctx context.Context, id, userID string) (domain.TradingAccount, error) {
	return s.accounts.GetOwned(ctx, id, userID)
}

// List returns all accounts the user owns.
func (s *AccountService) List(ctx context.Context, userID string) ([]domain.TradingAccount, error) {
	return s.accounts.ListByUser(ctx, userID)
}

// Update rewrites the account's mutable fields. Empty credential fields keep
// the stored secret so clients can submit the masked echo unchanged.
func (s *AccountService) Update(ctx context.Context, userID string, a domain.TradingAccount) (domain.TradingAccount, error) {
	current, err := s.accounts.GetOwned(ctx, a.ID, userID)
	if err != nil {
		return domain.TradingAccount{}, err
	}

	if a.Credentials.Password == "" {
		a.Credentials.Password = current.Credentials.Password
	}
	if a.Credentials.Email == "" {
		a.Credentials.Email = current.Credentials.Email
	}
	if a.Credentials.APIKey == "" {
		a.Credentials.APIKey = current.Credentials.APIKey
	}
	if a.Credentials.APISecret == "" {
		a.Credentials.APISecret = current.Credentials.APISecret
	}

	if err := s.accounts.Update(ctx, a); err != nil {
		return domain.TradingAccount{}, err
	}
	return s.accounts.GetByID(ctx, a.ID)
}

// Connect opens the brokerage session for the account and persists the
// outcome, including the discovered endpoint tuple.
func (s *AccountService) Connect(ctx context.Context, id, userID string) error {
	account, err := s.accounts.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}

	ad, err := s.registry.Get(account.Platform, account.Firm)
	if err != nil {
		return err
	}

	if err := s.connectAdapter(ctx, ad, account); err != nil {
		return err
	}

	// Refresh the balance while the session is warm.
	if snap, err := ad.GetAccountInfo(ctx); err == nil {
		_ = s.accounts.UpdateBalance(ctx, account.ID, snap.Balance)
	}
	return nil
}

// Disconnect closes the session and clears the connected flag.
func (s *AccountService) Disconnect(ctx context.Context, id, userID string) error {
	account, err := s.accounts.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}

	ad, err := s.registry.Get(account.Platform, account.Firm)
	if err != nil {
		return err
	}
	if err := ad.Disconnect(ctx); err != nil {
		return fmt.Errorf("service: disconnect: %w", err)
	}
	return s.accounts.UpdateConnection(ctx, account.ID, false, "")
}

// TestConnectionParams carries the credentials to try against a platform.
// No account row is needed; the check runs on the payload alone.
type TestConnectionParams struct {
	Firm             domain.Firm
	Platform         domain.Platform
	AccountNumber    string
	Credentials      domain.Credentials
	AdditionalConfig map[string]string
}

// TestResult reports the outcome of a credential check.
type TestResult struct {
	Success bool
	Message string
	Account domain.AccountSnapshot
}

// TestConnection opens a throwaway session with the supplied credentials,
// reads the account snapshot, and tears the session down again. Auth and
// transport failures come back in the result; the error return is reserved
// for bad requests.
func (s *AccountService) TestConnection(ctx context.Context, p TestConnectionParams) (TestResult, error) {
	if p.Firm == "" || p.Platform == "" {
		return TestResult{}, fmt.Errorf("service: firm and platform are required: %w", domain.ErrValidation)
	}

	ad, err := s.registry.Get(p.Platform, p.Firm)
	if err != nil {
		return TestResult{}, err
	}

	cc := adapter.ConnectConfig{
		Credentials:   p.Credentials,
		AccountNumber: p.AccountNumber,
	}
	if p.AdditionalConfig != nil {
		cc.Environment = p.AdditionalConfig["environment"]
		cc.BaseURL = p.AdditionalConfig["base_url"]
		cc.WSURL = p.AdditionalConfig["ws_url"]
	}

	if err := ad.Connect(ctx, cc); err != nil {
		return TestResult{Message: fmt.Sprintf("connection failed: %v", err)}, nil
	}
	defer func() { _ = ad.Disconnect(ctx) }()

	snap, err := ad.GetAccountInfo(ctx)
	if err != nil {
		return TestResult{Message: fmt.Sprintf("account lookup failed: %v", err)}, nil
	}
	return TestResult{Success: true, Message: "connection ok", Account: snap}, nil
}

// Delete removes the account unless a copier still references it.
func (s *AccountService) Delete(ctx context.Context, id, userID string) error {
	account, err := s.accounts.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}

	masters, err := s.copiers.ListByMasterAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	if len(masters) > 0 {
		names := make([]string, 0, len(masters))
		for _, c := range masters {
			names = append(names, c.Name)
		}
		return fmt.Errorf("service: account is the master of copier(s) %s: %w",
			strings.Join(names, ", "), domain.ErrAccountInUse)
	}

	followers, err := s.configs.ListBySlaveAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	if len(followers) > 0 {
		return fmt.Errorf("service: account follows %d copier(s): %w",
			len(followers), domain.ErrAccountInUse)
	}

	return s.accounts.Delete(ctx, account.ID)
}

func (s *AccountService) connectAdapter(ctx context.Context, ad adapter.Adapter, account domain.TradingAccount) error {
	cc := adapter.ConnectConfig{
		Credentials:   account.Credentials,
		AccountNumber: account.AccountNumber,
	}
	if account.AdditionalConfig != nil {
		cc.Environment = account.AdditionalConfig["environment"]
		cc.BaseURL = account.AdditionalConfig["base_url"]
		cc.WSURL = account.AdditionalConfig["ws_url"]
	}
	if s.discovery != nil {
		if eps, ok, err := s.discovery.Get(ctx, account.ID); err == nil && ok {
			cc.Cached = &eps
		}
	}

	if err := ad.Connect(ctx, cc); err != nil {
		_ = s.accounts.UpdateConnection(ctx, account.ID, false, err.Error())
		return fmt.Errorf("service: connect account %s: %w", account.ID, err)
	}
	if err := s.accounts.UpdateConnection(ctx, account.ID, true, ""); err != nil {
		return err
	}

	if s.discovery != nil && cc.Cached == nil {
		if dp, ok := ad.(interface{ Endpoints() domain.DiscoveredEndpoints }); ok {
			if eps := dp.Endpoints(); eps.BaseURL != "" {
				_ = s.discovery.Put(ctx, account.ID, eps)
			}
		}
	}
	return nil
}
