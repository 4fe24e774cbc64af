package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybread8/tradesyncer/internal/domain"
)

func intPtr(v int) *int         { return &v }
func f64Ptr(v float64) *float64 { return &v }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Minimal in-memory stores covering what the copier service touches.

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]domain.TradingAccount
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]domain.TradingAccount)}
}

func (s *memAccounts) Create(ctx context.Context, a domain.TradingAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return nil
}

func (s *memAccounts) Upsert(ctx context.Context, a domain.TradingAccount) (domain.TradingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.accounts {
		if existing.UserID == a.UserID && existing.Firm == a.Firm && existing.AccountNumber == a.AccountNumber {
			a.ID = id
			s.accounts[id] = a
			return a, nil
		}
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *memAccounts) GetByID(ctx context.Context, id string) (domain.TradingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.TradingAccount{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *memAccounts) GetOwned(ctx context.Context, id, userID string) (domain.TradingAccount, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil || a.UserID != userID {
		return domain.TradingAccount{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *memAccounts) ListByUser(ctx context.Context, userID string) ([]domain.TradingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TradingAccount
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memAccounts) Update(ctx context.Context, a domain.TradingAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return nil
}

func (s *memAccounts) UpdateConnection(ctx context.Context, id string, connected bool, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.IsConnected = connected
	a.ErrorMessage = errMsg
	if connected {
		now := time.Now()
		a.LastSyncAt = &now
	}
	s.accounts[id] = a
	return nil
}

func (s *memAccounts) UpdateBalance(ctx context.Context, id string, balance float64) error {
	return nil
}

func (s *memAccounts) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}

type memCopiers struct {
	mu      sync.Mutex
	copiers map[string]domain.Copier
}

func newMemCopiers() *memCopiers {
	return &memCopiers{copiers: make(map[string]domain.Copier)}
}

func (s *memCopiers) Create(ctx context.Context, c domain.Copier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.copiers[c.ID] = c
	return nil
}

func (s *memCopiers) GetByID(ctx context.Context, id string) (domain.Copier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.copiers[id]
	if !ok {
		return domain.Copier{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *memCopiers) GetOwned(ctx context.Context, id, userID string) (domain.Copier, error) {
	c, err := s.GetByID(ctx, id)
	if err != nil || c.UserID != userID {
		return domain.Copier{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *memCopiers) ListByUser(ctx context.Context, userID string) ([]domain.Copier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Copier
	for _, c := range s.copiers {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memCopiers) ListByStatus(ctx context.Context, status domain.CopierStatus) ([]domain.Copier, error) {
	return nil, nil
}

func (s *memCopiers) ListByMasterAccount(ctx context.Context, accountID string) ([]domain.Copier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Copier
	for _, c := range s.copiers {
		if c.MasterAccountID == accountID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memCopiers) Update(ctx context.Context, c domain.Copier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.copiers[c.ID] = c
	return nil
}

func (s *memCopiers) UpdateStatus(ctx context.Context, id string, status domain.CopierStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.copiers[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = status
	s.copiers[id] = c
	return nil
}

func (s *memCopiers) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.copiers, id)
	return nil
}

type memConfigs struct {
	mu      sync.Mutex
	configs map[string]domain.CopierAccountConfig
}

func newMemConfigs() *memConfigs {
	return &memConfigs{configs: make(map[string]domain.CopierAccountConfig)}
}

func (s *memConfigs) Create(ctx context.Context, c domain.CopierAccountConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.configs {
		if existing.CopierID == c.CopierID && existing.SlaveAccountID == c.SlaveAccountID {
			return domain.ErrAlreadyExists
		}
	}
	s.configs[c.ID] = c
	return nil
}

func (s *memConfigs) Get(ctx context.Context, copierID, slaveAccountID string) (domain.CopierAccountConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.configs {
		if c.CopierID == copierID && c.SlaveAccountID == slaveAccountID {
			return c, nil
		}
	}
	return domain.CopierAccountConfig{}, domain.ErrNotFound
}

func (s *memConfigs) ListByCopier(ctx context.Context, copierID string) ([]domain.CopierAccountConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CopierAccountConfig
	for _, c := range s.configs {
		if c.CopierID == copierID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memConfigs) ListBySlaveAccount(ctx context.Context, accountID string) ([]domain.CopierAccountConfig, error) {
	return nil, nil
}

func (s *memConfigs) Update(ctx context.Context, c domain.CopierAccountConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[c.ID]; !ok {
		return domain.ErrNotFound
	}
	s.configs[c.ID] = c
	return nil
}

func (s *memConfigs) Disable(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.IsActive = false
	c.DisabledReason = reason
	s.configs[id] = c
	return nil
}

func (s *memConfigs) Delete(ctx context.Context, copierID, slaveAccountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.configs {
		if c.CopierID == copierID && c.SlaveAccountID == slaveAccountID {
			delete(s.configs, id)
			return nil
		}
	}
	return domain.ErrNotFound
}

func newCopierService(t *testing.T) (*CopierService, *memAccounts, *memCopiers, *memConfigs) {
	t.Helper()
	accounts := newMemAccounts()
	copiers := newMemCopiers()
	configs := newMemConfigs()
	svc := NewCopierService(copiers, configs, accounts, nil, testLogger())
	return svc, accounts, copiers, configs
}

func seedAccounts(t *testing.T, accounts *memAccounts) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, accounts.Create(ctx, domain.TradingAccount{ID: "master-1", UserID: "user-1"}))
	require.NoError(t, accounts.Create(ctx, domain.TradingAccount{ID: "slave-1", UserID: "user-1"}))
	require.NoError(t, accounts.Create(ctx, domain.TradingAccount{ID: "foreign-1", UserID: "user-2"}))
}

func TestCopierServiceCreate(t *testing.T) {
	svc, accounts, _, _ := newCopierService(t)
	seedAccounts(t, accounts)
	ctx := context.Background()

	copier, err := svc.Create(ctx, "user-1", CopierParams{
		Name:            "main to subs",
		MasterAccountID: "master-1",
		CopyEntries:     true,
		CopyExits:       true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, copier.ID)
	assert.Equal(t, domain.CopierStopped, copier.Status)
	assert.Equal(t, "user-1", copier.UserID)
}

func TestCopierServiceCreateValidation(t *testing.T) {
	svc, accounts, _, _ := newCopierService(t)
	seedAccounts(t, accounts)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", CopierParams{Name: "  ", MasterAccountID: "master-1"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Someone else's account cannot be a master.
	_, err = svc.Create(ctx, "user-1", CopierParams{Name: "x", MasterAccountID: "foreign-1"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCopierServiceDeleteGuardsRunningCopiers(t *testing.T) {
	svc, accounts, copiers, _ := newCopierService(t)
	seedAccounts(t, accounts)
	ctx := context.Background()

	require.NoError(t, copiers.Create(ctx, domain.Copier{
		ID: "cop-1", UserID: "user-1", MasterAccountID: "master-1", Status: domain.CopierActive,
	}))

	err := svc.Delete(ctx, "cop-1", "user-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	require.NoError(t, copiers.UpdateStatus(ctx, "cop-1", domain.CopierStopped))
	require.NoError(t, svc.Delete(ctx, "cop-1", "user-1"))
}

func TestSlaveParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  SlaveParams
		wantErr bool
	}{
		{
			name:   "fixed with contracts",
			params: SlaveParams{ScalingType: domain.ScalingFixed, FixedContracts: intPtr(2)},
		},
		{
			name:    "fixed without contracts",
			params:  SlaveParams{ScalingType: domain.ScalingFixed},
			wantErr: true,
		},
		{
			name:    "fixed with zero contracts",
			params:  SlaveParams{ScalingType: domain.ScalingFixed, FixedContracts: intPtr(0)},
			wantErr: true,
		},
		{
			name:   "percentage with ratio",
			params: SlaveParams{ScalingType: domain.ScalingPercentage, PercentageScale: f64Ptr(0.5)},
		},
		{
			name:    "percentage without ratio",
			params:  SlaveParams{ScalingType: domain.ScalingPercentage},
			wantErr: true,
		},
		{
			name:   "balance based needs nothing extra",
			params: SlaveParams{ScalingType: domain.ScalingBalanceBased},
		},
		{
			name:    "unknown scaling type",
			params:  SlaveParams{ScalingType: "MARTINGALE"},
			wantErr: true,
		},
		{
			name:    "non-positive max contracts",
			params:  SlaveParams{ScalingType: domain.ScalingBalanceBased, MaxContracts: intPtr(0)},
			wantErr: true,
		},
		{
			name:    "non-positive loss limit",
			params:  SlaveParams{ScalingType: domain.ScalingBalanceBased, DailyLossLimit: f64Ptr(-5)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCopierServiceAddSlave(t *testing.T) {
	svc, accounts, copiers, _ := newCopierService(t)
	seedAccounts(t, accounts)
	ctx := context.Background()

	require.NoError(t, copiers.Create(ctx, domain.Copier{
		ID: "cop-1", UserID: "user-1", MasterAccountID: "master-1", Status: domain.CopierStopped,
	}))

	cfg, err := svc.AddSlave(ctx, "cop-1", "user-1", SlaveParams{
		SlaveAccountID: "slave-1",
		ScalingType:    domain.ScalingFixed,
		FixedContracts: intPtr(1),
	})
	require.NoError(t, err)
	assert.True(t, cfg.IsActive)
	assert.Equal(t, "slave-1", cfg.SlaveAccountID)

	// The same follower cannot be bound twice.
	_, err = svc.AddSlave(ctx, "cop-1", "user-1", SlaveParams{
		SlaveAccountID: "slave-1",
		ScalingType:    domain.ScalingFixed,
		FixedContracts: intPtr(1),
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// The master cannot follow itself.
	_, err = svc.AddSlave(ctx, "cop-1", "user-1", SlaveParams{
		SlaveAccountID: "master-1",
		ScalingType:    domain.ScalingFixed,
		FixedContracts: intPtr(1),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	// A foreign account cannot follow.
	_, err = svc.AddSlave(ctx, "cop-1", "user-1", SlaveParams{
		SlaveAccountID: "foreign-1",
		ScalingType:    domain.ScalingFixed,
		FixedContracts: intPtr(1),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCopierServiceUpdateSlaveReactivates(t *testing.T) {
	svc, accounts, copiers, configs := newCopierService(t)
	seedAccounts(t, accounts)
	ctx := context.Background()

	require.NoError(t, copiers.Create(ctx, domain.Copier{
		ID: "cop-1", UserID: "user-1", MasterAccountID: "master-1", Status: domain.CopierStopped,
	}))
	require.NoError(t, configs.Create(ctx, domain.CopierAccountConfig{
		ID:             "cfg-1",
		CopierID:       "cop-1",
		SlaveAccountID: "slave-1",
		ScalingType:    domain.ScalingFixed,
		FixedContracts: intPtr(1),
		IsActive:       false,
		DisabledReason: "daily loss limit reached",
	}))

	cfg, err := svc.UpdateSlave(ctx, "cop-1", "slave-1", "user-1", SlaveParams{
		SlaveAccountID:  "slave-1",
		ScalingType:     domain.ScalingPercentage,
		PercentageScale: f64Ptr(0.5),
		DailyLossLimit:  f64Ptr(1000),
	})
	require.NoError(t, err)
	assert.True(t, cfg.IsActive, "updating the binding clears a prior auto-disable")
	assert.Empty(t, cfg.DisabledReason)
	assert.Equal(t, domain.ScalingPercentage, cfg.ScalingType)
}

func TestCopierServiceRemoveSlave(t *testing.T) {
	svc, accounts, copiers, configs := newCopierService(t)
	seedAccounts(t, accounts)
	ctx := context.Background()

	require.NoError(t, copiers.Create(ctx, domain.Copier{
		ID: "cop-1", UserID: "user-1", MasterAccountID: "master-1", Status: domain.CopierStopped,
	}))
	require.NoError(t, configs.Create(ctx, domain.CopierAccountConfig{
		ID: "cfg-1", CopierID: "cop-1", SlaveAccountID: "slave-1",
		ScalingType: domain.ScalingBalanceBased, IsActive: true,
	}))

	require.NoError(t, svc.RemoveSlave(ctx, "cop-1", "slave-1", "user-1"))
	_, err := configs.Get(ctx, "cop-1", "slave-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Unknown binding.
	err = svc.RemoveSlave(ctx, "cop-1", "slave-1", "user-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
