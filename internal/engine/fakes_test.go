package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
)

func intPtr(v int) *int         { return &v }
func f64Ptr(v float64) *float64 { return &v }

// --- account store ---

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]domain.TradingAccount
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[string]domain.TradingAccount)}
}

func (s *fakeAccountStore) Create(ctx context.Context, a domain.TradingAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *fakeAccountStore) Upsert(ctx context.Context, a domain.TradingAccount) (domain.TradingAccount, error) {
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

func (s *fakeAccountStore) GetByID(ctx context.Context, id string) (domain.TradingAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.TradingAccount{}, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

func (s *fakeAccountStore) GetOwned(ctx context.Context, id, userID string) (domain.TradingAccount, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.TradingAccount{}, err
	}
	if a.UserID != userID {
		return domain.TradingAccount{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *fakeAccountStore) ListByUser(ctx context.Context, userID string) ([]domain.TradingAccount, error) {
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

func (s *fakeAccountStore) Update(ctx context.Context, a domain.TradingAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return domain.ErrNotFound
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *fakeAccountStore) UpdateConnection(ctx context.Context, id string, connected bool, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.IsConnected = connected
	a.ErrorMessage = errMsg
	if connected {
		a.ErrorMessage = ""
	}
	s.accounts[id] = a
	return nil
}

func (s *fakeAccountStore) UpdateBalance(ctx context.Context, id string, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.CurrentBalance = balance
	s.accounts[id] = a
	return nil
}

func (s *fakeAccountStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}

// --- copier store ---

type fakeCopierStore struct {
	mu      sync.Mutex
	copiers map[string]domain.Copier
}

func newFakeCopierStore() *fakeCopierStore {
	return &fakeCopierStore{copiers: make(map[string]domain.Copier)}
}

func (s *fakeCopierStore) Create(ctx context.Context, c domain.Copier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.copiers[c.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.copiers[c.ID] = c
	return nil
}

func (s *fakeCopierStore) GetByID(ctx context.Context, id string) (domain.Copier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.copiers[id]
	if !ok {
		return domain.Copier{}, fmt.Errorf("copier %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (s *fakeCopierStore) GetOwned(ctx context.Context, id, userID string) (domain.Copier, error) {
	c, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Copier{}, err
	}
	if c.UserID != userID {
		return domain.Copier{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *fakeCopierStore) ListByUser(ctx context.Context, userID string) ([]domain.Copier, error) {
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

func (s *fakeCopierStore) ListByStatus(ctx context.Context, status domain.CopierStatus) ([]domain.Copier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Copier
	for _, c := range s.copiers {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeCopierStore) ListByMasterAccount(ctx context.Context, accountID string) ([]domain.Copier, error) {
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

func (s *fakeCopierStore) Update(ctx context.Context, c domain.Copier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.copiers[c.ID]; !ok {
		return domain.ErrNotFound
	}
	s.copiers[c.ID] = c
	return nil
}

func (s *fakeCopierStore) UpdateStatus(ctx context.Context, id string, status domain.CopierStatus) error {
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

func (s *fakeCopierStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.copiers, id)
	return nil
}

// --- config store ---

type fakeConfigStore struct {
	mu      sync.Mutex
	configs map[string]domain.CopierAccountConfig // keyed by config ID
}

func newFakeConfigStore() *fakeConfigStore {
	return &fakeConfigStore{configs: make(map[string]domain.CopierAccountConfig)}
}

func (s *fakeConfigStore) Create(ctx context.Context, c domain.CopierAccountConfig) error {
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

func (s *fakeConfigStore) Get(ctx context.Context, copierID, slaveAccountID string) (domain.CopierAccountConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.configs {
		if c.CopierID == copierID && c.SlaveAccountID == slaveAccountID {
			return c, nil
		}
	}
	return domain.CopierAccountConfig{}, domain.ErrNotFound
}

func (s *fakeConfigStore) ListByCopier(ctx context.Context, copierID string) ([]domain.CopierAccountConfig, error) {
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

func (s *fakeConfigStore) ListBySlaveAccount(ctx context.Context, accountID string) ([]domain.CopierAccountConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CopierAccountConfig
	for _, c := range s.configs {
		if c.SlaveAccountID == accountID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeConfigStore) Update(ctx context.Context, c domain.CopierAccountConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[c.ID]; !ok {
		return domain.ErrNotFound
	}
	s.configs[c.ID] = c
	return nil
}

func (s *fakeConfigStore) Disable(ctx context.Context, id, reason string) error {
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

func (s *fakeConfigStore) Delete(ctx context.Context, copierID, slaveAccountID string) error {
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

// --- trade store ---

type fakeTradeStore struct {
	mu     sync.Mutex
	trades []domain.Trade
	seen   map[string]struct{} // accountID + "/" + externalTradeID

	// pnl is returned by SumRealizedPnL per account id; pnlErr overrides it.
	pnl    map[string]float64
	pnlErr error
}

func newFakeTradeStore() *fakeTradeStore {
	return &fakeTradeStore{
		seen: make(map[string]struct{}),
		pnl:  make(map[string]float64),
	}
}

func (s *fakeTradeStore) Insert(ctx context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := t.AccountID + "/" + t.ExternalTradeID
	if t.ExternalTradeID != "" {
		if _, ok := s.seen[key]; ok {
			return domain.ErrAlreadyExists
		}
		s.seen[key] = struct{}{}
	}
	s.trades = append(s.trades, t)
	return nil
}

func (s *fakeTradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Trade{}, domain.ErrNotFound
}

func (s *fakeTradeStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTradeStore) ListByCopier(ctx context.Context, copierID string, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.CopierID != nil && *t.CopierID == copierID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTradeStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return nil, nil
}

func (s *fakeTradeStore) SumRealizedPnL(ctx context.Context, accountID string, since time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pnlErr != nil {
		return 0, s.pnlErr
	}
	return s.pnl[accountID], nil
}

func (s *fakeTradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.Trade
	var removed int64
	for _, t := range s.trades {
		if t.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.trades = kept
	return removed, nil
}

// --- mapping store ---

type fakeMappingStore struct {
	mu       sync.Mutex
	mappings []domain.TradeMapping
}

func newFakeMappingStore() *fakeMappingStore {
	return &fakeMappingStore{}
}

func (s *fakeMappingStore) Insert(ctx context.Context, m domain.TradeMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.mappings {
		if existing.MasterTradeID == m.MasterTradeID && existing.SlaveAccountID == m.SlaveAccountID {
			return domain.ErrAlreadyExists
		}
	}
	s.mappings = append(s.mappings, m)
	return nil
}

func (s *fakeMappingStore) ListByCopier(ctx context.Context, copierID string, opts domain.ListOpts) ([]domain.TradeMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TradeMapping
	for _, m := range s.mappings {
		if m.CopierID == copierID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMappingStore) GetByMasterAndSlave(ctx context.Context, masterTradeID, slaveAccountID string) (domain.TradeMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.mappings {
		if m.MasterTradeID == masterTradeID && m.SlaveAccountID == slaveAccountID {
			return m, nil
		}
	}
	return domain.TradeMapping{}, domain.ErrNotFound
}

func (s *fakeMappingStore) all() []domain.TradeMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TradeMapping, len(s.mappings))
	copy(out, s.mappings)
	return out
}

// --- execution log store ---

type fakeLogStore struct {
	mu      sync.Mutex
	entries []domain.ExecutionLog
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{}
}

func (s *fakeLogStore) Append(ctx context.Context, e domain.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeLogStore) ListByCopier(ctx context.Context, copierID string, opts domain.ListOpts) ([]domain.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ExecutionLog
	for _, e := range s.entries {
		if e.CopierID == copierID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeLogStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ExecutionLog, error) {
	return nil, nil
}

func (s *fakeLogStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeLogStore) has(level domain.LogLevel, substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func (s *fakeLogStore) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Message)
	}
	return out
}

// --- notifier ---

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(ctx context.Context, event, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) got(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

// --- lock manager ---

type fakeLockManager struct {
	mu       sync.Mutex
	held     map[string]bool
	released map[string]bool
	err      error
}

func newFakeLockManager() *fakeLockManager {
	return &fakeLockManager{
		held:     make(map[string]bool),
		released: make(map[string]bool),
	}
}

func (l *fakeLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held[key] = false
		l.released[key] = true
	}, nil
}

func (l *fakeLockManager) wasReleased(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released[key]
}
