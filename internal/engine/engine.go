// Package engine runs the replication core: one runner per active copier,
// subscribing to the master account's fills and fanning them out to the
// follower accounts through their brokerage adapters.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skybread8/tradesyncer/internal/adapter"
	"github.com/skybread8/tradesyncer/internal/domain"
)

// Stores bundles the persistence interfaces the engine depends on.
type Stores struct {
	Accounts domain.AccountStore
	Copiers  domain.CopierStore
	Configs  domain.ConfigStore
	Trades   domain.TradeStore
	Mappings domain.MappingStore
	Logs     domain.ExecutionLogStore
}

// Notifier delivers operator alerts. Satisfied by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config tunes the engine.
type Config struct {
	// ReferenceBalance is the denominator for balance-based scaling.
	ReferenceBalance float64
	// Heartbeat is the interval for connection health checks.
	Heartbeat time.Duration
	// LockTTL bounds how long a crashed replica can hold a copier lock.
	LockTTL time.Duration
	// ShutdownTimeout bounds how long Close waits for runners to drain.
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReferenceBalance <= 0 {
		c.ReferenceBalance = defaultReferenceBalance
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 30 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 24 * time.Hour
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Engine manages copier runners. All lifecycle methods validate the copier
// state machine before mutating anything.
type Engine struct {
	cfg       Config
	registry  *adapter.Registry
	stores    Stores
	locks     domain.LockManager
	discovery domain.DiscoveryCache
	notifier  Notifier
	logger    *slog.Logger

	mu      sync.Mutex
	runners map[string]*runner
}

// New creates an Engine. locks, discovery, and notifier may be nil; the
// corresponding behaviour (exclusive start, endpoint caching, alerts) is then
// skipped.
func New(cfg Config, registry *adapter.Registry, stores Stores, locks domain.LockManager, discovery domain.DiscoveryCache, notifier Notifier, logger *slog.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:       cfg,
		registry:  registry,
		stores:    stores,
		locks:     locks,
		discovery: discovery,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "engine")),
		runners:   make(map[string]*runner),
	}
}

// Start transitions the copier to ACTIVE and begins replication. Returns
// domain.ErrAlreadyRunning when this instance already runs the copier and
// domain.ErrLockHeld when another replica does.
func (e *Engine) Start(ctx context.Context, copierID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	copier, err := e.stores.Copiers.GetByID(ctx, copierID)
	if err != nil {
		return err
	}

	// A copier with nothing to fan out to must not subscribe.
	configs, err := e.stores.Configs.ListByCopier(ctx, copierID)
	if err != nil {
		return err
	}
	active := 0
	for _, cfg := range configs {
		if cfg.IsActive {
			active++
		}
	}
	if active == 0 {
		return fmt.Errorf("engine: copier %s: no active follower bindings: %w",
			copierID, domain.ErrInvalidState)
	}

	if _, ok := e.runners[copierID]; ok {
		// The runner outlives a pause, so resuming only flips the status.
		if copier.Status == domain.CopierPaused {
			if err := e.stores.Copiers.UpdateStatus(ctx, copierID, domain.CopierActive); err != nil {
				return err
			}
			e.auditLog(ctx, copierID, domain.LogInfo, "copier resumed")
			e.logger.InfoContext(ctx, "copier resumed", slog.String("copier_id", copierID))
			return nil
		}
		return fmt.Errorf("engine: copier %s: %w", copierID, domain.ErrAlreadyRunning)
	}
	// An ACTIVE copier without a runner is the restart-recovery case.
	if copier.Status != domain.CopierActive && !copier.Status.CanTransition(domain.CopierActive) {
		return fmt.Errorf("engine: copier %s: cannot start from %s: %w",
			copierID, copier.Status, domain.ErrInvalidState)
	}

	unlock := func() {}
	if e.locks != nil {
		unlock, err = e.locks.Acquire(ctx, "copier:"+copierID, e.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("engine: copier %s: %w", copierID, err)
		}
	}

	master, err := e.stores.Accounts.GetByID(ctx, copier.MasterAccountID)
	if err != nil {
		unlock()
		return err
	}

	ad, err := e.registry.Get(master.Platform, master.Firm)
	if err != nil {
		unlock()
		return err
	}

	if err := e.connectAccount(ctx, ad, master); err != nil {
		unlock()
		return fmt.Errorf("engine: connect master %s: %w", master.ID, err)
	}

	r := newRunner(e, copier, master, ad, unlock)
	e.runners[copierID] = r
	r.start()

	if err := e.stores.Copiers.UpdateStatus(ctx, copierID, domain.CopierActive); err != nil {
		e.haltLocked(copierID)
		return err
	}

	e.auditLog(ctx, copierID, domain.LogInfo, "copier started")
	e.logger.InfoContext(ctx, "copier started",
		slog.String("copier_id", copierID),
		slog.String("master_account", master.ID),
	)
	return nil
}

// Pause suspends fan-out without tearing down the master subscription.
func (e *Engine) Pause(ctx context.Context, copierID string) error {
	copier, err := e.stores.Copiers.GetByID(ctx, copierID)
	if err != nil {
		return err
	}
	if !copier.Status.CanTransition(domain.CopierPaused) {
		return fmt.Errorf("engine: copier %s: cannot pause from %s: %w",
			copierID, copier.Status, domain.ErrInvalidState)
	}
	if err := e.stores.Copiers.UpdateStatus(ctx, copierID, domain.CopierPaused); err != nil {
		return err
	}
	e.auditLog(ctx, copierID, domain.LogInfo, "copier paused")
	e.logger.InfoContext(ctx, "copier paused", slog.String("copier_id", copierID))
	return nil
}

// Stop transitions the copier to STOPPED and tears down its runner.
func (e *Engine) Stop(ctx context.Context, copierID string) error {
	copier, err := e.stores.Copiers.GetByID(ctx, copierID)
	if err != nil {
		return err
	}
	if !copier.Status.CanTransition(domain.CopierStopped) {
		return fmt.Errorf("engine: copier %s: cannot stop from %s: %w",
			copierID, copier.Status, domain.ErrInvalidState)
	}

	e.mu.Lock()
	e.haltLocked(copierID)
	e.mu.Unlock()

	if err := e.stores.Copiers.UpdateStatus(ctx, copierID, domain.CopierStopped); err != nil {
		return err
	}
	e.auditLog(ctx, copierID, domain.LogInfo, "copier stopped")
	e.logger.InfoContext(ctx, "copier stopped", slog.String("copier_id", copierID))
	return nil
}

// RecoverActive restarts every copier left ACTIVE by a previous process. A
// copier that fails to recover is marked ERROR rather than blocking the rest.
func (e *Engine) RecoverActive(ctx context.Context) error {
	copiers, err := e.stores.Copiers.ListByStatus(ctx, domain.CopierActive)
	if err != nil {
		return fmt.Errorf("engine: recover: %w", err)
	}

	for _, c := range copiers {
		if err := e.Start(ctx, c.ID); err != nil {
			if errors.Is(err, domain.ErrLockHeld) || errors.Is(err, domain.ErrAlreadyRunning) {
				continue
			}
			e.logger.ErrorContext(ctx, "copier recovery failed",
				slog.String("copier_id", c.ID),
				slog.String("error", err.Error()),
			)
			e.markError(ctx, c.ID, "recovery failed: "+err.Error())
		}
	}
	return nil
}

// Running reports whether this instance currently runs the copier.
func (e *Engine) Running(copierID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runners[copierID]
	return ok
}

// Close tears down every runner, waiting up to the shutdown timeout.
func (e *Engine) Close() error {
	e.mu.Lock()
	runners := make([]*runner, 0, len(e.runners))
	for id, r := range e.runners {
		runners = append(runners, r)
		delete(e.runners, id)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, r := range runners {
			r.halt()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(e.cfg.ShutdownTimeout):
		return fmt.Errorf("engine: shutdown timed out after %s", e.cfg.ShutdownTimeout)
	}
}

// haltLocked stops and removes a runner. Caller holds e.mu.
func (e *Engine) haltLocked(copierID string) {
	if r, ok := e.runners[copierID]; ok {
		delete(e.runners, copierID)
		r.halt()
	}
}

// auditLog appends a lifecycle entry to the copier's execution log.
func (e *Engine) auditLog(ctx context.Context, copierID string, level domain.LogLevel, msg string) {
	entry := domain.ExecutionLog{CopierID: copierID, Level: level, Message: msg}
	if err := e.stores.Logs.Append(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "execution log append failed",
			slog.String("copier_id", copierID),
			slog.String("error", err.Error()),
		)
	}
}

// markError moves the copier to ERROR and alerts operators. Used for
// unrecoverable faults; errors inside fan-out never end up here.
func (e *Engine) markError(ctx context.Context, copierID, reason string) {
	e.auditLog(ctx, copierID, domain.LogError, "copier entered error state: "+reason)
	if err := e.stores.Copiers.UpdateStatus(ctx, copierID, domain.CopierError); err != nil {
		e.logger.ErrorContext(ctx, "mark copier error failed",
			slog.String("copier_id", copierID),
			slog.String("error", err.Error()),
		)
	}
	if e.notifier != nil {
		_ = e.notifier.Notify(ctx, "copier.error",
			"Copier entered ERROR state",
			fmt.Sprintf("copier %s: %s", copierID, reason))
	}
}

// connectAccount opens the adapter session for the account, consulting the
// discovery cache first and persisting the connection outcome.
func (e *Engine) connectAccount(ctx context.Context, ad adapter.Adapter, account domain.TradingAccount) error {
	cc := adapter.ConnectConfig{
		Credentials:   account.Credentials,
		AccountNumber: account.AccountNumber,
	}
	if account.AdditionalConfig != nil {
		cc.Environment = account.AdditionalConfig["environment"]
		cc.BaseURL = account.AdditionalConfig["base_url"]
		cc.WSURL = account.AdditionalConfig["ws_url"]
	}
	if e.discovery != nil {
		if eps, ok, err := e.discovery.Get(ctx, account.ID); err == nil && ok {
			cc.Cached = &eps
		}
	}

	if err := ad.Connect(ctx, cc); err != nil {
		_ = e.stores.Accounts.UpdateConnection(ctx, account.ID, false, err.Error())
		return err
	}
	_ = e.stores.Accounts.UpdateConnection(ctx, account.ID, true, "")

	// Probe-based adapters expose the tuple they resolved; cache it so the
	// next connect skips probing.
	if e.discovery != nil && cc.Cached == nil {
		if dp, ok := ad.(interface{ Endpoints() domain.DiscoveredEndpoints }); ok {
			if eps := dp.Endpoints(); eps.BaseURL != "" {
				if err := e.discovery.Put(ctx, account.ID, eps); err != nil {
					e.logger.WarnContext(ctx, "discovery cache put failed",
						slog.String("account_id", account.ID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
	return nil
}
