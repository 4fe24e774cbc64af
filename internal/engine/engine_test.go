package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybread8/tradesyncer/internal/adapter"
	"github.com/skybread8/tradesyncer/internal/domain"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type fixture struct {
	eng      *Engine
	mock     *adapter.Mock
	accounts *fakeAccountStore
	copiers  *fakeCopierStore
	configs  *fakeConfigStore
	trades   *fakeTradeStore
	mappings *fakeMappingStore
	logs     *fakeLogStore
	notifier *fakeNotifier
	locks    *fakeLockManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mock := adapter.NewMock(domain.FirmTopstepX, domain.PlatformRithmic)
	registry := adapter.NewRegistry()
	registry.RegisterShared(domain.PlatformRithmic, []domain.Firm{domain.FirmTopstepX}, mock)

	f := &fixture{
		mock:     mock,
		accounts: newFakeAccountStore(),
		copiers:  newFakeCopierStore(),
		configs:  newFakeConfigStore(),
		trades:   newFakeTradeStore(),
		mappings: newFakeMappingStore(),
		logs:     newFakeLogStore(),
		notifier: &fakeNotifier{},
		locks:    newFakeLockManager(),
	}
	f.eng = New(
		// A long heartbeat keeps health checks out of the way.
		Config{Heartbeat: time.Hour},
		registry,
		Stores{
			Accounts: f.accounts,
			Copiers:  f.copiers,
			Configs:  f.configs,
			Trades:   f.trades,
			Mappings: f.mappings,
			Logs:     f.logs,
		},
		f.locks,
		nil,
		f.notifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	t.Cleanup(func() { _ = f.eng.Close() })
	return f
}

// seed installs one master, one follower, a stopped copier linking them, and
// a fixed-size follower binding.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.accounts.Create(ctx, domain.TradingAccount{
		ID:             "master-1",
		UserID:         "user-1",
		Firm:           domain.FirmTopstepX,
		Platform:       domain.PlatformRithmic,
		AccountNumber:  "MAIN-001",
		CurrentBalance: 100_000,
	}))
	require.NoError(t, f.accounts.Create(ctx, domain.TradingAccount{
		ID:             "slave-1",
		UserID:         "user-1",
		Firm:           domain.FirmTopstepX,
		Platform:       domain.PlatformRithmic,
		AccountNumber:  "SUB-001",
		CurrentBalance: 100_000,
	}))
	require.NoError(t, f.copiers.Create(ctx, domain.Copier{
		ID:              "cop-1",
		UserID:          "user-1",
		Name:            "main to sub",
		MasterAccountID: "master-1",
		Status:          domain.CopierStopped,
		CopyEntries:     true,
		CopyExits:       true,
	}))
	require.NoError(t, f.configs.Create(ctx, domain.CopierAccountConfig{
		ID:             "cfg-1",
		CopierID:       "cop-1",
		SlaveAccountID: "slave-1",
		ScalingType:    domain.ScalingFixed,
		FixedContracts: intPtr(2),
		IsActive:       true,
	}))
}

func fill(extID, symbol string, side domain.TradeSide, qty int, price float64) domain.TradeExecution {
	return domain.TradeExecution{
		ExternalOrderID: "ord-" + extID,
		ExternalTradeID: extID,
		AccountNumber:   "MAIN-001",
		Symbol:          symbol,
		Side:            side,
		Type:            domain.TypeMarket,
		Quantity:        qty,
		Price:           price,
		Status:          domain.TradeFilled,
		ExecutedAt:      time.Now().UTC(),
	}
}

func TestEngineReplicatesFillToFollower(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	require.NoError(t, f.eng.Start(ctx, "cop-1"))
	assert.True(t, f.eng.Running("cop-1"))

	copier, err := f.copiers.GetByID(ctx, "cop-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CopierActive, copier.Status)

	f.mock.EmitTrade(fill("ext-1", "NQZ6", domain.SideBuy, 4, 18_250.25))

	require.Eventually(t, func() bool {
		return len(f.mappings.all()) == 1
	}, waitFor, tick)

	mapping := f.mappings.all()[0]
	assert.Equal(t, domain.MappingSynced, mapping.Status)
	assert.Equal(t, "cop-1", mapping.CopierID)
	assert.Equal(t, "slave-1", mapping.SlaveAccountID)
	assert.NotEmpty(t, mapping.SlaveTradeID)
	require.NotNil(t, mapping.SyncedAt)

	masterTrades, err := f.trades.ListByAccount(ctx, "master-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, masterTrades, 1)
	assert.Equal(t, 4, masterTrades[0].Quantity)
	require.NotNil(t, masterTrades[0].EntryPrice)
	assert.Equal(t, 18_250.25, *masterTrades[0].EntryPrice)

	slaveTrades, err := f.trades.ListByAccount(ctx, "slave-1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, slaveTrades, 1)
	assert.Equal(t, 2, slaveTrades[0].Quantity, "fixed scaling should size the follower order")
	assert.Equal(t, domain.TypeMarket, slaveTrades[0].Type)
	assert.Equal(t, domain.SideBuy, slaveTrades[0].Side)
	assert.Equal(t, domain.TradeFilled, slaveTrades[0].Status)
}

func TestEngineIgnoresReplayedFills(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	require.NoError(t, f.eng.Start(ctx, "cop-1"))

	f.mock.EmitTrade(fill("ext-1", "NQZ6", domain.SideBuy, 2, 18_000))
	f.mock.EmitTrade(fill("ext-1", "NQZ6", domain.SideBuy, 2, 18_000))
	f.mock.EmitTrade(fill("ext-2", "NQZ6", domain.SideBuy, 2, 18_010))

	require.Eventually(t, func() bool {
		return len(f.mappings.all()) == 2
	}, waitFor, tick)

	masterTrades, err := f.trades.ListByAccount(ctx, "master-1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, masterTrades, 2, "the replayed fill must not be recorded twice")
}

func TestEngineSkipsExitsWhenDisabled(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	copier, err := f.copiers.GetByID(ctx, "cop-1")
	require.NoError(t, err)
	copier.CopyExits = false
	require.NoError(t, f.copiers.Update(ctx, copier))

	require.NoError(t, f.eng.Start(ctx, "cop-1"))

	f.mock.EmitTrade(fill("ext-1", "NQZ6", domain.SideBuy, 2, 18_000))
	f.mock.EmitTrade(fill("ext-2", "NQZ6", domain.SideSell, 2, 18_050))

	require.Eventually(t, func() bool {
		for _, msg := range f.logs.messages() {
			if msg == "exit not copied, exits disabled" {
				return true
			}
		}
		return false
	}, waitFor, tick)

	// Only the entry fanned out; the exit was recorded but not replicated.
	assert.Len(t, f.mappings.all(), 1)
	masterTrades, err := f.trades.ListByAccount(ctx, "master-1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, masterTrades, 2)
}

func TestEngineRiskGateAutoDisablesFollower(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	cfg, err := f.configs.Get(ctx, "cop-1", "slave-1")
	require.NoError(t, err)
	cfg.DailyLossLimit = f64Ptr(500)
	cfg.AutoDisable = true
	require.NoError(t, f.configs.Update(ctx, cfg))

	f.trades.mu.Lock()
	f.trades.pnl["slave-1"] = -600
	f.trades.mu.Unlock()

	require.NoError(t, f.eng.Start(ctx, "cop-1"))
	f.mock.EmitTrade(fill("ext-1", "NQZ6", domain.SideBuy, 2, 18_000))

	require.Eventually(t, func() bool {
		return f.notifier.got("follower.disabled")
	}, waitFor, tick)

	assert.True(t, f.logs.has(domain.LogWarn, "daily loss limit"))
	assert.Empty(t, f.mappings.all(), "a risk rejection is a skip, not a failed delivery")

	cfg, err = f.configs.Get(ctx, "cop-1", "slave-1")
	require.NoError(t, err)
	assert.False(t, cfg.IsActive)
	assert.Contains(t, cfg.DisabledReason, "-600.00", "the disable reason carries the signed realized pnl")

	// No order reached the follower.
	slaveTrades, err := f.trades.ListByAccount(ctx, "slave-1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, slaveTrades)
}

func TestEngineRecordsOrderFailures(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	f.mock.PlaceOrderErr = errors.New("rejected by venue")

	require.NoError(t, f.eng.Start(ctx, "cop-1"))
	f.mock.EmitTrade(fill("ext-1", "NQZ6", domain.SideBuy, 2, 18_000))

	require.Eventually(t, func() bool {
		return len(f.mappings.all()) == 1
	}, waitFor, tick)

	mapping := f.mappings.all()[0]
	assert.Equal(t, domain.MappingFailed, mapping.Status)
	assert.Contains(t, mapping.ErrorMessage, "rejected by venue")

	slaveTrades, err := f.trades.ListByAccount(ctx, "slave-1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, slaveTrades)
}

func TestEngineFollowerSitsOutOnZeroQuantity(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	cfg, err := f.configs.Get(ctx, "cop-1", "slave-1")
	require.NoError(t, err)
	// A quarter of one contract floors to zero.
	cfg.ScalingType = domain.ScalingPercentage
	cfg.FixedContracts = nil
	cfg.PercentageScale = f64Ptr(0.25)
	require.NoError(t, f.configs.Update(ctx, cfg))

	require.NoError(t, f.eng.Start(ctx, "cop-1"))
	f.mock.EmitTrade(fill("ext-1", "NQZ6", domain.SideBuy, 1, 18_000))

	require.Eventually(t, func() bool {
		for _, msg := range f.logs.messages() {
			if msg == "scaled quantity is zero, follower sits out" {
				return true
			}
		}
		return false
	}, waitFor, tick)

	assert.Empty(t, f.mappings.all())
	slaveTrades, err := f.trades.ListByAccount(ctx, "slave-1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, slaveTrades)
}

func TestEngineLifecycleTransitions(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	// Stopped copiers cannot stop again or pause.
	err := f.eng.Stop(ctx, "cop-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	err = f.eng.Pause(ctx, "cop-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	require.NoError(t, f.eng.Start(ctx, "cop-1"))

	// Double start on an active copier is rejected.
	err = f.eng.Start(ctx, "cop-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)

	// Pause keeps the runner alive and resume flips the status back.
	require.NoError(t, f.eng.Pause(ctx, "cop-1"))
	copier, err := f.copiers.GetByID(ctx, "cop-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CopierPaused, copier.Status)
	assert.True(t, f.eng.Running("cop-1"))

	require.NoError(t, f.eng.Start(ctx, "cop-1"))
	copier, err = f.copiers.GetByID(ctx, "cop-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CopierActive, copier.Status)

	// Stop tears down the runner and releases the lock.
	require.NoError(t, f.eng.Stop(ctx, "cop-1"))
	copier, err = f.copiers.GetByID(ctx, "cop-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CopierStopped, copier.Status)
	assert.False(t, f.eng.Running("cop-1"))
	assert.True(t, f.locks.wasReleased("copier:cop-1"))

	// A stopped copier can start again.
	require.NoError(t, f.eng.Start(ctx, "cop-1"))
}

func TestEngineStartRequiresActiveFollower(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	// An all-disabled follower set leaves nothing to fan out to.
	cfg, err := f.configs.Get(ctx, "cop-1", "slave-1")
	require.NoError(t, err)
	require.NoError(t, f.configs.Disable(ctx, cfg.ID, "daily loss limit reached"))

	err = f.eng.Start(ctx, "cop-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.False(t, f.eng.Running("cop-1"))

	copier, err := f.copiers.GetByID(ctx, "cop-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CopierStopped, copier.Status)

	// Same for a copier with no follower bindings at all.
	require.NoError(t, f.configs.Delete(ctx, "cop-1", "slave-1"))
	err = f.eng.Start(ctx, "cop-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.False(t, f.eng.Running("cop-1"))
}

func TestEngineLifecycleAuditTrail(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	require.NoError(t, f.eng.Start(ctx, "cop-1"))
	assert.True(t, f.logs.has(domain.LogInfo, "copier started"))

	require.NoError(t, f.eng.Pause(ctx, "cop-1"))
	assert.True(t, f.logs.has(domain.LogInfo, "copier paused"))

	require.NoError(t, f.eng.Start(ctx, "cop-1"))
	assert.True(t, f.logs.has(domain.LogInfo, "copier resumed"))

	require.NoError(t, f.eng.Stop(ctx, "cop-1"))
	assert.True(t, f.logs.has(domain.LogInfo, "copier stopped"))
}

func TestEngineStartFailsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	f.locks.mu.Lock()
	f.locks.held["copier:cop-1"] = true
	f.locks.mu.Unlock()

	err := f.eng.Start(ctx, "cop-1")
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.False(t, f.eng.Running("cop-1"))
}

func TestEngineStartUnknownCopier(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	err := f.eng.Start(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngineRecoverActive(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	// A copier left ACTIVE by a crashed process gets picked up again.
	require.NoError(t, f.copiers.UpdateStatus(ctx, "cop-1", domain.CopierActive))

	require.NoError(t, f.eng.RecoverActive(ctx))
	assert.True(t, f.eng.Running("cop-1"))

	// Recovery is idempotent: a second pass leaves the runner alone.
	require.NoError(t, f.eng.RecoverActive(ctx))
	assert.True(t, f.eng.Running("cop-1"))
}

func TestEngineRecoveryMarksFailedCopiers(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	// Point the copier at an account with no registered adapter.
	require.NoError(t, f.accounts.Create(ctx, domain.TradingAccount{
		ID:            "master-2",
		UserID:        "user-1",
		Firm:          domain.FirmTradeify,
		Platform:      domain.PlatformTradovate,
		AccountNumber: "TDV-001",
	}))
	require.NoError(t, f.copiers.Create(ctx, domain.Copier{
		ID:              "cop-2",
		UserID:          "user-1",
		Name:            "orphan",
		MasterAccountID: "master-2",
		Status:          domain.CopierActive,
		CopyEntries:     true,
		CopyExits:       true,
	}))

	require.NoError(t, f.eng.RecoverActive(ctx))

	copier, err := f.copiers.GetByID(ctx, "cop-2")
	require.NoError(t, err)
	assert.Equal(t, domain.CopierError, copier.Status)
	assert.True(t, f.notifier.got("copier.error"))
	assert.False(t, f.eng.Running("cop-2"))
}

func TestEngineConnectFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	ctx := context.Background()

	// The mock rejects fully empty credentials.
	master, err := f.accounts.GetByID(ctx, "master-1")
	require.NoError(t, err)
	master.AccountNumber = ""
	master.Credentials = domain.Credentials{}
	require.NoError(t, f.accounts.Update(ctx, master))

	err = f.eng.Start(ctx, "cop-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
	assert.False(t, f.eng.Running("cop-1"))

	// The failed attempt is persisted on the account.
	master, err = f.accounts.GetByID(ctx, "master-1")
	require.NoError(t, err)
	assert.False(t, master.IsConnected)
	assert.NotEmpty(t, master.ErrorMessage)
}
