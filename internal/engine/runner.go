package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skybread8/tradesyncer/internal/adapter"
	"github.com/skybread8/tradesyncer/internal/domain"
)

// execBuffer bounds the fill queue between the adapter callback and the
// runner loop.
const execBuffer = 256

// runner drives one copier: it consumes the master's fills and replicates
// them to every active follower binding.
type runner struct {
	eng     *Engine
	copier  domain.Copier
	master  domain.TradingAccount
	adapter adapter.Adapter
	tracker *positionTracker
	gate    *riskGate
	logger  *slog.Logger

	execCh  chan domain.TradeExecution
	dispose adapter.Disposer
	cancel  context.CancelFunc
	done    chan struct{}
	unlock  func()
}

func newRunner(e *Engine, copier domain.Copier, master domain.TradingAccount, ad adapter.Adapter, unlock func()) *runner {
	return &runner{
		eng:     e,
		copier:  copier,
		master:  master,
		adapter: ad,
		tracker: newPositionTracker(),
		gate:    newRiskGate(e.stores.Trades),
		logger: e.logger.With(
			slog.String("copier_id", copier.ID),
			slog.String("master_account", master.ID),
		),
		execCh: make(chan domain.TradeExecution, execBuffer),
		done:   make(chan struct{}),
		unlock: unlock,
	}
}

func (r *runner) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.dispose = r.adapter.OnTradeUpdate(func(exec domain.TradeExecution) {
		select {
		case r.execCh <- exec:
		default:
			r.logger.Warn("fill queue full, execution dropped",
				slog.String("external_trade_id", exec.ExternalTradeID))
		}
	})

	go r.loop(ctx)
}

// halt unsubscribes, drains the loop, and releases the copier lock.
// Idempotent.
func (r *runner) halt() {
	if r.cancel == nil {
		return
	}
	if r.dispose != nil {
		r.dispose()
		r.dispose = nil
	}
	r.cancel()
	r.cancel = nil
	<-r.done
	r.unlock()
}

func (r *runner) loop(ctx context.Context) {
	defer close(r.done)

	heartbeat := time.NewTicker(r.eng.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case exec := <-r.execCh:
			r.handle(ctx, exec)
		case <-heartbeat.C:
			r.checkHealth(ctx)
		}
	}
}

// checkHealth verifies the master session each heartbeat and reconnects when
// the adapter's own recovery gave up.
func (r *runner) checkHealth(ctx context.Context) {
	if r.adapter.IsConnected() {
		return
	}

	r.logger.Warn("master session down, reconnecting")
	if err := r.eng.connectAccount(ctx, r.adapter, r.master); err != nil {
		r.logger.Error("master reconnect failed", slog.String("error", err.Error()))
		r.eng.markError(ctx, r.copier.ID, "master connection lost: "+err.Error())
		return
	}
	r.logger.Info("master session restored")
}

// handle processes one master fill end to end: classify, persist, fan out.
func (r *runner) handle(ctx context.Context, exec domain.TradeExecution) {
	copier, err := r.eng.stores.Copiers.GetByID(ctx, r.copier.ID)
	if err != nil {
		r.logger.Error("copier reload failed", slog.String("error", err.Error()))
		return
	}
	if copier.Status != domain.CopierActive {
		r.logger.Debug("fill ignored, copier not active",
			slog.String("status", string(copier.Status)))
		return
	}
	if exec.Status != domain.TradeFilled && exec.Status != domain.TradePartiallyFilled {
		return
	}

	delta := exec.Quantity
	if exec.Side == domain.SideSell {
		delta = -delta
	}
	entry := r.tracker.apply(exec.Symbol, delta)

	masterTrade := r.buildMasterTrade(exec, entry)
	if err := r.eng.stores.Trades.Insert(ctx, masterTrade); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Replayed delivery; the fan-out already happened.
			return
		}
		r.logger.Error("master trade persist failed", slog.String("error", err.Error()))
		return
	}

	if entry && !copier.CopyEntries {
		r.appendLog(ctx, domain.LogInfo, "entry not copied, entries disabled", &masterTrade.ID, nil, nil, nil)
		return
	}
	if !entry && !copier.CopyExits {
		r.appendLog(ctx, domain.LogInfo, "exit not copied, exits disabled", &masterTrade.ID, nil, nil, nil)
		return
	}

	configs, err := r.eng.stores.Configs.ListByCopier(ctx, r.copier.ID)
	if err != nil {
		r.logger.Error("follower bindings load failed", slog.String("error", err.Error()))
		return
	}

	var wg sync.WaitGroup
	for _, cfg := range configs {
		if !cfg.IsActive {
			continue
		}
		wg.Add(1)
		go func(cfg domain.CopierAccountConfig) {
			defer wg.Done()
			r.replicate(ctx, cfg, masterTrade)
		}(cfg)
	}
	wg.Wait()
}

func (r *runner) buildMasterTrade(exec domain.TradeExecution, entry bool) domain.Trade {
	copierID := r.copier.ID
	now := exec.ExecutedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	price := exec.Price

	t := domain.Trade{
		ID:              uuid.New().String(),
		AccountID:       r.master.ID,
		CopierID:        &copierID,
		Symbol:          exec.Symbol,
		Side:            exec.Side,
		Type:            exec.Type,
		Quantity:        exec.Quantity,
		StopLoss:        exec.StopLoss,
		TakeProfit:      exec.TakeProfit,
		Status:          exec.Status,
		ExternalOrderID: exec.ExternalOrderID,
		ExternalTradeID: exec.ExternalTradeID,
		FilledAt:        &now,
	}
	if entry {
		t.EntryPrice = &price
		t.OpenedAt = &now
	} else {
		t.ExitPrice = &price
		t.ClosedAt = &now
	}
	return t
}

// replicate delivers one master trade to one follower. Failures are isolated:
// they are recorded as a failed mapping and an audit entry, never propagated
// to the other followers.
func (r *runner) replicate(ctx context.Context, cfg domain.CopierAccountConfig, masterTrade domain.Trade) {
	slaveID := cfg.SlaveAccountID
	log := r.logger.With(slog.String("slave_account", slaveID))

	// A mapping for this pair means a previous delivery already succeeded or
	// was recorded; never place the order twice.
	if _, err := r.eng.stores.Mappings.GetByMasterAndSlave(ctx, masterTrade.ID, slaveID); err == nil {
		return
	}

	reason, err := r.gate.check(ctx, cfg, slaveID)
	if err != nil {
		log.Error("risk gate failed", slog.String("error", err.Error()))
		r.recordFailure(ctx, cfg, masterTrade, "risk check error: "+err.Error())
		return
	}
	if reason != "" {
		// A risk rejection is a skip, not a delivery failure: the follower
		// simply sits this fill out, so no mapping row is written.
		r.appendLog(ctx, domain.LogWarn, "order rejected by risk gate: "+reason,
			&masterTrade.ID, nil, &slaveID, map[string]any{"reason": reason})

		if cfg.AutoDisable {
			if err := r.eng.stores.Configs.Disable(ctx, cfg.ID, reason); err != nil {
				log.Error("auto-disable failed", slog.String("error", err.Error()))
			} else if r.eng.notifier != nil {
				_ = r.eng.notifier.Notify(ctx, "follower.disabled",
					"Follower auto-disabled",
					fmt.Sprintf("copier %s follower %s: %s", r.copier.ID, slaveID, reason))
			}
		}
		return
	}

	slave, err := r.eng.stores.Accounts.GetByID(ctx, slaveID)
	if err != nil {
		log.Error("slave account load failed", slog.String("error", err.Error()))
		r.recordFailure(ctx, cfg, masterTrade, "account load error: "+err.Error())
		return
	}

	qty := scaleQuantity(cfg, masterTrade.Quantity, slave.CurrentBalance, r.eng.cfg.ReferenceBalance)
	if qty == 0 {
		r.appendLog(ctx, domain.LogInfo, "scaled quantity is zero, follower sits out",
			&masterTrade.ID, nil, &slaveID, nil)
		return
	}

	ad, err := r.eng.registry.Get(slave.Platform, slave.Firm)
	if err != nil {
		log.Error("no adapter for slave", slog.String("error", err.Error()))
		r.recordFailure(ctx, cfg, masterTrade, "no adapter: "+err.Error())
		return
	}
	if !ad.IsConnected() {
		if err := r.eng.connectAccount(ctx, ad, slave); err != nil {
			log.Error("slave connect failed", slog.String("error", err.Error()))
			r.recordFailure(ctx, cfg, masterTrade, "connect error: "+err.Error())
			return
		}
	}

	// Followers always receive market orders so they fill immediately at the
	// prevailing price; protective levels are carried over unchanged.
	order := domain.TradeOrder{
		Symbol:     masterTrade.Symbol,
		Side:       masterTrade.Side,
		Type:       domain.TypeMarket,
		Quantity:   qty,
		StopLoss:   masterTrade.StopLoss,
		TakeProfit: masterTrade.TakeProfit,
	}

	exec, err := ad.PlaceOrder(ctx, order)
	if err != nil {
		log.Error("order placement failed", slog.String("error", err.Error()))
		r.recordFailure(ctx, cfg, masterTrade, "place order: "+err.Error())
		return
	}

	slaveTrade := domain.Trade{
		ID:              uuid.New().String(),
		AccountID:       slaveID,
		CopierID:        masterTrade.CopierID,
		Symbol:          order.Symbol,
		Side:            order.Side,
		Type:            order.Type,
		Quantity:        qty,
		EntryPrice:      masterTrade.EntryPrice,
		ExitPrice:       masterTrade.ExitPrice,
		StopLoss:        order.StopLoss,
		TakeProfit:      order.TakeProfit,
		Status:          exec.Status,
		ExternalOrderID: exec.ExternalOrderID,
		ExternalTradeID: exec.ExternalTradeID,
	}
	if err := r.eng.stores.Trades.Insert(ctx, slaveTrade); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		log.Error("slave trade persist failed", slog.String("error", err.Error()))
	}

	now := time.Now().UTC()
	mapping := domain.TradeMapping{
		ID:             uuid.New().String(),
		CopierID:       r.copier.ID,
		MasterTradeID:  masterTrade.ID,
		SlaveTradeID:   slaveTrade.ID,
		SlaveAccountID: slaveID,
		Status:         domain.MappingSynced,
		SyncedAt:       &now,
	}
	if err := r.eng.stores.Mappings.Insert(ctx, mapping); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		log.Error("mapping persist failed", slog.String("error", err.Error()))
	}

	r.appendLog(ctx, domain.LogInfo, "trade replicated",
		&masterTrade.ID, &slaveTrade.ID, &slaveID,
		map[string]any{"quantity": qty, "symbol": order.Symbol, "side": string(order.Side)})
}

// recordFailure writes the failed mapping so retries and operators can see
// what went wrong. Duplicate mappings are fine; the first record wins.
func (r *runner) recordFailure(ctx context.Context, cfg domain.CopierAccountConfig, masterTrade domain.Trade, reason string) {
	mapping := domain.TradeMapping{
		ID:             uuid.New().String(),
		CopierID:       r.copier.ID,
		MasterTradeID:  masterTrade.ID,
		SlaveAccountID: cfg.SlaveAccountID,
		Status:         domain.MappingFailed,
		ErrorMessage:   reason,
	}
	if err := r.eng.stores.Mappings.Insert(ctx, mapping); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		r.logger.Error("failure mapping persist failed", slog.String("error", err.Error()))
	}
}

func (r *runner) appendLog(ctx context.Context, level domain.LogLevel, msg string, masterTradeID, slaveTradeID, slaveAccountID *string, details map[string]any) {
	entry := domain.ExecutionLog{
		CopierID:       r.copier.ID,
		Level:          level,
		Message:        msg,
		MasterTradeID:  masterTradeID,
		SlaveTradeID:   slaveTradeID,
		SlaveAccountID: slaveAccountID,
		Details:        details,
	}
	if err := r.eng.stores.Logs.Append(ctx, entry); err != nil {
		r.logger.Error("execution log append failed", slog.String("error", err.Error()))
	}
}
