package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skybread8/tradesyncer/internal/adapter"
	"github.com/skybread8/tradesyncer/internal/engine"
	"github.com/skybread8/tradesyncer/internal/platform"
	"github.com/skybread8/tradesyncer/internal/server"
	"github.com/skybread8/tradesyncer/internal/server/handler"
	"github.com/skybread8/tradesyncer/internal/service"
)

// ServerMode runs the HTTP API only: accounts, copiers, and trade history can
// be managed, but no replication runs in this process. Start/stop requests
// still mutate copier status; a separate engine-mode process picks them up on
// its recovery pass.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	registry := a.buildRegistry()
	eng := a.buildEngine(deps, registry)
	a.startHTTPServer(ctx, g, deps, registry, eng)

	return g.Wait()
}

// EngineMode runs replication without the HTTP API: it recovers copiers left
// ACTIVE by a previous process and keeps them running, plus the archival loop
// when enabled.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)

	eng := a.buildEngine(deps, a.buildRegistry())
	a.startEngine(ctx, g, eng)
	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything in one process: the replication engine, the
// archival loop, and the HTTP API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	registry := a.buildRegistry()
	eng := a.buildEngine(deps, registry)
	a.startEngine(ctx, g, eng)
	a.startArchiver(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, registry, eng)
	}

	return g.Wait()
}

// buildRegistry constructs the adapter registry for the supported
// (platform, firm) matrix. One registry is shared per process so the API and
// the engine see the same adapter sessions.
func (a *App) buildRegistry() *adapter.Registry {
	return platform.NewRegistry(platform.Options{
		Mock:                 a.cfg.Adapters.Mock,
		HTTPTimeout:          a.cfg.Adapters.HTTPTimeout.Duration,
		PollInterval:         a.cfg.Adapters.PollInterval.Duration,
		ReconnectBase:        a.cfg.Adapters.ReconnectBase.Duration,
		ReconnectCap:         a.cfg.Adapters.ReconnectCap.Duration,
		ReconnectMaxAttempts: a.cfg.Adapters.ReconnectMaxAttempts,
		EnableDiscovery:      a.cfg.Adapters.EnableDiscovery,
		Logger:               a.logger,
	})
}

// buildEngine assembles the replication engine from the wired dependencies.
func (a *App) buildEngine(deps *Dependencies, registry *adapter.Registry) *engine.Engine {
	return engine.New(
		engine.Config{
			ReferenceBalance: a.cfg.Engine.ReferenceBalance,
			Heartbeat:        a.cfg.Engine.HeartbeatInterval.Duration,
			LockTTL:          a.cfg.Engine.LockTTL.Duration,
			ShutdownTimeout:  a.cfg.Engine.ShutdownTimeout.Duration,
		},
		registry,
		engine.Stores{
			Accounts: deps.AccountStore,
			Copiers:  deps.CopierStore,
			Configs:  deps.ConfigStore,
			Trades:   deps.TradeStore,
			Mappings: deps.MappingStore,
			Logs:     deps.LogStore,
		},
		deps.LockManager,
		deps.DiscoveryCache,
		deps.Notifier,
		a.logger,
	)
}

// startEngine recovers previously active copiers and ties the engine lifetime
// to the errgroup context.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, eng *engine.Engine) {
	g.Go(func() error {
		if err := eng.RecoverActive(ctx); err != nil {
			a.logger.ErrorContext(ctx, "copier recovery failed",
				slog.String("error", err.Error()),
			)
		}
		<-ctx.Done()
		if err := eng.Close(); err != nil {
			a.logger.WarnContext(ctx, "engine close", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// startArchiver runs the periodic cold-storage archival loop when enabled.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil || !a.cfg.Archive.Enabled {
		return
	}

	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retention)
				if _, err := deps.Archiver.ArchiveTrades(ctx, cutoff); err != nil {
					a.logger.ErrorContext(ctx, "trade archival failed",
						slog.String("error", err.Error()),
					)
				}
				if _, err := deps.Archiver.ArchiveExecutionLogs(ctx, cutoff); err != nil {
					a.logger.ErrorContext(ctx, "execution log archival failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// startHTTPServer builds services and handlers and adds the HTTP server to
// the errgroup. The server shuts down gracefully when the context cancels.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, registry *adapter.Registry, eng *engine.Engine) {
	accountSvc := service.NewAccountService(
		deps.AccountStore, deps.CopierStore, deps.ConfigStore,
		registry, deps.DiscoveryCache, a.logger,
	)
	copierSvc := service.NewCopierService(
		deps.CopierStore, deps.ConfigStore, deps.AccountStore, eng, a.logger,
	)
	tradeSvc := service.NewTradeService(
		deps.TradeStore, deps.MappingStore, deps.LogStore,
		deps.AccountStore, deps.CopierStore, a.logger,
	)

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Auth:     handler.NewAuthHandler(deps.UserStore, deps.SessionStore, a.logger),
			Accounts: handler.NewAccountHandler(accountSvc, a.logger),
			Copiers:  handler.NewCopierHandler(copierSvc, tradeSvc, a.logger),
			Trades:   handler.NewTradeHandler(tradeSvc, a.logger),
		},
		deps.SessionStore,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
