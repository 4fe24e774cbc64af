package service

import (
	"context"
	"log/slog"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// TradeService exposes read access to recorded trades, replication mappings,
// and the copier audit log.
type TradeService struct {
	trades   domain.TradeStore
	mappings domain.MappingStore
	logs     domain.ExecutionLogStore
	accounts domain.AccountStore
	copiers  domain.CopierStore
	logger   *slog.Logger
}

// NewTradeService creates a TradeService.
func NewTradeService(
	trades domain.TradeStore,
	mappings domain.MappingStore,
	logs domain.ExecutionLogStore,
	accounts domain.AccountStore,
	copiers domain.CopierStore,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades:   trades,
		mappings: mappings,
		logs:     logs,
		accounts: accounts,
		copiers:  copiers,
		logger:   logger.With(slog.String("component", "trade_service")),
	}
}

// History returns the user's trades across all accounts, newest first.
func (s *TradeService) History(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.trades.ListByUser(ctx, userID, opts)
}

// ListByAccount returns trades on one account the user owns.
func (s *TradeService) ListByAccount(ctx context.Context, accountID, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	if _, err := s.accounts.GetOwned(ctx, accountID, userID); err != nil {
		return nil, err
	}
	return s.trades.ListByAccount(ctx, accountID, opts)
}

// ListByCopier returns trades produced or observed by one copier the user
// owns.
func (s *TradeService) ListByCopier(ctx context.Context, copierID, userID string, opts domain.ListOpts) ([]domain.Trade, error) {
	if _, err := s.copiers.GetOwned(ctx, copierID, userID); err != nil {
		return nil, err
	}
	return s.trades.ListByCopier(ctx, copierID, opts)
}

// Mappings returns the copier's master-to-follower replication records.
func (s *TradeService) Mappings(ctx context.Context, copierID, userID string, opts domain.ListOpts) ([]domain.TradeMapping, error) {
	if _, err := s.copiers.GetOwned(ctx, copierID, userID); err != nil {
		return nil, err
	}
	return s.mappings.ListByCopier(ctx, copierID, opts)
}

// Logs returns the copier's audit entries, newest first.
func (s *TradeService) Logs(ctx context.Context, copierID, userID string, opts domain.ListOpts) ([]domain.ExecutionLog, error) {
	if _, err := s.copiers.GetOwned(ctx, copierID, userID); err != nil {
		return nil, err
	}
	return s.logs.ListByCopier(ctx, copierID, opts)
}
