package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/skybread8/tradesyncer/internal/domain"
	"github.com/skybread8/tradesyncer/internal/engine"
)

// CopierService manages copiers, their follower bindings, and their
// lifecycle through the replication engine.
type CopierService struct {
	copiers  domain.CopierStore
	configs  domain.ConfigStore
	accounts domain.AccountStore
	engine   *engine.Engine
	logger   *slog.Logger
}

// NewCopierService creates a CopierService.
func NewCopierService(
	copiers domain.CopierStore,
	configs domain.ConfigStore,
	accounts domain.AccountStore,
	eng *engine.Engine,
	logger *slog.Logger,
) *CopierService {
	return &CopierService{
		copiers:  copiers,
		configs:  configs,
		accounts: accounts,
		engine:   eng,
		logger:   logger.With(slog.String("component", "copier_service")),
	}
}

// CopierParams carries the fields for creating or updating a copier.
type CopierParams struct {
	Name               string
	MasterAccountID    string
	LatencyToleranceMs int
	CopyEntries        bool
	CopyExits          bool
	CopyModifications  bool
}

// Create registers a copier in the STOPPED state. The master account must
// belong to the user.
func (s *CopierService) Create(ctx context.Context, userID string, p CopierParams) (domain.Copier, error) {
	if strings.TrimSpace(p.Name) == "" {
		return domain.Copier{}, fmt.Errorf("service: copier name is required: %w", domain.ErrValidation)
	}
	if _, err := s.accounts.GetOwned(ctx, p.MasterAccountID, userID); err != nil {
		return domain.Copier{}, fmt.Errorf("service: master account: %w", err)
	}

	copier := domain.Copier{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Name:               p.Name,
		MasterAccountID:    p.MasterAccountID,
		Status:             domain.CopierStopped,
		LatencyToleranceMs: p.LatencyToleranceMs,
		CopyEntries:        p.CopyEntries,
		CopyExits:          p.CopyExits,
		CopyModifications:  p.CopyModifications,
	}
	if err := s.copiers.Create(ctx, copier); err != nil {
		return domain.Copier{}, err
	}

	s.logger.InfoContext(ctx, "copier created",
		slog.String("copier_id", copier.ID),
		slog.String("master_account", copier.MasterAccountID),
	)
	return s.copiers.GetByID(ctx, copier.ID)
}

// Get returns the user's copier or domain.ErrNotFound.
func (s *CopierService) Get(ctx context.Context, id, userID string) (domain.Copier, error) {
	return s.copiers.GetOwned(ctx, id, userID)
}

// List returns all copiers the user owns.
func (s *CopierService) List(ctx context.Context, userID string) ([]domain.Copier, error) {
	return s.copiers.ListByUser(ctx, userID)
}

// Update rewrites the copier's settings. The master account binding is fixed
// at creation.
func (s *CopierService) Update(ctx context.Context, id, userID string, p CopierParams) (domain.Copier, error) {
	copier, err := s.copiers.GetOwned(ctx, id, userID)
	if err != nil {
		return domain.Copier{}, err
	}

	copier.Name = p.Name
	copier.LatencyToleranceMs = p.LatencyToleranceMs
	copier.CopyEntries = p.CopyEntries
	copier.CopyExits = p.CopyExits
	copier.CopyModifications = p.CopyModifications
	if err := s.copiers.Update(ctx, copier); err != nil {
		return domain.Copier{}, err
	}
	return s.copiers.GetByID(ctx, id)
}

// Delete removes a copier and everything bound to it. Running copiers must
// be stopped first.
func (s *CopierService) Delete(ctx context.Context, id, userID string) error {
	copier, err := s.copiers.GetOwned(ctx, id, userID)
	if err != nil {
		return err
	}
	if copier.Status == domain.CopierActive || copier.Status == domain.CopierPaused {
		return fmt.Errorf("service: copier %s is %s, stop it first: %w",
			id, copier.Status, domain.ErrInvalidState)
	}
	return s.copiers.Delete(ctx, id)
}

// Start activates replication for the copier.
func (s *CopierService) Start(ctx context.Context, id, userID string) error {
	if _, err := s.copiers.GetOwned(ctx, id, userID); err != nil {
		return err
	}
	return s.engine.Start(ctx, id)
}

// Stop halts replication and tears down the copier's runner.
func (s *CopierService) Stop(ctx context.Context, id, userID string) error {
	if _, err := s.copiers.GetOwned(ctx, id, userID); err != nil {
		return err
	}
	return s.engine.Stop(ctx, id)
}

// Pause suspends fan-out while keeping the master subscription warm.
func (s *CopierService) Pause(ctx context.Context, id, userID string) error {
	if _, err := s.copiers.GetOwned(ctx, id, userID); err != nil {
		return err
	}
	return s.engine.Pause(ctx, id)
}

// SlaveParams carries the scaling and risk settings for one follower binding.
type SlaveParams struct {
	SlaveAccountID  string
	ScalingType     domain.ScalingType
	FixedContracts  *int
	PercentageScale *float64
	MaxContracts    *int
	DailyLossLimit  *float64
	AutoDisable     bool
}

func (p SlaveParams) validate() error {
	switch p.ScalingType {
	case domain.ScalingFixed:
		if p.FixedContracts == nil || *p.FixedContracts <= 0 {
			return fmt.Errorf("service: fixed scaling needs a positive contract count: %w", domain.ErrValidation)
		}
	case domain.ScalingPercentage:
		if p.PercentageScale == nil || *p.PercentageScale <= 0 {
			return fmt.Errorf("service: percentage scaling needs a positive ratio: %w", domain.ErrValidation)
		}
	case domain.ScalingBalanceBased:
	default:
		return fmt.Errorf("service: unknown scaling type %q: %w", p.ScalingType, domain.ErrValidation)
	}
	if p.MaxContracts != nil && *p.MaxContracts <= 0 {
		return fmt.Errorf("service: max contracts must be positive: %w", domain.ErrValidation)
	}
	if p.DailyLossLimit != nil && *p.DailyLossLimit <= 0 {
		return fmt.Errorf("service: daily loss limit must be positive: %w", domain.ErrValidation)
	}
	return nil
}

// AddSlave binds a follower account to the copier. The account must belong
// to the user and differ from the master.
func (s *CopierService) AddSlave(ctx context.Context, copierID, userID string, p SlaveParams) (domain.CopierAccountConfig, error) {
	if err := p.validate(); err != nil {
		return domain.CopierAccountConfig{}, err
	}

	copier, err := s.copiers.GetOwned(ctx, copierID, userID)
	if err != nil {
		return domain.CopierAccountConfig{}, err
	}
	if p.SlaveAccountID == copier.MasterAccountID {
		return domain.CopierAccountConfig{}, fmt.Errorf(
			"service: the master account cannot follow itself: %w", domain.ErrValidation)
	}
	if _, err := s.accounts.GetOwned(ctx, p.SlaveAccountID, userID); err != nil {
		return domain.CopierAccountConfig{}, fmt.Errorf("service: slave account: %w", err)
	}

	cfg := domain.CopierAccountConfig{
		ID:              uuid.New().String(),
		CopierID:        copierID,
		SlaveAccountID:  p.SlaveAccountID,
		ScalingType:     p.ScalingType,
		FixedContracts:  p.FixedContracts,
		PercentageScale: p.PercentageScale,
		MaxContracts:    p.MaxContracts,
		DailyLossLimit:  p.DailyLossLimit,
		AutoDisable:     p.AutoDisable,
		IsActive:        true,
	}
	if err := s.configs.Create(ctx, cfg); err != nil {
		return domain.CopierAccountConfig{}, err
	}

	s.logger.InfoContext(ctx, "follower bound",
		slog.String("copier_id", copierID),
		slog.String("slave_account", p.SlaveAccountID),
		slog.String("scaling", string(p.ScalingType)),
	)
	return s.configs.Get(ctx, copierID, p.SlaveAccountID)
}

// ListSlaves returns the copier's follower bindings.
func (s *CopierService) ListSlaves(ctx context.Context, copierID, userID string) ([]domain.CopierAccountConfig, error) {
	if _, err := s.copiers.GetOwned(ctx, copierID, userID); err != nil {
		return nil, err
	}
	return s.configs.ListByCopier(ctx, copierID)
}

// UpdateSlave rewrites the binding's scaling and risk settings and
// reactivates a previously disabled follower.
func (s *CopierService) UpdateSlave(ctx context.Context, copierID, slaveAccountID, userID string, p SlaveParams) (domain.CopierAccountConfig, error) {
	if err := p.validate(); err != nil {
		return domain.CopierAccountConfig{}, err
	}
	if _, err := s.copiers.GetOwned(ctx, copierID, userID); err != nil {
		return domain.CopierAccountConfig{}, err
	}

	cfg, err := s.configs.Get(ctx, copierID, slaveAccountID)
	if err != nil {
		return domain.CopierAccountConfig{}, err
	}

	cfg.ScalingType = p.ScalingType
	cfg.FixedContracts = p.FixedContracts
	cfg.PercentageScale = p.PercentageScale
	cfg.MaxContracts = p.MaxContracts
	cfg.DailyLossLimit = p.DailyLossLimit
	cfg.AutoDisable = p.AutoDisable
	cfg.IsActive = true
	cfg.DisabledReason = ""
	if err := s.configs.Update(ctx, cfg); err != nil {
		return domain.CopierAccountConfig{}, err
	}
	return s.configs.Get(ctx, copierID, slaveAccountID)
}

// RemoveSlave unbinds the follower from the copier.
func (s *CopierService) RemoveSlave(ctx context.Context, copierID, slaveAccountID, userID string) error {
	if _, err := s.copiers.GetOwned(ctx, copierID, userID); err != nil {
		return err
	}
	return s.configs.Delete(ctx, copierID, slaveAccountID)
}
