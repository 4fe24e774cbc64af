package domain

import "time"

// CopierStatus is the lifecycle state of a copier.
//
// Transitions: STOPPED -> ACTIVE (start), ACTIVE -> STOPPED (stop),
// ACTIVE -> PAUSED (pause), PAUSED -> ACTIVE (start), any -> ERROR on an
// unrecoverable fault, ERROR -> STOPPED (stop).
type CopierStatus string

const (
	CopierStopped CopierStatus = "STOPPED"
	CopierActive  CopierStatus = "ACTIVE"
	CopierPaused  CopierStatus = "PAUSED"
	CopierError   CopierStatus = "ERROR"
)

// CanTransition reports whether moving from s to next is a legal transition.
func (s CopierStatus) CanTransition(next CopierStatus) bool {
	if next == CopierError {
		return true
	}
	switch s {
	case CopierStopped:
		return next == CopierActive
	case CopierActive:
		return next == CopierStopped || next == CopierPaused
	case CopierPaused:
		return next == CopierActive || next == CopierStopped
	case CopierError:
		return next == CopierStopped
	}
	return false
}

// Copier is a persistent replication rule: one master account fanned out to
// one or more follower bindings.
type Copier struct {
	ID              string
	UserID          string
	OrganizationID  *string
	Name            string
	MasterAccountID string
	Status          CopierStatus

	LatencyToleranceMs int

	// Copy filters.
	CopyEntries       bool
	CopyExits         bool
	CopyModifications bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScalingType selects how a master quantity maps to a follower quantity.
type ScalingType string

const (
	ScalingFixed        ScalingType = "FIXED"
	ScalingPercentage   ScalingType = "PERCENTAGE"
	ScalingBalanceBased ScalingType = "BALANCE_BASED"
)

// CopierAccountConfig binds one follower account to a copier.
// (CopierID, SlaveAccountID) is unique.
type CopierAccountConfig struct {
	ID             string
	CopierID       string
	SlaveAccountID string

	ScalingType     ScalingType
	FixedContracts  *int
	PercentageScale *float64 // ratio, 0.5 = half size

	MaxContracts   *int
	DailyLossLimit *float64
	AutoDisable    bool

	IsActive       bool
	DisabledReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RiskRule is a named threshold/action attached to a follower binding.
type RiskRule struct {
	ID        string
	ConfigID  string
	Name      string
	Threshold float64
	Action    string
	Enabled   bool
	CreatedAt time.Time
}
