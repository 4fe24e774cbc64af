package engine

import (
	"math"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// defaultReferenceBalance is the denominator for balance-based scaling when
// the engine config does not override it.
const defaultReferenceBalance = 50_000

// scaleQuantity maps a master fill quantity to the follower quantity under
// the binding's scaling mode, then clamps to the per-follower contract cap.
// Fractional results floor; a result of zero means the follower sits out.
func scaleQuantity(cfg domain.CopierAccountConfig, masterQty int, slaveBalance, referenceBalance float64) int {
	if masterQty <= 0 {
		return 0
	}
	if referenceBalance <= 0 {
		referenceBalance = defaultReferenceBalance
	}

	var qty int
	switch cfg.ScalingType {
	case domain.ScalingFixed:
		// A fixed binding without a size mirrors the master one to one.
		qty = masterQty
		if cfg.FixedContracts != nil {
			qty = *cfg.FixedContracts
		}
	case domain.ScalingPercentage:
		if cfg.PercentageScale != nil {
			qty = int(math.Floor(float64(masterQty) * *cfg.PercentageScale))
		}
	case domain.ScalingBalanceBased:
		qty = int(math.Floor(float64(masterQty) * slaveBalance / referenceBalance))
	default:
		qty = masterQty
	}

	if qty < 0 {
		qty = 0
	}
	if cfg.MaxContracts != nil && qty > *cfg.MaxContracts {
		qty = *cfg.MaxContracts
	}
	return qty
}
