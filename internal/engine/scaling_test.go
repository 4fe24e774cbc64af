package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skybread8/tradesyncer/internal/domain"
)

func TestScaleQuantity(t *testing.T) {
	tests := []struct {
		name             string
		cfg              domain.CopierAccountConfig
		masterQty        int
		slaveBalance     float64
		referenceBalance float64
		want             int
	}{
		{
			name:      "fixed always uses the configured size",
			cfg:       domain.CopierAccountConfig{ScalingType: domain.ScalingFixed, FixedContracts: intPtr(3)},
			masterQty: 10,
			want:      3,
		},
		{
			name:      "fixed without a size mirrors the master",
			cfg:       domain.CopierAccountConfig{ScalingType: domain.ScalingFixed},
			masterQty: 10,
			want:      10,
		},
		{
			name:      "percentage floors the scaled quantity",
			cfg:       domain.CopierAccountConfig{ScalingType: domain.ScalingPercentage, PercentageScale: f64Ptr(0.5)},
			masterQty: 5,
			want:      2,
		},
		{
			name:      "percentage can scale up",
			cfg:       domain.CopierAccountConfig{ScalingType: domain.ScalingPercentage, PercentageScale: f64Ptr(2.0)},
			masterQty: 3,
			want:      6,
		},
		{
			name:         "balance based scales by the balance ratio",
			cfg:          domain.CopierAccountConfig{ScalingType: domain.ScalingBalanceBased},
			masterQty:    4,
			slaveBalance: 25_000,
			want:         2,
		},
		{
			name:         "balance based floors fractional results",
			cfg:          domain.CopierAccountConfig{ScalingType: domain.ScalingBalanceBased},
			masterQty:    3,
			slaveBalance: 25_000,
			want:         1,
		},
		{
			name:             "balance based respects a custom reference",
			cfg:              domain.CopierAccountConfig{ScalingType: domain.ScalingBalanceBased},
			masterQty:        4,
			slaveBalance:     100_000,
			referenceBalance: 200_000,
			want:             2,
		},
		{
			name:         "balance based defaults the reference to 50k",
			cfg:          domain.CopierAccountConfig{ScalingType: domain.ScalingBalanceBased},
			masterQty:    2,
			slaveBalance: 50_000,
			want:         2,
		},
		{
			name:      "max contracts clamps the result",
			cfg:       domain.CopierAccountConfig{ScalingType: domain.ScalingFixed, FixedContracts: intPtr(10), MaxContracts: intPtr(4)},
			masterQty: 1,
			want:      4,
		},
		{
			name:      "unknown mode passes the master quantity through",
			cfg:       domain.CopierAccountConfig{ScalingType: "SOMETHING_ELSE"},
			masterQty: 7,
			want:      7,
		},
		{
			name:      "zero master quantity never places",
			cfg:       domain.CopierAccountConfig{ScalingType: domain.ScalingFixed, FixedContracts: intPtr(3)},
			masterQty: 0,
			want:      0,
		},
		{
			name:      "negative fixed size clamps to zero",
			cfg:       domain.CopierAccountConfig{ScalingType: domain.ScalingFixed, FixedContracts: intPtr(-2)},
			masterQty: 5,
			want:      0,
		},
		{
			name:         "tiny balance floors to zero and sits out",
			cfg:          domain.CopierAccountConfig{ScalingType: domain.ScalingBalanceBased},
			masterQty:    1,
			slaveBalance: 10_000,
			want:         0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scaleQuantity(tt.cfg, tt.masterQty, tt.slaveBalance, tt.referenceBalance)
			assert.Equal(t, tt.want, got)
		})
	}
}
