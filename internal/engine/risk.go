package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// riskGate enforces the per-follower daily loss limit before a replicated
// order is placed.
type riskGate struct {
	trades domain.TradeStore
	now    func() time.Time
}

func newRiskGate(trades domain.TradeStore) *riskGate {
	return &riskGate{trades: trades, now: time.Now}
}

// check returns a non-empty reason when the follower must not receive the
// order. The loss window resets at midnight UTC; a realised loss equal to the
// limit already trips the gate.
func (g *riskGate) check(ctx context.Context, cfg domain.CopierAccountConfig, slaveAccountID string) (string, error) {
	if cfg.DailyLossLimit == nil {
		return "", nil
	}

	since := g.midnight()
	pnl, err := g.trades.SumRealizedPnL(ctx, slaveAccountID, since)
	if err != nil {
		return "", fmt.Errorf("engine: risk gate pnl: %w", err)
	}

	loss := -pnl
	if loss >= *cfg.DailyLossLimit {
		return fmt.Sprintf("daily loss limit reached: realized pnl %.2f, limit %.2f", pnl, *cfg.DailyLossLimit), nil
	}
	return "", nil
}

func (g *riskGate) midnight() time.Time {
	now := g.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
