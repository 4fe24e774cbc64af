package adapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybread8/tradesyncer/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollerSuppressesAlreadySeenTrades(t *testing.T) {
	var fetches atomic.Int64
	fetch := func(ctx context.Context) ([]domain.TradeExecution, error) {
		fetches.Add(1)
		// The provider returns the same window of fills on every poll.
		return []domain.TradeExecution{
			{ExternalTradeID: "f-1", Symbol: "NQZ6", Quantity: 1},
			{ExternalTradeID: "f-2", Symbol: "NQZ6", Quantity: 2},
		}, nil
	}

	hub := NewHub()
	var emitted atomic.Int64
	hub.OnTrade(func(exec domain.TradeExecution) { emitted.Add(1) })

	p := NewPoller(5*time.Millisecond, fetch, hub, discardLogger())
	p.Start(context.Background())
	defer p.Stop()

	// Wait for several polls, then check each fill was delivered exactly once.
	require.Eventually(t, func() bool {
		return fetches.Load() >= 3
	}, 3*time.Second, time.Millisecond)
	assert.Equal(t, int64(2), emitted.Load())
}

func TestPollerEmitsFillsWithoutIDsEveryPoll(t *testing.T) {
	fetch := func(ctx context.Context) ([]domain.TradeExecution, error) {
		return []domain.TradeExecution{{Symbol: "ESZ6", Quantity: 1}}, nil
	}

	hub := NewHub()
	var emitted atomic.Int64
	hub.OnTrade(func(exec domain.TradeExecution) { emitted.Add(1) })

	p := NewPoller(5*time.Millisecond, fetch, hub, discardLogger())
	p.Start(context.Background())
	defer p.Stop()

	// Without an external id there is nothing to dedup on.
	require.Eventually(t, func() bool {
		return emitted.Load() >= 2
	}, 3*time.Second, time.Millisecond)
}

func TestPollerSurvivesFetchErrors(t *testing.T) {
	var fetches atomic.Int64
	fetch := func(ctx context.Context) ([]domain.TradeExecution, error) {
		if fetches.Add(1) == 1 {
			return nil, errors.New("gateway timeout")
		}
		return []domain.TradeExecution{{ExternalTradeID: "f-1"}}, nil
	}

	hub := NewHub()
	var emitted atomic.Int64
	hub.OnTrade(func(exec domain.TradeExecution) { emitted.Add(1) })

	p := NewPoller(5*time.Millisecond, fetch, hub, discardLogger())
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		return emitted.Load() == 1
	}, 3*time.Second, time.Millisecond)
}

func TestPollerStartAndStopIdempotent(t *testing.T) {
	fetch := func(ctx context.Context) ([]domain.TradeExecution, error) { return nil, nil }

	p := NewPoller(time.Millisecond, fetch, NewHub(), discardLogger())
	p.Start(context.Background())
	p.Start(context.Background())

	p.Stop()
	p.Stop()
}
