package adapter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/skybread8/tradesyncer/internal/domain"
)

// FetchFunc returns the recent executions from the provider's trade-fetch
// endpoint. Implemented by each platform client.
type FetchFunc func(ctx context.Context) ([]domain.TradeExecution, error)

// Poller is the push-stream fallback: when a provider issues no session token
// for a WebSocket, executions are fetched on an interval and emitted through
// the hub. Already-seen external trade ids are suppressed so a slow endpoint
// never double-delivers.
type Poller struct {
	interval time.Duration
	fetch    FetchFunc
	hub      *Hub
	logger   *slog.Logger

	mu      sync.Mutex
	seen    map[string]time.Time
	cancel  context.CancelFunc
	stopped chan struct{}
}

// seenTTL bounds the dedup window; entries older than this are pruned.
const seenTTL = 15 * time.Minute

// NewPoller creates a Poller emitting into hub. A non-positive interval
// falls back to the 5 second default.
func NewPoller(interval time.Duration, fetch FetchFunc, hub *Hub, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		interval: interval,
		fetch:    fetch,
		hub:      hub,
		logger:   logger.With(slog.String("component", "poller")),
		seen:     make(map[string]time.Time),
	}
}

// Start launches the polling loop. It is a no-op if already running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopped = make(chan struct{})

	go p.run(ctx)
}

// Stop halts the loop and waits for it to exit. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	stopped := p.stopped
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.stopped)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	execs, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.WarnContext(ctx, "trade poll failed", slog.String("error", err.Error()))
		}
		return
	}

	now := time.Now()
	for _, exec := range execs {
		if p.markSeen(exec.ExternalTradeID, now) {
			continue
		}
		p.hub.EmitTrade(exec)
	}
	p.prune(now)
}

// markSeen records the id and reports whether it was already present.
func (p *Poller) markSeen(id string, now time.Time) bool {
	if id == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[id]; ok {
		return true
	}
	p.seen[id] = now
	return false
}

func (p *Poller) prune(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ts := range p.seen {
		if now.Sub(ts) >= seenTTL {
			delete(p.seen, id)
		}
	}
}
