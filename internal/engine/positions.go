package engine

import "sync"

// positionTracker keeps the net position per symbol for one account so
// incoming fills can be classified as entries or exits. Positive is long,
// negative is short.
type positionTracker struct {
	mu  sync.Mutex
	net map[string]int
}

func newPositionTracker() *positionTracker {
	return &positionTracker{net: make(map[string]int)}
}

// apply records a fill of signed quantity delta (positive for buys) against
// the symbol and reports whether the fill opened/extended a position (entry)
// or reduced/closed one (exit). A fill that crosses through flat counts as an
// exit; the residual opens the new position on the next fill in practice.
func (t *positionTracker) apply(symbol string, delta int) (entry bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	before := t.net[symbol]
	after := before + delta
	if after == 0 {
		delete(t.net, symbol)
	} else {
		t.net[symbol] = after
	}

	if before == 0 {
		return true
	}
	// Same direction extends, opposite direction reduces.
	return (before > 0) == (delta > 0)
}

// position returns the current net position for the symbol.
func (t *positionTracker) position(symbol string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.net[symbol]
}
