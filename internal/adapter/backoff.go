package adapter

import "time"

// Backoff implements the shared reconnect policy: the nth retry waits
// min(base * 2^n, cap) and retries stop after MaxAttempts. The zero value is
// not usable; construct with NewBackoff.
type Backoff struct {
	base        time.Duration
	cap         time.Duration
	maxAttempts int
	attempt     int
}

// NewBackoff creates a Backoff with the given base delay, cap, and attempt
// budget. Non-positive arguments fall back to the defaults (1s, 30s, 5).
func NewBackoff(base, cap time.Duration, maxAttempts int) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if cap <= 0 {
		cap = 30 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Backoff{base: base, cap: cap, maxAttempts: maxAttempts}
}

// Next returns the delay before the next attempt and whether an attempt
// remains. Attempts are counted from zero, so the first delay equals base.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempt >= b.maxAttempts {
		return 0, false
	}
	d := b.base << uint(b.attempt)
	if d > b.cap || d <= 0 {
		d = b.cap
	}
	b.attempt++
	return d, true
}

// Reset clears the attempt counter after a successful reconnect.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns the number of attempts consumed so far.
func (b *Backoff) Attempt() int {
	return b.attempt
}
