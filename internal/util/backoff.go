package util

import (
	"context"
	"time"
)

// Backoff is a capped exponential delay for loops that retry after a
// persistent error. The zero value waits 10ms first and at most 1s.
type Backoff struct {
	Min, Max time.Duration

	cur time.Duration
}

// Wait sleeps for the next delay. It returns false if ctx ended first.
func (b *Backoff) Wait(ctx context.Context) bool {
	d := b.Next()
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Next advances and returns the delay without sleeping.
func (b *Backoff) Next() time.Duration {
	lo, hi := b.Min, b.Max
	if lo <= 0 {
		lo = 10 * time.Millisecond
	}
	if hi <= 0 {
		hi = time.Second
	}

	switch {
	case b.cur < lo:
		b.cur = lo
	default:
		b.cur = min(b.cur*2, hi)
	}
	return b.cur
}

// Reset restarts from the minimum delay after a success.
func (b *Backoff) Reset() {
	b.cur = 0
}
