package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces provider requests evenly. Each Wait reserves the next
// free slot and sleeps until it, so callers queue in arrival order instead
// of polling. A nil *RateLimiter never blocks.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	now      func() time.Time
}

// NewRateLimiter allows perMinute requests per minute, the unit provider
// plans are quoted in. perMinute <= 0 returns nil.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{interval: time.Minute / time.Duration(perMinute), now: time.Now}
}

// Wait blocks until the caller's slot comes up or ctx is done. A cancelled
// wait hands its slot back when no later caller has reserved after it.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rl.mu.Lock()
	now := rl.now()
	slot := rl.next
	if slot.Before(now) {
		slot = now
	}
	rl.next = slot.Add(rl.interval)
	rl.mu.Unlock()

	d := slot.Sub(now)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		rl.mu.Lock()
		if rl.next.Equal(slot.Add(rl.interval)) {
			rl.next = slot
		}
		rl.mu.Unlock()
		return ctx.Err()
	}
}
