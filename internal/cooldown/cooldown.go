// Package cooldown implements a simple per-key rate limiter: a scope or
// command may only fire again after its configured duration has elapsed
// since the last successful use.
package cooldown

import (
	"sync"
	"time"
)

// Cooldown enforces a minimum gap between successful uses. The zero value
// has no cooldown (Poll always succeeds) until SetDuration is called.
type Cooldown struct {
	mu       sync.Mutex
	duration time.Duration
	lastUsed time.Time
}

// FromDuration constructs a Cooldown with the given minimum gap.
func FromDuration(d time.Duration) *Cooldown {
	return &Cooldown{duration: d}
}

// Poll reports whether the cooldown has elapsed since the last successful
// call, and if so, resets the clock. A zero or negative duration never
// blocks.
func (c *Cooldown) Poll(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.duration <= 0 {
		return true
	}
	if c.lastUsed.IsZero() || now.Sub(c.lastUsed) >= c.duration {
		c.lastUsed = now
		return true
	}
	return false
}

// Remaining reports how long until the cooldown next clears.
func (c *Cooldown) Remaining(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.duration <= 0 || c.lastUsed.IsZero() {
		return 0
	}
	elapsed := now.Sub(c.lastUsed)
	if elapsed >= c.duration {
		return 0
	}
	return c.duration - elapsed
}

// SetDuration updates the minimum gap without resetting the last-used
// timestamp.
func (c *Cooldown) SetDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = d
}
