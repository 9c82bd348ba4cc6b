package session

import (
	"sync"
	"time"
)

// Coalescer delays a write until a quiet period elapses, collapsing rapid
// triggers into one call (trailing edge). Flush forces the write
// synchronously, which tests and shutdown paths rely on.
type Coalescer struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	fn       func()
}

// NewCoalescer creates a coalescer invoking fn after interval of quiet.
func NewCoalescer(interval time.Duration, fn func()) *Coalescer {
	return &Coalescer{interval: interval, fn: fn}
}

// Trigger (re)arms the timer. Safe to call from any goroutine.
func (c *Coalescer) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.interval, c.fn)
}

// Flush cancels any pending timer and runs the write synchronously.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	c.fn()
}

// Stop cancels any pending write without running it.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
