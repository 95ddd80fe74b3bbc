// Package debounce coalesces bursts of work per key: only the last callback
// scheduled within the quiet period runs.
package debounce

import (
	"sync"
	"time"
)

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Coalescer keeps at most one pending timer per key.
type Coalescer[K comparable] struct {
	delay   time.Duration
	mu      sync.Mutex
	pending map[K]*entry
	gen     uint64
	stopped bool
}

func New[K comparable](delay time.Duration) *Coalescer[K] {
	return &Coalescer[K]{delay: delay, pending: make(map[K]*entry)}
}

func (c *Coalescer[K]) Delay() time.Duration {
	return c.delay
}

// Schedule replaces any pending callback for key and restarts the quiet
// period. fn runs on its own goroutine after the handle has been removed.
func (c *Coalescer[K]) Schedule(key K, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if e, ok := c.pending[key]; ok {
		e.timer.Stop()
	}
	c.gen++
	e := &entry{gen: c.gen}
	gen := c.gen
	e.timer = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		cur, ok := c.pending[key]
		if !ok || cur.gen != gen {
			// replaced or cancelled after the timer already fired
			c.mu.Unlock()
			return
		}
		delete(c.pending, key)
		c.mu.Unlock()
		fn()
	})
	c.pending[key] = e
}

// Cancel drops the pending callback for key. It reports whether one existed.
func (c *Coalescer[K]) Cancel(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(c.pending, key)
	return true
}

func (c *Coalescer[K]) Pending(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

func (c *Coalescer[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Stop cancels everything and rejects further scheduling. It returns the
// keys that were still pending.
func (c *Coalescer[K]) Stop() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	keys := make([]K, 0, len(c.pending))
	for k, e := range c.pending {
		e.timer.Stop()
		keys = append(keys, k)
	}
	c.pending = make(map[K]*entry)
	return keys
}
