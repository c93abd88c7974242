// ABOUTME: Thread-safe TTL gate that spaces repeated attempts per key
// ABOUTME: Bounds how often a completed session may be re-dispatched to the sink

// Package cooldown rate-gates retryable work per key. A key that was
// recently attempted is held back until its cooldown expires; the gate is
// size-bounded so abandoned keys cannot accumulate without limit.
package cooldown

import (
	"container/list"
	"sync"
	"time"
)

// gateEntry stores the last attempt time and the list element for a key.
type gateEntry struct {
	lastAttempt time.Time
	element     *list.Element
}

// Gate tracks the last attempt per key. Attempts are only allowed once the
// previous one has aged past the cooldown. A doubly-linked list keeps
// insertion order for O(1) eviction at capacity.
type Gate struct {
	mu       sync.Mutex
	attempts map[string]*gateEntry
	order    *list.List // keys in attempt order, oldest at front
	cooldown time.Duration
	maxSize  int
	done     chan struct{}
	closed   bool
}

// New creates a gate with the given cooldown and maximum tracked keys.
// A background goroutine drops entries whose cooldown has long expired.
func New(cooldown time.Duration, maxSize int) *Gate {
	g := &Gate{
		attempts: make(map[string]*gateEntry),
		order:    list.New(),
		cooldown: cooldown,
		maxSize:  maxSize,
		done:     make(chan struct{}),
	}
	go g.cleanup()
	return g
}

// Allow reports whether key may be attempted now and, if so, records the
// attempt atomically. A denied caller should come back after the cooldown.
func (g *Gate) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if entry, ok := g.attempts[key]; ok && time.Since(entry.lastAttempt) < g.cooldown {
		return false
	}
	g.recordLocked(key)
	return true
}

// Forget drops the key, typically after the work it gated succeeded.
func (g *Gate) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.attempts[key]
	if !ok {
		return
	}
	g.order.Remove(entry.element)
	delete(g.attempts, key)
}

// recordLocked stamps an attempt for key. Must be called with mu held.
func (g *Gate) recordLocked(key string) {
	now := time.Now()

	if entry, ok := g.attempts[key]; ok {
		entry.lastAttempt = now
		g.order.MoveToBack(entry.element)
		return
	}

	if len(g.attempts) >= g.maxSize {
		g.evictOldest()
	}

	elem := g.order.PushBack(key)
	g.attempts[key] = &gateEntry{lastAttempt: now, element: elem}
}

// evictOldest removes the stalest entry. Must be called with mu held.
func (g *Gate) evictOldest() {
	front := g.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	g.order.Remove(front)
	delete(g.attempts, key)
}

// cleanup periodically drops entries that aged well past the cooldown.
func (g *Gate) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.dropExpired()
		case <-g.done:
			return
		}
	}
}

func (g *Gate) dropExpired() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for key, entry := range g.attempts {
		if now.Sub(entry.lastAttempt) > g.cooldown {
			g.order.Remove(entry.element)
			delete(g.attempts, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		close(g.done)
		g.closed = true
	}
}
