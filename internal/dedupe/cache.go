// ABOUTME: Bounded TTL set of recently seen update keys (Telegram update IDs, Matrix event IDs)
// ABOUTME: The gateway claims a key before handling an update and releases it if handling fails

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults applied when Options leave a field zero.
const (
	DefaultTTL             = 10 * time.Minute
	DefaultMaxSize         = 10000
	DefaultCleanupInterval = time.Minute
)

// Options configures a Cache.
type Options struct {
	TTL             time.Duration
	MaxSize         int
	CleanupInterval time.Duration
	Now             func() time.Time // time.Now if nil
}

type entry struct {
	seenAt time.Time
	elem   *list.Element
}

// Cache remembers keys for TTL, holding at most MaxSize of them. When full the
// key seen longest ago is dropped first.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// New creates a Cache and starts its cleanup goroutine. Close stops it.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     opts.Now,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop(opts.CleanupInterval)
	return c
}

// Seen reports whether key was claimed within the TTL.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked(key)
}

// Claim marks key as seen and reports whether the caller is the first to do so
// within the TTL. A false return means the key is a duplicate.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(key) {
		return false
	}
	c.putLocked(key)
	return true
}

// Release forgets key so a redelivery is handled again.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.order.Remove(e.elem)
		delete(c.entries, key)
	}
}

// Len returns the number of keys held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) liveLocked(key string) bool {
	e, ok := c.entries[key]
	return ok && c.now().Sub(e.seenAt) < c.ttl
}

func (c *Cache) putLocked(key string) {
	now := c.now()

	if e, ok := c.entries[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.elem)
		return
	}

	for len(c.entries) >= c.maxSize {
		front := c.order.Front()
		if front == nil {
			break
		}
		oldest, _ := front.Value.(string)
		c.order.Remove(front)
		delete(c.entries, oldest)
	}

	c.entries[key] = &entry{seenAt: now, elem: c.order.PushBack(key)}
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Expire()
		case <-c.done:
			return
		}
	}
}

// Expire drops every key older than the TTL and returns how many went.
func (c *Cache) Expire() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	// Entries are in claim order, so stop at the first live one.
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		e := c.entries[key]
		if now.Sub(e.seenAt) < c.ttl {
			break
		}
		c.order.Remove(front)
		delete(c.entries, key)
		removed++
	}
	return removed
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
