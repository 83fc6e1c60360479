package cache

import (
	"context"
	"sync"
	"time"
)

const defaultJanitorInterval = 5 * time.Minute

type memEntry struct {
	value    []byte
	deadline time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && !now.Before(e.deadline)
}

// InMemoryCache keeps values in process memory. It backs mem:// storage, which
// tests and shells without a writable disk use. Values are copied in and out.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time

	stop     context.CancelFunc
	stopOnce sync.Once
}

// NewInMemoryCache creates an in-memory store whose janitor drops expired values every few minutes.
func NewInMemoryCache() RawCache {
	return newInMemoryCache(defaultJanitorInterval)
}

func newInMemoryCache(janitorEvery time.Duration) *InMemoryCache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &InMemoryCache{
		entries: map[string]memEntry{},
		now:     time.Now,
		stop:    cancel,
	}
	go c.janitor(ctx, janitorEvery)
	return c
}

func (c *InMemoryCache) janitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.dropExpired()
		}
	}
}

func (c *InMemoryCache) dropExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	dropped := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

func (c *InMemoryCache) lookup(key string) (memEntry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !e.expired(c.now()) {
		return e, ok
	}
	return memEntry{}, false
}

// Len counts live values.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	n := 0
	for _, e := range c.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := c.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores value. A ttl of zero or less keeps it until deleted.
func (c *InMemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.deadline = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *InMemoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.lookup(key)
	return ok, nil
}

func (c *InMemoryCache) Flush(_ context.Context) error {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	return nil
}

// Close stops the janitor. Stored values stay readable.
func (c *InMemoryCache) Close() error {
	c.stopOnce.Do(c.stop)
	return nil
}
