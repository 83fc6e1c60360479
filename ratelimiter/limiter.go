// Package ratelimiter throttles outgoing calls with one token bucket per key.
package ratelimiter

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultKey               = "default"
	defaultRequestsPerSecond = 10
	defaultBurstSize         = 20
	defaultCleanupInterval   = 5 * time.Minute
	defaultEntryTTL          = 10 * time.Minute
	defaultMaxEntries        = 1000
)

// Config defines the token bucket applied to each key.
type Config struct {
	RequestsPerSecond float64
	// BurstSize defaults to the per second rate, at least one.
	BurstSize int
	// Keys idle for EntryTTL are dropped every CleanupInterval.
	CleanupInterval time.Duration
	EntryTTL        time.Duration
	// MaxEntries caps tracked keys. The least recently used key goes first.
	MaxEntries int
}

// DefaultConfig returns limits suited to a single device talking to one backend.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond: defaultRequestsPerSecond,
		BurstSize:         defaultBurstSize,
		CleanupInterval:   defaultCleanupInterval,
		EntryTTL:          defaultEntryTTL,
		MaxEntries:        defaultMaxEntries,
	}
}

func normalizeConfig(cfg *Config) Config {
	if cfg == nil {
		return *DefaultConfig()
	}

	out := *cfg
	if out.RequestsPerSecond <= 0 {
		out.RequestsPerSecond = defaultRequestsPerSecond
	}
	if out.BurstSize <= 0 {
		out.BurstSize = max(1, int(out.RequestsPerSecond))
	}
	if out.CleanupInterval <= 0 {
		out.CleanupInterval = defaultCleanupInterval
	}
	if out.EntryTTL <= 0 {
		out.EntryTTL = defaultEntryTTL
	}
	if out.MaxEntries <= 0 {
		out.MaxEntries = defaultMaxEntries
	}
	return out
}

type bucket struct {
	key      string
	limiter  *rate.Limiter
	lastUsed time.Time
}

// KeyedLimiter applies token bucket limits independently per key, e.g. per API resource.
type KeyedLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*list.Element
	// recency holds *bucket values, most recently used at the front.
	recency *list.List

	stop     chan struct{}
	stopOnce sync.Once
}

// NewKeyedLimiter starts a limiter that forgets idle keys in the background until Close.
func NewKeyedLimiter(cfg *Config) *KeyedLimiter {
	kl := &KeyedLimiter{
		cfg:     normalizeConfig(cfg),
		now:     time.Now,
		buckets: map[string]*list.Element{},
		recency: list.New(),
		stop:    make(chan struct{}),
	}
	go kl.forgetIdle()
	return kl
}

// Allow consumes a token for key without waiting.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.bucket(key).Allow()
}

// Wait blocks until key has a token or ctx is done. It fails at once when the
// token could not arrive before the ctx deadline.
func (k *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return k.bucket(key).Wait(ctx)
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.recency.Len()
}

func (k *KeyedLimiter) Close() error {
	k.stopOnce.Do(func() { close(k.stop) })
	return nil
}

// bucket returns the limiter for key, creating it and evicting the coldest keys as needed.
// An empty key shares the "default" bucket.
func (k *KeyedLimiter) bucket(key string) *rate.Limiter {
	if key == "" {
		key = defaultKey
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if el, ok := k.buckets[key]; ok {
		b := el.Value.(*bucket)
		b.lastUsed = now
		k.recency.MoveToFront(el)
		return b.limiter
	}

	b := &bucket{
		key:      key,
		limiter:  rate.NewLimiter(rate.Limit(k.cfg.RequestsPerSecond), k.cfg.BurstSize),
		lastUsed: now,
	}
	k.buckets[key] = k.recency.PushFront(b)

	for k.recency.Len() > k.cfg.MaxEntries {
		k.removeLocked(k.recency.Back())
	}
	return b.limiter
}

func (k *KeyedLimiter) removeLocked(el *list.Element) {
	b := k.recency.Remove(el).(*bucket)
	delete(k.buckets, b.key)
}

func (k *KeyedLimiter) forgetIdle() {
	ticker := time.NewTicker(k.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-k.stop:
			return
		case <-ticker.C:
			k.cleanupExpired(k.now())
		}
	}
}

// cleanupExpired drops keys unused since now minus EntryTTL, walking from the coldest.
func (k *KeyedLimiter) cleanupExpired(now time.Time) {
	cutoff := now.Add(-k.cfg.EntryTTL)

	k.mu.Lock()
	defer k.mu.Unlock()

	for el := k.recency.Back(); el != nil; {
		if el.Value.(*bucket).lastUsed.After(cutoff) {
			return
		}
		prev := el.Prev()
		k.removeLocked(el)
		el = prev
	}
}
