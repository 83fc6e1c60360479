package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/wosguides/guides/internal"
)

// RawCache is the low-level durable key-value interface that works with bytes.
// A ttl of zero keeps the value until it is deleted.
type RawCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Flush(ctx context.Context) error
	Close() error
}

// Cache is a typed view over a shared RawCache. Views do not own the store, so they
// can neither flush nor close it.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool, error)
	Set(ctx context.Context, key K, value V, ttl time.Duration) error
	Delete(ctx context.Context, key K) error
	Exists(ctx context.Context, key K) (bool, error)
}

// GenericCache encodes values with internal.Marshal. Strings and byte slices are stored as is,
// everything else as JSON, so a saved language code reads back the same from any backend.
type GenericCache[K comparable, V any] struct {
	raw     RawCache
	keyFunc func(K) string
}

// NewGenericCache creates a typed view. A nil keyFunc formats keys with %v.
func NewGenericCache[K comparable, V any](raw RawCache, keyFunc func(K) string) Cache[K, V] {
	if keyFunc == nil {
		keyFunc = func(k K) string {
			return fmt.Sprintf("%v", k)
		}
	}
	return &GenericCache[K, V]{raw: raw, keyFunc: keyFunc}
}

// Get returns found=false with the decode error when the stored bytes are not a V.
func (g *GenericCache[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var value V
	data, found, err := g.raw.Get(ctx, g.keyFunc(key))
	if err != nil || !found {
		return value, found, err
	}

	if err = internal.Unmarshal(data, &value); err != nil {
		var zero V
		return zero, false, fmt.Errorf("decode %q: %w", g.keyFunc(key), err)
	}
	return value, true, nil
}

func (g *GenericCache[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	data, err := internal.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", g.keyFunc(key), err)
	}
	return g.raw.Set(ctx, g.keyFunc(key), data, ttl)
}

func (g *GenericCache[K, V]) Delete(ctx context.Context, key K) error {
	return g.raw.Delete(ctx, g.keyFunc(key))
}

func (g *GenericCache[K, V]) Exists(ctx context.Context, key K) (bool, error) {
	return g.raw.Exists(ctx, g.keyFunc(key))
}

// GetOrDefault returns def when the key is absent or unreadable.
func GetOrDefault[K comparable, V any](ctx context.Context, c Cache[K, V], key K, def V) V {
	value, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return def
	}
	return value
}
