// Package jetstream stores guides data in a NATS JetStream key-value bucket.
package jetstream

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	njs "github.com/nats-io/nats.go/jetstream"
)

const (
	defaultBucket  = "guides"
	connectTimeout = 5 * time.Second
)

type Options struct {
	// URI is a nats:// connection string.
	URI string
	// Bucket is created when missing and reused otherwise.
	Bucket string
	// MaxAge expires every value in the bucket. Buckets have no per key ttl.
	MaxAge time.Duration
}

type Cache struct {
	nc *nats.Conn
	kv njs.KeyValue
}

func New(ctx context.Context, opts Options) (*Cache, error) {
	bucket := opts.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}

	nc, err := nats.Connect(opts.URI, nats.Timeout(connectTimeout))
	if err != nil {
		return nil, err
	}

	kv, err := openBucket(ctx, nc, njs.KeyValueConfig{Bucket: bucket, TTL: opts.MaxAge})
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Cache{nc: nc, kv: kv}, nil
}

func openBucket(ctx context.Context, nc *nats.Conn, cfg njs.KeyValueConfig) (njs.KeyValue, error) {
	js, err := njs.New(nc)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	kv, err := js.CreateKeyValue(ctx, cfg)
	if errors.Is(err, njs.ErrBucketExists) {
		return js.KeyValue(ctx, cfg.Bucket)
	}
	return kv, err
}

// kvKey maps keys such as "@app_language" onto the restricted bucket key alphabet.
func kvKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := c.kv.Get(ctx, kvKey(key))
	switch {
	case errors.Is(err, njs.ErrKeyNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	default:
		return entry.Value(), true, nil
	}
}

// Set ignores ttl. Expiry follows the bucket MaxAge.
func (c *Cache) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, kvKey(key), value)
	return err
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, kvKey(key))
	if errors.Is(err, njs.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	_, found, err := c.Get(ctx, key)
	return found, err
}

// Flush purges every key so no history is kept for them.
func (c *Cache) Flush(ctx context.Context) error {
	lister, err := c.kv.ListKeys(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = lister.Stop() }()

	for key := range lister.Keys() {
		if err = c.kv.Purge(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) Close() error {
	c.nc.Close()
	return nil
}
