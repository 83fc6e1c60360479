// Package redis stores guides data in a redis database, for shells that share one cache.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wosguides/guides/internal/keyspace"
)

const (
	pingTimeout = 5 * time.Second
	unlinkBatch = 100
)

type Options struct {
	// URI is a redis:// or rediss:// connection string.
	URI string
	// Prefix keeps this store's keys apart from others in the same database.
	Prefix string
}

type Cache struct {
	rdb  *redis.Client
	keys keyspace.Prefix
}

// New connects and pings the server.
func New(ctx context.Context, opts Options) (*Cache, error) {
	redisOpts, err := redis.ParseURL(opts.URI)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err = rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &Cache{rdb: rdb, keys: keyspace.New(opts.Prefix)}, nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, c.keys.Key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	default:
		return val, true, nil
	}
}

// Set stores value with millisecond precision expiry. A ttl of zero or less never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.keys.Key(key), value, max(ttl, 0)).Err()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.rdb.Unlink(ctx, c.keys.Key(key)).Err()
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.keys.Key(key)).Result()
	return n > 0, err
}

// Flush unlinks this store's keys. Without a prefix the whole database is flushed.
func (c *Cache) Flush(ctx context.Context) error {
	if !c.keys.Owned() {
		return c.rdb.FlushDB(ctx).Err()
	}

	batch := make([]string, 0, unlinkBatch)
	iter := c.rdb.Scan(ctx, 0, c.keys.Pattern(), unlinkBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == unlinkBatch {
			if err := c.rdb.Unlink(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	return c.rdb.Unlink(ctx, batch...).Err()
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}
