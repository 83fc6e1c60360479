// Package valkey stores guides data in valkey through the official client.
package valkey

import (
	"context"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/wosguides/guides/internal/keyspace"
)

const (
	pingTimeout = 5 * time.Second
	scanCount   = 100
)

type Options struct {
	// URI is a valkey://, valkeys://, redis:// or rediss:// connection string.
	URI string
	// Prefix keeps this store's keys apart from others in the same database.
	Prefix string
}

type Cache struct {
	vk   valkey.Client
	keys keyspace.Prefix
}

// New connects and pings the server.
func New(ctx context.Context, opts Options) (*Cache, error) {
	clientOpts, err := valkey.ParseURL(redisScheme(opts.URI))
	if err != nil {
		return nil, err
	}

	vk, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err = vk.Do(pingCtx, vk.B().Ping().Build()).Error(); err != nil {
		vk.Close()
		return nil, err
	}

	return &Cache{vk: vk, keys: keyspace.New(opts.Prefix)}, nil
}

// redisScheme rewrites valkey schemes to the redis ones ParseURL understands.
func redisScheme(uri string) string {
	if rest, ok := strings.CutPrefix(uri, "valkeys://"); ok {
		return "rediss://" + rest
	}
	if rest, ok := strings.CutPrefix(uri, "valkey://"); ok {
		return "redis://" + rest
	}
	return uri
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.vk.Do(ctx, c.vk.B().Get().Key(c.keys.Key(key)).Build()).AsBytes()
	switch {
	case valkey.IsValkeyNil(err):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	default:
		return val, true, nil
	}
}

// Set stores value with millisecond precision expiry. A ttl of zero or less never expires.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	set := c.vk.B().Set().Key(c.keys.Key(key)).Value(valkey.BinaryString(value))
	if ttl <= 0 {
		return c.vk.Do(ctx, set.Build()).Error()
	}
	return c.vk.Do(ctx, set.PxMilliseconds(max(ttl.Milliseconds(), 1)).Build()).Error()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.vk.Do(ctx, c.vk.B().Unlink().Key(c.keys.Key(key)).Build()).Error()
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.vk.Do(ctx, c.vk.B().Exists().Key(c.keys.Key(key)).Build()).AsInt64()
	return n > 0, err
}

// Flush unlinks this store's keys. Without a prefix the whole database is flushed.
func (c *Cache) Flush(ctx context.Context) error {
	if !c.keys.Owned() {
		return c.vk.Do(ctx, c.vk.B().Flushdb().Build()).Error()
	}

	cursor := uint64(0)
	for {
		page, err := c.vk.Do(ctx,
			c.vk.B().Scan().Cursor(cursor).Match(c.keys.Pattern()).Count(scanCount).Build()).AsScanEntry()
		if err != nil {
			return err
		}
		if len(page.Elements) > 0 {
			if err = c.vk.Do(ctx, c.vk.B().Unlink().Key(page.Elements...).Build()).Error(); err != nil {
				return err
			}
		}
		if page.Cursor == 0 {
			return nil
		}
		cursor = page.Cursor
	}
}

func (c *Cache) Close() error {
	c.vk.Close()
	return nil
}
