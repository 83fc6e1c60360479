package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pitabwire/util"

	"github.com/wosguides/guides/cache/jetstream"
	"github.com/wosguides/guides/cache/redis"
	"github.com/wosguides/guides/cache/sqlite"
	"github.com/wosguides/guides/cache/valkey"
	"github.com/wosguides/guides/config"
)

var (
	_ RawCache = (*InMemoryCache)(nil)
	_ RawCache = (*sqlite.Cache)(nil)
	_ RawCache = (*redis.Cache)(nil)
	_ RawCache = (*valkey.Cache)(nil)
	_ RawCache = (*jetstream.Cache)(nil)
)

const defaultNamespace = "guides"

// Option configures how Open connects a store.
type Option func(*Options)

type Options struct {
	// URI selects the backend by scheme. Empty means mem://.
	URI string
	// Name namespaces the store: the sqlite table, the JetStream bucket or the redis key prefix.
	Name string
	// MaxAge bounds every value in backends that only support a store wide TTL.
	MaxAge time.Duration
}

func NewOptions(opts ...Option) *Options {
	o := &Options{Name: defaultNamespace}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithURI(uri string) Option {
	return func(o *Options) {
		o.URI = uri
	}
}

func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

func WithMaxAge(maxAge time.Duration) Option {
	return func(o *Options) {
		o.MaxAge = maxAge
	}
}

// namespace lowercases Name and replaces anything outside [a-z0-9_] with '_', since
// table and bucket names reject most punctuation.
func (o *Options) namespace() string {
	name := strings.ToLower(strings.TrimSpace(o.Name))
	if name == "" {
		return defaultNamespace
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, name)
}

// Open selects a backend from the uri scheme and connects to it.
func Open(ctx context.Context, opts ...Option) (RawCache, error) {
	o := NewOptions(opts...)
	if o.URI == "" {
		o.URI = "mem://"
	}

	scheme := config.NormalizeStorageScheme(o.URI)
	ns := o.namespace()
	util.Log(ctx).WithField("scheme", scheme).WithField("namespace", ns).Debug("opening storage")

	var (
		raw RawCache
		err error
	)

	switch scheme {
	case config.StorageSchemeMemory:
		raw = NewInMemoryCache()
	case config.StorageSchemeRedis:
		raw, err = redis.New(ctx, redis.Options{URI: o.URI, Prefix: ns})
	case config.StorageSchemeValkey:
		raw, err = valkey.New(ctx, valkey.Options{URI: o.URI, Prefix: ns})
	case config.StorageSchemeNATS:
		raw, err = jetstream.New(ctx, jetstream.Options{URI: o.URI, Bucket: ns, MaxAge: o.MaxAge})
	default:
		raw, err = sqlite.New(ctx, sqlite.Options{Path: o.URI, Table: "kv_" + ns})
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", scheme, err)
	}
	return raw, nil
}
