package guides

import (
	"context"

	"github.com/wosguides/guides/cache"
	"github.com/wosguides/guides/config"
)

// StorageCacheName is the cache manager entry holding the store opened from STORAGE_URI.
const StorageCacheName = "storage"

// WithCacheManager adds a cache manager to the service. Stores it holds are closed on Stop.
func WithCacheManager() Option {
	return func(_ context.Context, s *Service) {
		if s.caches == nil {
			s.caches = cache.NewManager()
		}
	}
}

// WithCache registers a named store owned by the service.
func WithCache(name string, rawCache cache.RawCache) Option {
	return func(ctx context.Context, s *Service) {
		if s.caches == nil {
			WithCacheManager()(ctx, s)
		}
		s.caches.AddCache(name, rawCache)
	}
}

// WithStorage supplies the durable store used for preferences and the offline cache.
// The caller keeps ownership and closes it. Without this option the store is opened from
// STORAGE_URI and registered as StorageCacheName.
func WithStorage(storage cache.RawCache) Option {
	return func(_ context.Context, s *Service) {
		s.storage = storage
	}
}

// CacheManager returns the service's cache manager.
func (s *Service) CacheManager() cache.Manager {
	return s.caches
}

// GetRawCache is a convenience method to get a raw cache by name from the service.
func (s *Service) GetRawCache(name string) (cache.RawCache, bool) {
	if s.caches == nil {
		return nil, false
	}
	return s.caches.GetRawCache(name)
}

func (s *Service) initStorage(ctx context.Context) error {
	if s.caches == nil {
		WithCacheManager()(ctx, s)
	}
	if s.storage != nil {
		return nil
	}

	if raw, ok := s.caches.GetRawCache(StorageCacheName); ok {
		s.storage = raw
		return nil
	}

	storageCfg := configAs[config.ConfigurationStorage](s)
	raw, err := cache.Open(ctx, cache.WithURI(storageCfg.GetStorageURI()))
	if err != nil {
		return err
	}
	s.caches.AddCache(StorageCacheName, raw)
	s.storage = raw
	return nil
}
