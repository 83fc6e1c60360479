package query

import (
	"context"
	"time"

	"github.com/wosguides/guides/cache"
)

const DefaultStorageKey = "WOS_GUIDES_CACHE"

// Persister saves and restores cache snapshots.
type Persister interface {
	PersistClient(ctx context.Context, snapshot Snapshot) error
	// RestoreClient returns nil without error when nothing was saved.
	RestoreClient(ctx context.Context) (*Snapshot, error)
	RemoveClient(ctx context.Context) error
}

// StoragePersister keeps the snapshot as one JSON value in a durable store.
type StoragePersister struct {
	store cache.Cache[string, Snapshot]
	key   string
	ttl   time.Duration
}

var _ Persister = (*StoragePersister)(nil)

// NewStoragePersister writes snapshots under key. A positive ttl expires the stored value.
func NewStoragePersister(store cache.RawCache, key string, ttl time.Duration) *StoragePersister {
	if key == "" {
		key = DefaultStorageKey
	}
	return &StoragePersister{
		store: cache.NewGenericCache[string, Snapshot](store, nil),
		key:   key,
		ttl:   ttl,
	}
}

func (p *StoragePersister) PersistClient(ctx context.Context, snapshot Snapshot) error {
	return p.store.Set(ctx, p.key, snapshot, p.ttl)
}

func (p *StoragePersister) RestoreClient(ctx context.Context) (*Snapshot, error) {
	snapshot, found, err := p.store.Get(ctx, p.key)
	if err != nil || !found {
		return nil, err
	}
	return &snapshot, nil
}

func (p *StoragePersister) RemoveClient(ctx context.Context) error {
	return p.store.Delete(ctx, p.key)
}
