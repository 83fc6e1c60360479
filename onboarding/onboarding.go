package onboarding

import (
	"context"

	"github.com/pitabwire/util"

	"github.com/wosguides/guides/cache"
)

const DefaultStorageKey = "@onboarding_completed"

// Store persists whether the first-run flow has been completed. The flag is never cleared.
type Store struct {
	flags cache.Cache[string, bool]
	key   string
}

func NewStore(store cache.RawCache, key string) *Store {
	if key == "" {
		key = DefaultStorageKey
	}
	return &Store{
		flags: cache.NewGenericCache[string, bool](store, nil),
		key:   key,
	}
}

// IsCompleted reports the persisted flag. Missing or unreadable state counts as not completed.
func (s *Store) IsCompleted(ctx context.Context) bool {
	completed, found, err := s.flags.Get(ctx, s.key)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("could not read onboarding state")
		return false
	}
	return found && completed
}

func (s *Store) SetCompleted(ctx context.Context) error {
	if err := s.flags.Set(ctx, s.key, true, 0); err != nil {
		util.Log(ctx).WithError(err).Warn("could not persist onboarding state")
		return err
	}
	return nil
}
