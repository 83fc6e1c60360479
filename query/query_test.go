package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/wosguides/guides/cache"
	"github.com/wosguides/guides/config"
	"github.com/wosguides/guides/network"
	"github.com/wosguides/guides/workerpool"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type failingPersister struct{}

func (failingPersister) PersistClient(context.Context, Snapshot) error {
	return errors.New("disk full")
}

func (failingPersister) RestoreClient(context.Context) (*Snapshot, error) {
	return nil, errors.New("disk unreadable")
}

func (failingPersister) RemoveClient(context.Context) error {
	return errors.New("disk locked")
}

type guide struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type QuerySuite struct {
	suite.Suite
	ctx   context.Context
	store cache.RawCache
	clock *fakeClock
}

func TestQuerySuite(t *testing.T) {
	suite.Run(t, new(QuerySuite))
}

func (s *QuerySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = cache.NewInMemoryCache()
	s.clock = &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.T().Cleanup(func() { _ = s.store.Close() })
}

func (s *QuerySuite) newClient(opts ...Option) *Client {
	base := []Option{
		WithPersister(NewStoragePersister(s.store, DefaultStorageKey, DefaultRetention)),
		WithRetryDelay(0),
		WithBuster("1.0.0"),
		withClock(s.clock.Now),
	}
	c := NewClient(s.ctx, append(base, opts...)...)
	s.T().Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func countingFetcher(calls *atomic.Int32, value []guide) func(context.Context) ([]guide, error) {
	return func(context.Context) ([]guide, error) {
		calls.Add(1)
		return value, nil
	}
}

func (s *QuerySuite) TestKeyFingerprintAndPrefix() {
	key := NewKey("guides", "category", "X")
	s.Equal(`["guides","category","X"]`, key.Fingerprint())
	s.Equal(`[]`, Key(nil).Fingerprint())
	s.Equal("guides/category/X", key.String())

	s.True(key.HasPrefix(nil))
	s.True(key.HasPrefix(NewKey("guides")))
	s.True(key.HasPrefix(key))
	s.False(key.HasPrefix(NewKey("categories")))
	s.False(NewKey("guides").HasPrefix(key))
}

func (s *QuerySuite) TestMissFetchesThenServesFromCache() {
	c := s.newClient()
	key := NewKey("guides")
	var calls atomic.Int32
	fn := countingFetcher(&calls, []guide{{ID: "g1", Title: "Start"}})

	s.Equal(StateAbsent, c.State(key))

	first, err := Fetch(s.ctx, c, key, fn)
	s.Require().NoError(err)
	second, err := Fetch(s.ctx, c, key, fn)
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal(int32(1), calls.Load())
	s.Equal(StateFresh, c.State(key))
}

func (s *QuerySuite) TestReadsRetryTwiceThenFail() {
	c := s.newClient()
	var calls atomic.Int32

	_, err := Fetch(s.ctx, c, NewKey("broken"), func(context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("boom")
	})
	s.EqualError(err, "boom")
	s.Equal(int32(3), calls.Load())
	s.Equal(StateErrored, c.State(NewKey("broken")))

	calls.Store(0)
	got, err := Fetch(s.ctx, c, NewKey("flaky"), func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	s.Require().NoError(err)
	s.Equal("ok", got)
	s.Equal(int32(3), calls.Load())
}

func (s *QuerySuite) TestConcurrentFetchesShareOneCall() {
	c := s.newClient()
	key := NewKey("guides", "category", "X")
	fp := key.Fingerprint()

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) ([]guide, error) {
		calls.Add(1)
		<-release
		return []guide{{ID: "g1"}, {ID: "g2"}}, nil
	}

	results := make([][]guide, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = Fetch(s.ctx, c, key, fn)
		}()
	}

	s.Eventually(func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.entries[fp]
		return ok && e.waiters == 2
	}, 2*time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])
	s.Equal(int32(1), calls.Load())
	s.Equal(results[0], results[1])
	s.Len(results[0], 2)
}

func (s *QuerySuite) TestWaiterGivingUpDoesNotCancelSharedFetch() {
	c := s.newClient()
	key := NewKey("guides")
	release := make(chan struct{})

	ctx, cancel := context.WithCancel(s.ctx)
	errCh := make(chan error, 1)
	go func() {
		_, err := Fetch(ctx, c, key, func(fetchCtx context.Context) (string, error) {
			<-release
			return "value", fetchCtx.Err()
		})
		errCh <- err
	}()

	s.Eventually(func() bool { return c.State(key) == StateFetching }, 2*time.Second, 5*time.Millisecond)
	cancel()
	s.ErrorIs(<-errCh, context.Canceled)

	close(release)
	s.Eventually(func() bool { return c.State(key) == StateFresh }, 2*time.Second, 5*time.Millisecond)
	v, ok := Peek[string](c, key)
	s.True(ok)
	s.Equal("value", v)
}

func (s *QuerySuite) TestInvalidateIsIdempotent() {
	c := s.newClient()
	key := NewKey("guides")

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		if calls.Add(1) > 1 {
			<-release
			return "second", nil
		}
		return "first", nil
	}

	_, err := Fetch(s.ctx, c, key, fn)
	s.Require().NoError(err)

	s.Equal(1, c.Invalidate(s.ctx, NewKey("guides")))
	s.Equal(1, c.Invalidate(s.ctx, nil))
	s.Equal(0, c.Invalidate(s.ctx, NewKey("categories")))

	v, err := Fetch(s.ctx, c, key, fn)
	s.Require().NoError(err)
	s.Equal("first", v)

	close(release)
	s.Eventually(func() bool { return c.State(key) == StateFresh }, 2*time.Second, 5*time.Millisecond)
	s.Equal(int32(2), calls.Load())

	v, err = Fetch(s.ctx, c, key, fn)
	s.Require().NoError(err)
	s.Equal("second", v)
	s.Equal(int32(2), calls.Load())
}

func (s *QuerySuite) TestReconnectRefetchesExactlyOnce() {
	pool, err := workerpool.NewManager(s.ctx, &config.ConfigurationDefault{WorkerPoolCapacity: 4, WorkerPoolCount: 1})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	c := s.newClient(WithWorkerPool(pool))
	notifier := network.NewNotifier(network.Status{Connected: true, InternetReachable: true})
	sub := c.AttachNetwork(notifier)
	defer sub.Unsubscribe()

	var calls atomic.Int32
	fn := countingFetcher(&calls, []guide{{ID: "g1"}})
	_, err = Fetch(s.ctx, c, NewKey("guides"), fn)
	s.Require().NoError(err)

	notifier.Publish(s.ctx, network.Status{Connected: true, InternetReachable: true})
	notifier.Publish(s.ctx, network.Status{Connected: true})
	s.Equal(int32(1), calls.Load())

	notifier.Publish(s.ctx, network.Status{Connected: true, InternetReachable: true})
	s.Eventually(func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	s.Eventually(func() bool { return c.State(NewKey("guides")) == StateFresh }, 2*time.Second, 5*time.Millisecond)

	notifier.Publish(s.ctx, network.Status{Connected: true, InternetReachable: true})
	time.Sleep(50 * time.Millisecond)
	s.Equal(int32(2), calls.Load())
}

func (s *QuerySuite) TestReconnectAfterOfflineStartRefetches() {
	c := s.newClient()
	notifier := network.NewNotifier(network.Status{})

	var calls atomic.Int32
	_, err := Fetch(s.ctx, c, NewKey("guides"), countingFetcher(&calls, []guide{{ID: "g1"}}))
	s.Require().NoError(err)

	sub := c.AttachNetwork(notifier)
	defer sub.Unsubscribe()

	notifier.Publish(s.ctx, network.Status{Connected: true, InternetReachable: true})
	s.Eventually(func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	s.Eventually(func() bool { return c.State(NewKey("guides")) == StateFresh }, 2*time.Second, 5*time.Millisecond)
}

func (s *QuerySuite) TestInvalidateDuringFetchRefetches() {
	c := s.newClient()
	key := NewKey("guides")

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-release
			return "before", nil
		}
		return "after", nil
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := Fetch(s.ctx, c, key, fn)
		errCh <- err
	}()

	s.Eventually(func() bool { return c.State(key) == StateFetching }, 2*time.Second, 5*time.Millisecond)
	s.Equal(1, c.Invalidate(s.ctx, NewKey("guides")))
	close(release)
	s.Require().NoError(<-errCh)

	s.Eventually(func() bool {
		v, ok := Peek[string](c, key)
		return ok && v == "after" && c.State(key) == StateFresh
	}, 2*time.Second, 5*time.Millisecond)
	s.Equal(int32(2), calls.Load())
}

func (s *QuerySuite) TestMutationsRequireConnectivity() {
	notifier := network.NewNotifier(network.Status{})
	c := s.newClient(WithNetworkMonitor(notifier))

	var calls atomic.Int32
	_, err := Mutate(s.ctx, c, func(context.Context) (string, error) {
		calls.Add(1)
		return "done", nil
	})
	s.ErrorIs(err, ErrOffline)
	s.Zero(calls.Load())

	notifier.Publish(s.ctx, network.Status{Connected: true, InternetReachable: true})

	var reads atomic.Int32
	_, err = Fetch(s.ctx, c, NewKey("guides"), countingFetcher(&reads, nil))
	s.Require().NoError(err)

	got, err := Mutate(s.ctx, c, func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("transient")
		}
		return "done", nil
	}, NewKey("guides"))
	s.Require().NoError(err)
	s.Equal("done", got)
	s.Equal(int32(2), calls.Load())
	s.Eventually(func() bool { return reads.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	calls.Store(0)
	_, err = Mutate(s.ctx, c, func(context.Context) (string, error) {
		calls.Add(1)
		return "", errors.New("rejected")
	})
	s.EqualError(err, "rejected")
	s.Equal(int32(2), calls.Load())
}

func (s *QuerySuite) TestSnapshotRoundTrip() {
	first := s.newClient()
	var calls atomic.Int32
	guides := []guide{{ID: "g1", Title: "Start"}}

	_, err := Fetch(s.ctx, first, NewKey("guides"), countingFetcher(&calls, guides))
	s.Require().NoError(err)
	s.Require().NoError(Set(s.ctx, first, NewKey("guides", "g1"), guide{ID: "g1"}))
	first.Invalidate(s.ctx, NewKey("guides", "g1"))

	second := s.newClient()
	s.Equal([]Key{NewKey("guides"), NewKey("guides", "g1")}, second.Keys())

	restored, err := Fetch(s.ctx, second, NewKey("guides"), countingFetcher(&calls, nil))
	s.Require().NoError(err)
	s.Equal(guides, restored)
	s.Equal(int32(1), calls.Load())
	s.Equal(StateFresh, second.State(NewKey("guides")))
	s.Equal(StateStale, second.State(NewKey("guides", "g1")))
}

func (s *QuerySuite) TestRestoreDiscardsOtherBusterAndExpiredEntries() {
	first := s.newClient()
	_, err := Fetch(s.ctx, first, NewKey("old"), func(context.Context) (int, error) { return 1, nil })
	s.Require().NoError(err)

	s.clock.Advance(6 * 24 * time.Hour)
	_, err = Fetch(s.ctx, first, NewKey("recent"), func(context.Context) (int, error) { return 2, nil })
	s.Require().NoError(err)

	s.clock.Advance(2 * 24 * time.Hour)
	second := s.newClient()
	s.Equal([]Key{NewKey("recent")}, second.Keys())

	third := s.newClient(WithBuster("2.0.0"))
	s.Empty(third.Keys())

	exists, err := s.store.Exists(s.ctx, DefaultStorageKey)
	s.Require().NoError(err)
	s.False(exists)
}

func (s *QuerySuite) TestRestoreFailuresStartEmpty() {
	s.Require().NoError(s.store.Set(s.ctx, DefaultStorageKey, []byte("{not json"), 0))
	s.Empty(s.newClient().Keys())

	c := s.newClient(WithPersister(failingPersister{}))
	s.Empty(c.Keys())

	v, err := Fetch(s.ctx, c, NewKey("guides"), func(context.Context) (string, error) { return "ok", nil })
	s.Require().NoError(err)
	s.Equal("ok", v)
	s.Error(c.Clear(s.ctx))
}

func (s *QuerySuite) TestResolverServesRestoredEntries() {
	first := s.newClient()
	_, err := Fetch(s.ctx, first, NewKey("categories"), func(context.Context) (string, error) { return "v1", nil })
	s.Require().NoError(err)

	var resolved atomic.Int32
	second := s.newClient(WithResolver(func(key Key) (RawFetcher, bool) {
		if !key.HasPrefix(NewKey("categories")) {
			return nil, false
		}
		return Raw(func(context.Context) (string, error) {
			resolved.Add(1)
			return "v2", nil
		}), true
	}))

	s.Equal(1, second.Invalidate(s.ctx, nil))
	s.Eventually(func() bool { return second.State(NewKey("categories")) == StateFresh }, 2*time.Second, 5*time.Millisecond)
	s.Equal(int32(1), resolved.Load())

	v, ok := Peek[string](second, NewKey("categories"))
	s.True(ok)
	s.Equal("v2", v)

	s.Require().NoError(second.Refetch(s.ctx, NewKey("categories")))
	s.Equal(int32(2), resolved.Load())
	s.ErrorIs(second.Refetch(s.ctx, NewKey("unknown")), ErrNoFetcher)
}

func (s *QuerySuite) TestGCEvictsUnusedEntries() {
	c := s.newClient(WithRetention(time.Hour))
	_, err := Fetch(s.ctx, c, NewKey("a"), func(context.Context) (int, error) { return 1, nil })
	s.Require().NoError(err)
	_, err = Fetch(s.ctx, c, NewKey("b"), func(context.Context) (int, error) { return 2, nil })
	s.Require().NoError(err)

	s.clock.Advance(40 * time.Minute)
	_, ok := Peek[int](c, NewKey("b"))
	s.True(ok)

	s.clock.Advance(30 * time.Minute)
	s.Equal(1, c.GC(s.ctx))
	s.Equal([]Key{NewKey("b")}, c.Keys())

	snapshot, err := NewStoragePersister(s.store, DefaultStorageKey, 0).RestoreClient(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(snapshot.Entries, 1)
	s.Equal(NewKey("b"), snapshot.Entries[0].Key)
}

func (s *QuerySuite) TestClearRemovesEverything() {
	c := s.newClient()
	_, err := Fetch(s.ctx, c, NewKey("guides"), func(context.Context) (int, error) { return 1, nil })
	s.Require().NoError(err)

	s.Require().NoError(c.Clear(s.ctx))
	s.Empty(c.Keys())

	exists, err := s.store.Exists(s.ctx, DefaultStorageKey)
	s.Require().NoError(err)
	s.False(exists)
}

func (s *QuerySuite) TestClearDiscardsInFlightFetch() {
	c := s.newClient()
	key := NewKey("guides")

	release := make(chan struct{})
	got := make(chan string, 1)
	go func() {
		v, _ := Fetch(s.ctx, c, key, func(context.Context) (string, error) {
			<-release
			return "old", nil
		})
		got <- v
	}()

	s.Eventually(func() bool { return c.State(key) == StateFetching }, 2*time.Second, 5*time.Millisecond)
	s.Require().NoError(c.Clear(s.ctx))
	close(release)

	s.Equal("old", <-got)
	s.Empty(c.Keys())
	s.Equal(StateAbsent, c.State(key))

	exists, err := s.store.Exists(s.ctx, DefaultStorageKey)
	s.Require().NoError(err)
	s.False(exists)
}

func (s *QuerySuite) TestCloseWaitsForBackgroundRefetch() {
	c := s.newClient()
	key := NewKey("guides")

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		if calls.Add(1) > 1 {
			<-release
			return "second", nil
		}
		return "first", nil
	}

	_, err := Fetch(s.ctx, c, key, fn)
	s.Require().NoError(err)
	s.Equal(1, c.Invalidate(s.ctx, nil))
	s.Eventually(func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- c.Close(s.ctx) }()
	s.Never(func() bool { return len(closed) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	s.Require().NoError(<-closed)

	snapshot, err := NewStoragePersister(s.store, DefaultStorageKey, 0).RestoreClient(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(snapshot.Entries, 1)
	s.JSONEq(`"second"`, string(snapshot.Entries[0].Data))

	s.Equal(1, c.Invalidate(s.ctx, nil))
	time.Sleep(20 * time.Millisecond)
	s.Equal(int32(2), calls.Load())
}

func (s *QuerySuite) TestCloseGivesUpWhenContextEnds() {
	c := s.newClient()
	key := NewKey("guides")

	release := make(chan struct{})
	defer close(release)
	var calls atomic.Int32
	_, err := Fetch(s.ctx, c, key, func(context.Context) (int, error) {
		if calls.Add(1) > 1 {
			<-release
		}
		return 1, nil
	})
	s.Require().NoError(err)
	c.Invalidate(s.ctx, nil)
	s.Eventually(func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()
	s.ErrorIs(c.Close(ctx), context.DeadlineExceeded)
}
