package query

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pitabwire/util"
	"golang.org/x/sync/singleflight"

	"github.com/wosguides/guides/network"
	"github.com/wosguides/guides/workerpool"
)

const (
	DefaultRetention     = 7 * 24 * time.Hour
	DefaultQueryRetry    = 2
	DefaultMutationRetry = 1
	DefaultRetryDelay    = time.Second

	maxRetryDelay = 30 * time.Second
)

var (
	ErrOffline   = errors.New("query: mutation refused while offline")
	ErrNoFetcher = errors.New("query: no fetch function known for key")
)

// RawFetcher loads the JSON encoded value of a query.
type RawFetcher func(ctx context.Context) (json.RawMessage, error)

// Resolver supplies a fetch function for keys that have no registered fetcher, such as
// entries restored from a snapshot.
type Resolver func(key Key) (RawFetcher, bool)

// Raw adapts a typed fetch function.
func Raw[T any](fn func(ctx context.Context) (T, error)) RawFetcher {
	return func(ctx context.Context) (json.RawMessage, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
}

type Option func(*Client)

func WithPersister(p Persister) Option {
	return func(c *Client) {
		c.persister = p
	}
}

// WithRetention sets how long an unused entry is kept. Non-positive values keep the default.
func WithRetention(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retention = d
		}
	}
}

// WithGCInterval starts a janitor evicting unused entries on the interval.
func WithGCInterval(d time.Duration) Option {
	return func(c *Client) {
		c.gcInterval = d
	}
}

func WithQueryRetry(n int) Option {
	return func(c *Client) {
		c.queryRetry = max(n, 0)
	}
}

func WithMutationRetry(n int) Option {
	return func(c *Client) {
		c.mutationRetry = max(n, 0)
	}
}

// WithRetryDelay sets the first backoff interval. Later intervals double up to 30s.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = max(d, 0)
	}
}

// WithBuster sets the snapshot version. Snapshots written with another buster are discarded.
func WithBuster(buster string) Option {
	return func(c *Client) {
		c.buster = buster
	}
}

func WithResolver(r Resolver) Option {
	return func(c *Client) {
		c.resolver = r
	}
}

func WithWorkerPool(m workerpool.Manager) Option {
	return func(c *Client) {
		c.workers = m
	}
}

// WithNetworkMonitor gates mutations on connectivity without subscribing to changes.
func WithNetworkMonitor(m network.Monitor) Option {
	return func(c *Client) {
		c.monitor = m
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client is the query cache. Reads are served from cache first and only a miss waits on
// the network. Concurrent fetches of one key share a single call.
type Client struct {
	mu       sync.Mutex
	entries  map[string]*entry
	fetchers map[string]RawFetcher
	monitor  network.Monitor

	group     singleflight.Group
	persistMu sync.Mutex
	persister Persister

	retention     time.Duration
	gcInterval    time.Duration
	queryRetry    int
	mutationRetry int
	retryDelay    time.Duration
	buster        string
	resolver      Resolver
	workers       workerpool.Manager
	now           func() time.Time

	// generation is bumped by Clear so fetches started before it are discarded.
	generation uint64
	closed     bool
	background sync.WaitGroup

	stop      chan struct{}
	closeOnce sync.Once
}

// NewClient restores the persisted snapshot, if any, before returning.
func NewClient(ctx context.Context, opts ...Option) *Client {
	c := &Client{
		entries:       map[string]*entry{},
		fetchers:      map[string]RawFetcher{},
		retention:     DefaultRetention,
		queryRetry:    DefaultQueryRetry,
		mutationRetry: DefaultMutationRetry,
		retryDelay:    DefaultRetryDelay,
		now:           time.Now,
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.restore(ctx)

	if c.gcInterval > 0 {
		go c.janitor(context.WithoutCancel(ctx))
	}
	return c
}

func (c *Client) restore(ctx context.Context) {
	if c.persister == nil {
		return
	}
	log := util.Log(ctx)

	snapshot, err := c.persister.RestoreClient(ctx)
	if err != nil {
		log.WithError(err).Warn("could not restore query cache, starting empty")
		return
	}
	if snapshot == nil {
		return
	}

	now := c.now()
	if snapshot.Buster != c.buster || now.Sub(snapshot.Timestamp) > c.retention {
		log.WithField("buster", snapshot.Buster).Info("discarding outdated query cache")
		if err = c.persister.RemoveClient(ctx); err != nil {
			log.WithError(err).Warn("could not remove outdated query cache")
		}
		return
	}

	c.mu.Lock()
	for _, pe := range snapshot.Entries {
		if len(pe.Key) == 0 || len(pe.Data) == 0 || now.Sub(pe.LastUsedAt) > c.retention {
			continue
		}
		c.entries[pe.Key.Fingerprint()] = pe.restore()
	}
	restored := len(c.entries)
	c.mu.Unlock()

	log.WithField("entries", restored).Debug("query cache restored")
}

func (c *Client) janitor(ctx context.Context) {
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.GC(ctx)
		}
	}
}

// State reports where the entry for key is in its lifecycle.
func (c *Client) State(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.Fingerprint()]
	if !ok {
		return StateAbsent
	}
	return e.state()
}

// Keys lists the cached keys in lexical order.
func (c *Client) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]Key, 0, len(c.entries))
	for _, e := range c.entries {
		keys = append(keys, slices.Clone(e.key))
	}
	slices.SortFunc(keys, func(a, b Key) int {
		return slices.Compare(a, b)
	})
	return keys
}

// Snapshot captures every entry holding data.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := Snapshot{Buster: c.buster, Timestamp: c.now(), Entries: []Entry{}}
	for _, e := range c.entries {
		if e.hasData() {
			snapshot.Entries = append(snapshot.Entries, e.persisted())
		}
	}
	slices.SortFunc(snapshot.Entries, func(a, b Entry) int {
		return slices.Compare(a.Key, b.Key)
	})
	return snapshot
}

func (c *Client) persist(ctx context.Context) {
	if c.persister == nil {
		return
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	if err := c.persister.PersistClient(ctx, c.Snapshot()); err != nil {
		util.Log(ctx).WithError(err).Warn("could not persist query cache")
	}
}

// observe records fn as the fetcher for the key, replacing any previous one.
func (c *Client) observe(fp string, fn RawFetcher) {
	c.mu.Lock()
	c.fetchers[fp] = fn
	c.mu.Unlock()
}

func (c *Client) fetcherLocked(fp string, key Key) RawFetcher {
	if fn, ok := c.fetchers[fp]; ok {
		return fn
	}
	if c.resolver != nil {
		if fn, ok := c.resolver(key); ok {
			return fn
		}
	}
	return nil
}

func (c *Client) entryLocked(fp string, key Key) *entry {
	e, ok := c.entries[fp]
	if !ok {
		e = &entry{key: slices.Clone(key), lastUsedAt: c.now()}
		c.entries[fp] = e
	}
	return e
}

// cached returns the stored data for fp and marks the entry used.
func (c *Client) cached(fp string) (json.RawMessage, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fp]
	if !ok || !e.hasData() {
		return nil, false, false
	}
	e.lastUsedAt = c.now()
	return e.data, e.stale, true
}

// fetch runs fn for key, sharing the call with concurrent fetches of the same key.
// The shared call is not cancelled when one waiter gives up.
func (c *Client) fetch(ctx context.Context, key Key, fp string, fn RawFetcher) (json.RawMessage, error) {
	ch := c.group.DoChan(fp, func() (any, error) {
		return c.execute(context.WithoutCancel(ctx), key, fp, fn)
	})

	c.mu.Lock()
	e := c.entryLocked(fp, key)
	e.waiters++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		e.waiters--
		c.mu.Unlock()
	}()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		//nolint:errcheck // execute only returns json.RawMessage
		return res.Val.(json.RawMessage), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) execute(ctx context.Context, key Key, fp string, fn RawFetcher) (json.RawMessage, error) {
	c.mu.Lock()
	c.entryLocked(fp, key).fetching = true
	generation := c.generation
	c.mu.Unlock()

	data, err := retry(ctx, c.queryRetry, c.retryDelay, fn)
	if c.settle(ctx, generation, fp, key, data, err) {
		// The follow up must start a new call rather than join this one.
		c.group.Forget(fp)
		c.scheduleRefetch(ctx, fp)
	}
	return data, err
}

// settle records the outcome of a fetch started in generation and reports whether the
// entry was invalidated meanwhile and needs another fetch. Outcomes from before a Clear
// are dropped.
func (c *Client) settle(ctx context.Context, generation uint64, fp string, key Key, data json.RawMessage, err error) bool {
	log := util.Log(ctx).WithField("query", fp)
	now := c.now()

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		log.Debug("discarding query fetched before the cache was cleared")
		return false
	}

	e := c.entryLocked(fp, key)
	e.fetching = false
	e.refetchPending = false
	invalidated := e.invalidated
	e.invalidated = false
	if err != nil {
		e.err = err
		e.failures++
	} else {
		e.store(data, now)
		e.stale = invalidated
	}
	c.mu.Unlock()

	if err != nil {
		log.WithError(err).Warn("query fetch failed")
	} else {
		log.WithField("stale", invalidated).Debug("query fetched")
	}
	c.persist(ctx)
	return err == nil && invalidated
}

// seed stores data for key as a fresh entry without fetching.
func (c *Client) seed(ctx context.Context, key Key, data json.RawMessage) {
	fp := key.Fingerprint()

	c.mu.Lock()
	e := c.entryLocked(fp, key)
	e.store(data, c.now())
	e.invalidated = false
	c.mu.Unlock()

	c.persist(ctx)
}

// scheduleRefetch queues one background fetch for fp unless one is already pending.
func (c *Client) scheduleRefetch(ctx context.Context, fp string) bool {
	c.mu.Lock()
	e, ok := c.entries[fp]
	if c.closed || !ok || e.refetchPending || e.fetching {
		c.mu.Unlock()
		return false
	}
	fn := c.fetcherLocked(fp, e.key)
	if fn == nil {
		c.mu.Unlock()
		util.Log(ctx).WithField("query", fp).Debug("no fetcher for stale query, leaving it stale")
		return false
	}
	e.refetchPending = true
	key := slices.Clone(e.key)
	generation := c.generation
	c.background.Add(1)
	c.mu.Unlock()

	scheduled := workerpool.Go(ctx, c.workers, "query.refetch", func(taskCtx context.Context) {
		defer c.background.Done()
		if !c.isGeneration(generation) {
			return
		}
		_, _ = c.fetch(taskCtx, key, fp, fn)
	})
	if !scheduled {
		c.background.Done()
		c.mu.Lock()
		e.refetchPending = false
		c.mu.Unlock()
	}
	return scheduled
}

func (c *Client) isGeneration(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == generation
}

// Invalidate marks every entry whose key starts with prefix as stale and schedules a
// background refetch for each one whose fetcher is known. It returns the number of matches.
func (c *Client) Invalidate(ctx context.Context, prefix Key) int {
	c.mu.Lock()
	var matched []string
	for fp, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.stale = true
			e.invalidated = e.fetching
			matched = append(matched, fp)
		}
	}
	c.mu.Unlock()

	if len(matched) == 0 {
		return 0
	}

	c.persist(ctx)

	scheduled := 0
	for _, fp := range matched {
		if c.scheduleRefetch(ctx, fp) {
			scheduled++
		}
	}

	util.Log(ctx).
		WithField("prefix", prefix.String()).
		WithField("matched", len(matched)).
		WithField("refetching", scheduled).
		Debug("queries invalidated")
	return len(matched)
}

// Refetch fetches key now with its known fetcher, regardless of the cached state.
func (c *Client) Refetch(ctx context.Context, key Key) error {
	fp := key.Fingerprint()

	c.mu.Lock()
	fn := c.fetcherLocked(fp, key)
	c.mu.Unlock()
	if fn == nil {
		return ErrNoFetcher
	}

	_, err := c.fetch(ctx, key, fp, fn)
	return err
}

// GC evicts entries unused for longer than the retention window and returns how many were removed.
func (c *Client) GC(ctx context.Context) int {
	now := c.now()

	c.mu.Lock()
	evicted := 0
	for fp, e := range c.entries {
		if e.fetching || e.waiters > 0 || now.Sub(e.lastUsedAt) <= c.retention {
			continue
		}
		delete(c.entries, fp)
		delete(c.fetchers, fp)
		evicted++
	}
	c.mu.Unlock()

	if evicted > 0 {
		util.Log(ctx).WithField("evicted", evicted).Debug("evicted unused queries")
		c.persist(ctx)
	}
	return evicted
}

// Clear drops every entry and removes the persisted snapshot. Fetches still running
// complete for their waiters but are not cached.
func (c *Client) Clear(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	c.entries = map[string]*entry{}
	c.generation++
	c.mu.Unlock()

	if c.persister == nil {
		return nil
	}
	if err := c.persister.RemoveClient(ctx); err != nil {
		util.Log(ctx).WithError(err).Warn("could not remove persisted query cache")
		return err
	}
	return nil
}

// Close stops the janitor, waits for background refetches until ctx is done and writes
// a final snapshot. No refetch is scheduled afterwards.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)

		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		done := make(chan struct{})
		go func() {
			c.background.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
			util.Log(ctx).WithError(err).Warn("closing before background refetches finished")
		}

		c.persist(ctx)
	})
	return err
}

func (c *Client) online() bool {
	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()
	return monitor == nil || monitor.Current().Online()
}

func retry[T any](ctx context.Context, retries int, delay time.Duration, op func(context.Context) (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = delay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = maxRetryDelay
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(retries, 0))), ctx)

	var result T
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	}, policy, func(err error, next time.Duration) {
		util.Log(ctx).
			WithError(err).
			WithField("attempt", attempt).
			WithField("retry_in", next.String()).
			Debug("retrying after failure")
	})
	return result, err
}
