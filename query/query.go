package query

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/pitabwire/util"

	"github.com/wosguides/guides/network"
)

// Fetch returns the cached value for key when one exists, scheduling a background refetch if it
// is stale. Otherwise it fetches with fn, retrying failures, and caches the result.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	fp := key.Fingerprint()
	raw := Raw(fn)
	c.observe(fp, raw)

	if data, stale, ok := c.cached(fp); ok {
		var v T
		err := json.Unmarshal(data, &v)
		if err == nil {
			if stale {
				c.scheduleRefetch(ctx, fp)
			}
			return v, nil
		}
		util.Log(ctx).WithError(err).WithField("query", fp).Warn("cached value does not decode, fetching again")
	}

	data, err := c.fetch(ctx, key, fp, raw)
	if err != nil {
		return zero, err
	}

	var v T
	if err = json.Unmarshal(data, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// Peek returns the cached value for key without fetching.
func Peek[T any](c *Client, key Key) (T, bool) {
	var v T
	data, _, ok := c.cached(key.Fingerprint())
	if !ok || json.Unmarshal(data, &v) != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// Set stores value for key as a fresh entry.
func Set[T any](ctx context.Context, c *Client, key Key, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.seed(ctx, key, data)
	return nil
}

// Mutate runs fn when the network is available, retrying it per the mutation policy, and
// invalidates the given keys after it succeeds.
func Mutate[T any](ctx context.Context, c *Client, fn func(ctx context.Context) (T, error), invalidate ...Key) (T, error) {
	var zero T
	if !c.online() {
		util.Log(ctx).Warn("mutation refused while offline")
		return zero, ErrOffline
	}

	v, err := retry(ctx, c.mutationRetry, c.retryDelay, fn)
	if err != nil {
		return zero, err
	}

	for _, key := range invalidate {
		c.Invalidate(ctx, key)
	}
	return v, nil
}

// AttachNetwork subscribes to connectivity changes and invalidates every query when the device
// comes back online, starting from the monitor's current status. The monitor is also used to
// gate mutations.
func (c *Client) AttachNetwork(monitor network.Monitor) network.Subscription {
	c.mu.Lock()
	c.monitor = monitor
	c.mu.Unlock()

	var online atomic.Bool
	online.Store(monitor.Current().Online())

	return monitor.Subscribe(func(ctx context.Context, status network.Status) {
		now := status.Online()
		if was := online.Swap(now); now && !was {
			util.Log(ctx).Info("connection restored, refreshing cached queries")
			c.Invalidate(ctx, nil)
		}
	})
}
