package cache

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

type manager struct {
	mu     sync.RWMutex
	stores map[string]RawCache
	order  []string
}

func NewManager() Manager {
	return &manager{stores: map[string]RawCache{}}
}

// AddCache registers cache under name. A store already registered under name is replaced
// and left open for its previous owner.
func (cm *manager) AddCache(name string, cache RawCache) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.stores[name]; !ok {
		cm.order = append(cm.order, name)
	}
	cm.stores[name] = cache
}

func (cm *manager) GetRawCache(name string) (RawCache, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	raw, ok := cm.stores[name]
	return raw, ok
}

// Names lists the registered stores in registration order.
func (cm *manager) Names() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return slices.Clone(cm.order)
}

// GetCache returns a typed view over a named store.
func GetCache[K comparable, V any](m Manager, name string, keyFunc func(K) string) (Cache[K, V], bool) {
	raw, ok := m.GetRawCache(name)
	if !ok {
		return nil, false
	}
	return NewGenericCache[K, V](raw, keyFunc), true
}

// RemoveCache unregisters and closes the named store.
func (cm *manager) RemoveCache(name string) error {
	cm.mu.Lock()
	raw, ok := cm.stores[name]
	delete(cm.stores, name)
	cm.order = slices.DeleteFunc(cm.order, func(n string) bool { return n == name })
	cm.mu.Unlock()

	if !ok {
		return nil
	}
	return raw.Close()
}

// Close closes every store, most recently registered first.
func (cm *manager) Close() error {
	cm.mu.Lock()
	order := cm.order
	stores := cm.stores
	cm.order = nil
	cm.stores = map[string]RawCache{}
	cm.mu.Unlock()

	var errs []error
	for _, name := range slices.Backward(order) {
		if err := stores[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
