package cache

// Manager keeps the named stores a service owns.
type Manager interface {
	AddCache(name string, cache RawCache)
	GetRawCache(name string) (RawCache, bool)
	Names() []string
	RemoveCache(name string) error
	Close() error
}
