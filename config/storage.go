package config

import "strings"

const (
	StorageSchemeMemory = "mem"
	StorageSchemeSQLite = "sqlite"
	StorageSchemeRedis  = "redis"
	StorageSchemeValkey = "valkey"
	StorageSchemeNATS   = "nats"
)

// NormalizeStorageScheme maps a storage uri to one of the known backend schemes.
// Anything unrecognised, including a bare file path, is treated as sqlite.
func NormalizeStorageScheme(uri string) string {
	uri = strings.TrimSpace(uri)
	scheme, _, found := strings.Cut(uri, "://")
	if !found {
		return StorageSchemeSQLite
	}

	switch strings.ToLower(scheme) {
	case StorageSchemeMemory, "memory":
		return StorageSchemeMemory
	case StorageSchemeRedis, "rediss":
		return StorageSchemeRedis
	case StorageSchemeValkey, "valkeys":
		return StorageSchemeValkey
	case StorageSchemeNATS:
		return StorageSchemeNATS
	default:
		return StorageSchemeSQLite
	}
}

func IsPersistentStorage(cfg ConfigurationStorage) bool {
	if cfg == nil {
		return false
	}
	return NormalizeStorageScheme(cfg.GetStorageURI()) != StorageSchemeMemory
}
