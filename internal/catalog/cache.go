package catalog

import "time"

// CacheEntry pairs a cached value with the moment it was loaded.
type CacheEntry[T any] struct {
	Value    T
	LoadedAt time.Time
}

// IsStale reports whether entry must be reloaded at now. A nil entry is
// always stale.
func IsStale[T any](entry *CacheEntry[T], now time.Time, ttl time.Duration) bool {
	if entry == nil {
		return true
	}
	return now.Sub(entry.LoadedAt) >= ttl
}
