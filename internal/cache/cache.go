// Package cache provides the TTL key/value store the edge serves from.
//
// Two implementations exist: Memory, a process-local store with a
// stale-while-revalidate window, and Redis, a process-shared plain-TTL
// store. Callers never see freshness metadata; Get returns any value that
// has not aged out of its serving window.
package cache

import (
	"context"
	"time"
)

// FactoryFunc produces the value for a key on a cache miss.
type FactoryFunc func(ctx context.Context) ([]byte, error)

// Store is the TTL key/value port.
type Store interface {
	// Get returns the stored value while it is still servable, stale or
	// not. The caller cannot distinguish fresh from stale.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores val under key for ttl of freshness.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// KeysMatching returns all live keys matching a glob pattern
	// (supporting * and ?). Used for hot-set enumeration only; not
	// expected to be O(1).
	KeysMatching(ctx context.Context, pattern string) ([]string, error)

	// GetOrSet returns the value for key, invoking factory on a miss with
	// stampede protection: concurrent cold misses for the same key share a
	// single factory call, and a stale entry is served immediately while a
	// background refresh runs.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, factory FactoryFunc) ([]byte, error)
}
