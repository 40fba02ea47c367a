package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oddsedge/oddsedge/internal/coalesce"
)

// DefaultPrefix namespaces every key the edge writes to a shared backend.
const DefaultPrefix = "ex:"

// Redis is the process-shared store. The backend has no native stale
// concept, so stale-while-revalidate degrades to plain TTL here; cold-miss
// coalescing stays process-local, which is acceptable for single-node edge
// instances.
type Redis struct {
	rdb    *redis.Client
	prefix string
	coal   *coalesce.Coalescer
}

// NewRedis wraps an existing client. An empty prefix falls back to
// DefaultPrefix.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{
		rdb:    rdb,
		prefix: prefix,
		coal:   coalesce.New(),
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.prefix+key, val, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+key).Err()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	raw, err := r.rdb.Keys(ctx, r.prefix+pattern).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, r.prefix))
	}
	return keys, nil
}

func (r *Redis) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory FactoryFunc) ([]byte, error) {
	if val, ok, err := r.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return val, nil
	}

	return r.coal.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			if err := r.Set(ctx, key, v, ttl); err != nil {
				return nil, err
			}
		}
		return v, nil
	})
}
