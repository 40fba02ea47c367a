package cache

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oddsedge/oddsedge/internal/coalesce"
)

// MemoryConfig tunes the in-process store.
type MemoryConfig struct {
	// StaleMultiplier stretches the serving window relative to the fresh
	// TTL: an entry set with ttl stays servable until ttl*StaleMultiplier.
	// Values below 1 are treated as 1 (no stale window).
	StaleMultiplier float64

	// EnableSWR controls whether stale entries are served while a
	// background refresh runs. When false the store behaves as a plain
	// TTL cache.
	EnableSWR bool

	// CleanupInterval is the janitor sweep cadence.
	CleanupInterval time.Duration

	// RefreshTimeout bounds a background stale refresh.
	RefreshTimeout time.Duration
}

type memoryEntry struct {
	value      []byte
	freshUntil time.Time
	staleUntil time.Time
}

// Memory is a thread-safe TTL store with a stale-while-revalidate window.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry

	cfg  MemoryConfig
	coal *coalesce.Coalescer

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory creates the in-process store and starts its janitor.
func NewMemory(cfg MemoryConfig) *Memory {
	if cfg.StaleMultiplier < 1 {
		cfg.StaleMultiplier = 1
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 5 * time.Second
	}

	m := &Memory{
		entries: make(map[string]*memoryEntry),
		cfg:     cfg,
		coal:    coalesce.New(),
		stop:    make(chan struct{}),
	}
	go m.janitor()
	return m
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || now.After(e.staleUntil) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	now := time.Now()
	stale := ttl
	if m.cfg.EnableSWR {
		stale = time.Duration(float64(ttl) * m.cfg.StaleMultiplier)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = &memoryEntry{
		value:      append([]byte(nil), val...),
		freshUntil: now.Add(ttl),
		staleUntil: now.Add(stale),
	}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

func (m *Memory) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	now := time.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key, e := range m.entries {
		if now.After(e.staleUntil) {
			continue
		}
		if ok, err := path.Match(pattern, key); err != nil {
			return nil, err
		} else if ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// GetOrSet implements stampede-protected reads:
//
//  1. fresh entry  -> returned as-is
//  2. stale entry  -> returned immediately, refresh runs in the background
//  3. no entry     -> the caller blocks on a coalesced factory call
//
// A factory error on a cold miss propagates to every waiter of the key; an
// error during a background refresh is swallowed and the stale entry keeps
// serving until the next attempt.
func (m *Memory) GetOrSet(ctx context.Context, key string, ttl time.Duration, factory FactoryFunc) ([]byte, error) {
	now := time.Now()

	m.mu.RLock()
	e, ok := m.entries[key]
	var val []byte
	var fresh, servable bool
	if ok {
		fresh = !now.After(e.freshUntil)
		servable = !now.After(e.staleUntil)
		if servable {
			val = append([]byte(nil), e.value...)
		}
	}
	m.mu.RUnlock()

	if fresh {
		return val, nil
	}
	if servable {
		go m.refresh(key, ttl, factory)
		return val, nil
	}

	return m.coal.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			_ = m.Set(ctx, key, v, ttl)
		}
		return v, nil
	})
}

// refresh revalidates a stale entry through the same coalescing path the
// cold-miss branch uses, so concurrent stale readers trigger one upstream
// call between them.
func (m *Memory) refresh(key string, ttl time.Duration, factory FactoryFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RefreshTimeout)
	defer cancel()

	_, err := m.coal.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			_ = m.Set(ctx, key, v, ttl)
		}
		return v, nil
	})
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("background cache refresh failed")
	}
}

// Len returns the number of entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the janitor and drops all entries.
func (m *Memory) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.mu.Lock()
	m.entries = make(map[string]*memoryEntry)
	m.mu.Unlock()
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictExpired()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) evictExpired() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, e := range m.entries {
		if now.After(e.staleUntil) {
			delete(m.entries, key)
		}
	}
}
