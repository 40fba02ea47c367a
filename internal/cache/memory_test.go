package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestMemory(t *testing.T, cfg MemoryConfig) *Memory {
	t.Helper()
	m := NewMemory(cfg)
	t.Cleanup(m.Close)
	return m
}

func TestMemorySetGetRoundtrip(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{EnableSWR: true, StaleMultiplier: 2})
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != "v" {
		t.Errorf("got %q, want v", got)
	}

	// The returned slice is a copy; mutating it must not reach the store.
	got[0] = 'X'
	again, _, _ := m.Get(ctx, "k")
	if string(again) != "v" {
		t.Errorf("store mutated through returned slice: %q", again)
	}
}

func TestMemoryMissAndDelete(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{})
	ctx := context.Background()

	if _, ok, _ := m.Get(ctx, "absent"); ok {
		t.Fatal("expected miss for absent key")
	}

	_ = m.Set(ctx, "k", []byte("v"), time.Minute)
	_ = m.Delete(ctx, "k")
	if ok, _ := m.Exists(ctx, "k"); ok {
		t.Fatal("key should be gone after delete")
	}
}

func TestMemoryEntryAgesThroughStaleWindow(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{EnableSWR: true, StaleMultiplier: 3})
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("v"), 30*time.Millisecond)

	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatal("fresh entry should serve")
	}

	time.Sleep(50 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatal("stale entry inside the window should still serve")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("entry past the stale window must miss")
	}
}

func TestMemorySWRDisabledMeansNoStaleWindow(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{EnableSWR: false, StaleMultiplier: 10})
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("v"), 30*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("with SWR off an expired entry must miss immediately")
	}
}

func TestMemoryKeysMatching(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{})
	ctx := context.Background()

	_ = m.Set(ctx, "hot:odds:1", []byte("a"), time.Minute)
	_ = m.Set(ctx, "hot:odds:2", []byte("b"), time.Minute)
	_ = m.Set(ctx, "sports", []byte("c"), time.Minute)

	keys, err := m.KeysMatching(ctx, "hot:odds:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("want 2 hot keys, got %v", keys)
	}
}

func TestMemoryGetOrSetColdMissCoalesces(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{EnableSWR: true, StaleMultiplier: 2})

	var calls atomic.Int64
	release := make(chan struct{})

	const readers = 10
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.GetOrSet(context.Background(), "k", time.Minute, func(ctx context.Context) ([]byte, error) {
				calls.Add(1)
				<-release
				return []byte("fetched"), nil
			})
			if err != nil {
				t.Errorf("GetOrSet: %v", err)
			}
			if string(got) != "fetched" {
				t.Errorf("got %q", got)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("want exactly 1 factory call for a concurrent cold miss, got %d", n)
	}

	// The result was written through.
	if got, ok, _ := m.Get(context.Background(), "k"); !ok || string(got) != "fetched" {
		t.Errorf("factory result should be cached, got ok=%v val=%q", ok, got)
	}
}

func TestMemoryGetOrSetColdMissErrorPropagates(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{})

	boom := errors.New("upstream down")
	_, err := m.GetOrSet(context.Background(), "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want factory error, got %v", err)
	}
	if ok, _ := m.Exists(context.Background(), "k"); ok {
		t.Fatal("failed factory must not leave an entry behind")
	}
}

func TestMemoryGetOrSetServesStaleAndRefreshesOnce(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{EnableSWR: true, StaleMultiplier: 100})
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("old"), 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond) // now stale but servable

	var calls atomic.Int64
	release := make(chan struct{})
	factory := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("new"), nil
	}

	const readers = 10
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.GetOrSet(ctx, "k", time.Minute, factory)
			if err != nil {
				t.Errorf("GetOrSet: %v", err)
			}
			if string(got) != "old" {
				t.Errorf("stale readers must get the old value, got %q", got)
			}
		}()
	}
	wg.Wait() // readers return without waiting for the refresh

	time.Sleep(50 * time.Millisecond) // let background refreshes coalesce
	close(release)

	deadline := time.Now().Add(time.Second)
	for {
		if got, _, _ := m.Get(ctx, "k"); string(got) == "new" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("refresh never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("stale stampede should trigger one refresh, got %d", n)
	}
}

func TestMemoryGetOrSetSwallowsRefreshError(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{EnableSWR: true, StaleMultiplier: 100})
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("old"), 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	got, err := m.GetOrSet(ctx, "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("upstream down")
	})
	if err != nil {
		t.Fatalf("stale read must not surface the refresh error: %v", err)
	}
	if string(got) != "old" {
		t.Errorf("got %q, want old", got)
	}

	time.Sleep(50 * time.Millisecond)
	if got, ok, _ := m.Get(ctx, "k"); !ok || string(got) != "old" {
		t.Errorf("failed refresh must leave the stale entry serving, ok=%v val=%q", ok, got)
	}
}

func TestMemoryGetOrSetSkipsEmptyPayload(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{})

	got, err := m.GetOrSet(context.Background(), "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("GetOrSet: %v", err)
	}
	if got != nil {
		t.Errorf("got %q, want nil", got)
	}
	if ok, _ := m.Exists(context.Background(), "k"); ok {
		t.Fatal("empty payload must not be cached")
	}
}

func TestMemoryEvictExpired(t *testing.T) {
	m := newTestMemory(t, MemoryConfig{CleanupInterval: time.Hour})
	ctx := context.Background()

	_ = m.Set(ctx, "gone", []byte("a"), 10*time.Millisecond)
	_ = m.Set(ctx, "kept", []byte("b"), time.Minute)
	time.Sleep(30 * time.Millisecond)

	m.evictExpired()
	if m.Len() != 1 {
		t.Errorf("want 1 entry after eviction, got %d", m.Len())
	}
}
