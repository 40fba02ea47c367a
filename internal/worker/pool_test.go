package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oddsedge/oddsedge/internal/cache"
	"github.com/oddsedge/oddsedge/internal/coalesce"
	"github.com/oddsedge/oddsedge/internal/provider"
)

func newTestPool(t *testing.T, fetch OddsFetcher, cfg Config) (*Pool, *cache.Memory) {
	t.Helper()
	store := cache.NewMemory(cache.MemoryConfig{EnableSWR: true, StaleMultiplier: 2})
	t.Cleanup(store.Close)
	return New(fetch, store, coalesce.New(), cfg, nil), store
}

func jobs(n int) []Job {
	out := make([]Job, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Job{GameID: fmt.Sprintf("g%d", i), SportID: "4"})
	}
	return out
}

func TestPoolRespectsConcurrencyCap(t *testing.T) {
	var current, peak atomic.Int64

	fetch := &provider.Mock{
		MatchOddsFunc: func(ctx context.Context, gameID, sportID string) ([]byte, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			return []byte(`{"o":1}`), nil
		},
	}

	p, _ := newTestPool(t, fetch, Config{MaxConcurrency: 5})
	p.Enqueue(jobs(30))

	select {
	case <-p.TickComplete():
	case <-time.After(5 * time.Second):
		t.Fatal("pool never drained")
	}

	if got := peak.Load(); got > 5 {
		t.Errorf("observed %d concurrent fetches, cap is 5", got)
	}
}

func TestPoolSignalsTickCompleteAndWritesResults(t *testing.T) {
	fetch := &provider.Mock{
		MatchOddsFunc: func(ctx context.Context, gameID, sportID string) ([]byte, error) {
			return []byte(`{"game":"` + gameID + `"}`), nil
		},
	}

	p, store := newTestPool(t, fetch, Config{MaxConcurrency: 2, OddsTTL: time.Minute})
	p.Enqueue(jobs(8))

	select {
	case <-p.TickComplete():
	case <-time.After(5 * time.Second):
		t.Fatal("pool never drained")
	}

	for i := 0; i < 8; i++ {
		key := cache.KeyOdds(fmt.Sprintf("g%d", i))
		if ok, _ := store.Exists(context.Background(), key); !ok {
			t.Errorf("odds for g%d not cached", i)
		}
	}

	stats := p.Snapshot()
	if stats.Active != 0 || stats.Queued != 0 || stats.Processing {
		t.Errorf("pool should be idle after drain: %+v", stats)
	}
}

func TestPoolIsolatesFailures(t *testing.T) {
	fetch := &provider.Mock{
		MatchOddsFunc: func(ctx context.Context, gameID, sportID string) ([]byte, error) {
			if gameID == "g1" {
				return nil, errors.New("upstream down")
			}
			return []byte(`{"o":1}`), nil
		},
	}

	p, store := newTestPool(t, fetch, Config{MaxConcurrency: 2, OddsTTL: time.Minute})
	p.Enqueue(jobs(4))

	select {
	case <-p.TickComplete():
	case <-time.After(5 * time.Second):
		t.Fatal("pool never drained")
	}

	if ok, _ := store.Exists(context.Background(), cache.KeyOdds("g1")); ok {
		t.Error("failed fetch must not be cached")
	}
	for _, id := range []string{"g0", "g2", "g3"} {
		if ok, _ := store.Exists(context.Background(), cache.KeyOdds(id)); !ok {
			t.Errorf("failure of one job must not stop %s", id)
		}
	}
}

func TestPoolIsolatesPanics(t *testing.T) {
	fetch := &provider.Mock{
		MatchOddsFunc: func(ctx context.Context, gameID, sportID string) ([]byte, error) {
			if gameID == "g0" {
				panic("provider decoded garbage")
			}
			return []byte(`{"o":1}`), nil
		},
	}

	p, store := newTestPool(t, fetch, Config{MaxConcurrency: 1, OddsTTL: time.Minute})
	p.Enqueue(jobs(3))

	select {
	case <-p.TickComplete():
	case <-time.After(5 * time.Second):
		t.Fatal("panicking job killed the pool")
	}

	for _, id := range []string{"g1", "g2"} {
		if ok, _ := store.Exists(context.Background(), cache.KeyOdds(id)); !ok {
			t.Errorf("job after the panic should still run, %s missing", id)
		}
	}
}

func TestPoolSkipsEmptyPayload(t *testing.T) {
	fetch := &provider.Mock{
		MatchOddsFunc: func(ctx context.Context, gameID, sportID string) ([]byte, error) {
			return nil, nil
		},
	}

	p, store := newTestPool(t, fetch, Config{MaxConcurrency: 1, OddsTTL: time.Minute})
	p.Enqueue(jobs(1))

	select {
	case <-p.TickComplete():
	case <-time.After(5 * time.Second):
		t.Fatal("pool never drained")
	}

	if ok, _ := store.Exists(context.Background(), cache.KeyOdds("g0")); ok {
		t.Error("empty payload must not be cached")
	}
}

func TestPoolEnqueueAfterStopIsDropped(t *testing.T) {
	var calls atomic.Int64
	fetch := &provider.Mock{
		MatchOddsFunc: func(ctx context.Context, gameID, sportID string) ([]byte, error) {
			calls.Add(1)
			return []byte(`{"o":1}`), nil
		},
	}

	p, _ := newTestPool(t, fetch, Config{MaxConcurrency: 1})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	p.Enqueue(jobs(3))
	time.Sleep(30 * time.Millisecond)

	if calls.Load() != 0 {
		t.Error("a stopped pool must not run jobs")
	}
}

func TestPoolStopWaitsForInFlightJobs(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := &provider.Mock{
		MatchOddsFunc: func(ctx context.Context, gameID, sportID string) ([]byte, error) {
			close(started)
			<-release
			return []byte(`{"o":1}`), nil
		},
	}

	p, _ := newTestPool(t, fetch, Config{MaxConcurrency: 1})
	p.Enqueue(jobs(1))
	<-started

	var wg sync.WaitGroup
	wg.Add(1)
	var stopErr error
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		stopErr = p.Stop(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()

	if stopErr != nil {
		t.Fatalf("stop should succeed once the job finishes: %v", stopErr)
	}
}

func TestPoolStopTimesOutOnStuckJob(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fetch := &provider.Mock{
		MatchOddsFunc: func(ctx context.Context, gameID, sportID string) ([]byte, error) {
			<-release
			return nil, nil
		},
	}

	p, _ := newTestPool(t, fetch, Config{MaxConcurrency: 1})
	p.Enqueue(jobs(1))
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline error, got %v", err)
	}
}
