// Package worker drains batches of hot game ids through the provider under
// a fixed concurrency cap.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oddsedge/oddsedge/internal/cache"
	"github.com/oddsedge/oddsedge/internal/coalesce"
	"github.com/oddsedge/oddsedge/internal/telemetry"
)

// Job is one odds fetch: which game, addressed via which sport.
type Job struct {
	GameID  string
	SportID string
}

// OddsFetcher is the single provider call the pool needs.
type OddsFetcher interface {
	GetMatchOdds(ctx context.Context, gameID, sportID string) ([]byte, error)
}

// Config tunes the pool.
type Config struct {
	MaxConcurrency int           // default 5
	OddsTTL        time.Duration // fresh TTL for odds writes, default 2s
	JobTimeout     time.Duration // per-job bound, default 10s
}

// Stats is a point-in-time snapshot for /stats.
type Stats struct {
	Active     int  `json:"active"`
	Queued     int  `json:"queued"`
	Processing bool `json:"processing"`
}

// Pool consumes its FIFO queue with at most MaxConcurrency workers. Each
// job fetches odds through the coalescer (so duplicates across ticks are
// cheap) and writes non-empty results to the cache. Per-job failures are
// logged and dropped; the hot set re-enqueues the id next tick.
type Pool struct {
	fetch   OddsFetcher
	store   cache.Store
	coal    *coalesce.Coalescer
	metrics *telemetry.Metrics
	cfg     Config

	mu         sync.Mutex
	queue      []Job
	active     int
	processing bool
	stopped    bool

	drained chan struct{}
}

// New creates a pool. The coalescer must be the same instance the edge
// handlers use for the odds path, so demand-driven and tick-driven fetches
// for one game collapse into one upstream call.
func New(fetch OddsFetcher, store cache.Store, coal *coalesce.Coalescer, cfg Config, metrics *telemetry.Metrics) *Pool {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.OddsTTL <= 0 {
		cfg.OddsTTL = 2 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Second
	}
	return &Pool{
		fetch:   fetch,
		store:   store,
		coal:    coal,
		metrics: metrics,
		cfg:     cfg,
		drained: make(chan struct{}, 1),
	}
}

// Enqueue appends jobs and spins up workers up to the concurrency cap.
// The queue does not deduplicate; coalescing makes duplicates cheap.
func (p *Pool) Enqueue(jobs []Job) {
	if len(jobs) == 0 {
		return
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, jobs...)
	p.processing = true

	spawn := p.cfg.MaxConcurrency - p.active
	if spawn > len(p.queue) {
		spawn = len(p.queue)
	}
	p.active += spawn
	p.publishStats()
	p.mu.Unlock()

	for i := 0; i < spawn; i++ {
		go p.work()
	}
}

// TickComplete signals each transition from processing back to idle. The
// scheduler uses it to clear its tick-in-progress flag.
func (p *Pool) TickComplete() <-chan struct{} {
	return p.drained
}

// Snapshot returns the current queue state.
func (p *Pool) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Active: p.active, Queued: len(p.queue), Processing: p.processing}
}

// Stop rejects further work, drops the queue and waits until running jobs
// finish or ctx expires.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.queue = nil
	p.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		idle := p.active == 0
		p.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Pool) work() {
	for {
		p.mu.Lock()
		if p.stopped || len(p.queue) == 0 {
			p.active--
			idle := p.active == 0 && p.processing
			if idle {
				p.processing = false
			}
			p.publishStats()
			p.mu.Unlock()
			if idle {
				select {
				case p.drained <- struct{}{}:
				default:
				}
			}
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.publishStats()
		p.mu.Unlock()

		p.process(job)
	}
}

// process runs one job. A panic is confined to the job: the recover keeps
// the worker's slot alive for the rest of the queue.
func (p *Pool) process(job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("game_id", job.GameID).
				Msg("odds worker recovered from panic")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.JobTimeout)
	defer cancel()

	key := cache.KeyOdds(job.GameID)
	payload, err := p.coal.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		return p.fetch.GetMatchOdds(ctx, job.GameID, job.SportID)
	})
	if err != nil {
		p.metrics.IncUpstreamFailure("odds")
		log.Warn().Err(err).Str("game_id", job.GameID).Str("sport_id", job.SportID).
			Msg("odds fetch failed")
		return
	}
	if len(payload) == 0 {
		// Provider answered with nothing; keep whatever is cached aging.
		log.Debug().Str("game_id", job.GameID).Msg("odds fetch returned empty payload")
		return
	}
	if err := p.store.Set(ctx, key, payload, p.cfg.OddsTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("odds cache write failed")
	}
}

// publishStats must be called with p.mu held.
func (p *Pool) publishStats() {
	p.metrics.SetWorkerStats(p.active, len(p.queue))
}
