// Package scheduler owns the periodic refresh timers. Slow tiers call the
// provider directly and overwrite their canonical cache keys; the 1-second
// odds tier enumerates the hot set and feeds the worker pool.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oddsedge/oddsedge/internal/cache"
	"github.com/oddsedge/oddsedge/internal/hotset"
	"github.com/oddsedge/oddsedge/internal/provider"
	"github.com/oddsedge/oddsedge/internal/telemetry"
	"github.com/oddsedge/oddsedge/internal/worker"
)

// Config holds the tier cadences and TTLs.
type Config struct {
	OddsInterval      time.Duration // default 1s
	MatchListInterval time.Duration // default 60s
	TopEventsInterval time.Duration // default 1h
	BannersInterval   time.Duration // default 1h
	SidebarInterval   time.Duration // default 24h

	SportsTTL    time.Duration // default 24h
	MatchListTTL time.Duration // default 2m
	TopEventsTTL time.Duration // default 2h
	BannersTTL   time.Duration // default 2h
	SidebarTTL   time.Duration // default 48h

	// DrainTimeout bounds how long Stop waits for in-flight workers.
	DrainTimeout time.Duration // default 3s

	// Sports is the sweep list used when the cached sports payload cannot
	// be enumerated.
	Sports []string
}

func (c *Config) applyDefaults() {
	if c.OddsInterval <= 0 {
		c.OddsInterval = time.Second
	}
	if c.MatchListInterval <= 0 {
		c.MatchListInterval = 60 * time.Second
	}
	if c.TopEventsInterval <= 0 {
		c.TopEventsInterval = time.Hour
	}
	if c.BannersInterval <= 0 {
		c.BannersInterval = time.Hour
	}
	if c.SidebarInterval <= 0 {
		c.SidebarInterval = 24 * time.Hour
	}
	if c.SportsTTL <= 0 {
		c.SportsTTL = 24 * time.Hour
	}
	if c.MatchListTTL <= 0 {
		c.MatchListTTL = 2 * time.Minute
	}
	if c.TopEventsTTL <= 0 {
		c.TopEventsTTL = 2 * time.Hour
	}
	if c.BannersTTL <= 0 {
		c.BannersTTL = 2 * time.Hour
	}
	if c.SidebarTTL <= 0 {
		c.SidebarTTL = 48 * time.Hour
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 3 * time.Second
	}
	if len(c.Sports) == 0 {
		c.Sports = []string{"1", "2", "4"}
	}
}

// Stats is the scheduler health snapshot for /stats.
type Stats struct {
	Started           bool          `json:"started"`
	Uptime            time.Duration `json:"uptime"`
	OddsPollingActive bool          `json:"oddsPollingActive"`
	TicksRun          int64         `json:"ticksRun"`
	TicksSkipped      int64         `json:"ticksSkipped"`
}

// Scheduler drives all refresh tiers. Start and Stop are idempotent.
type Scheduler struct {
	cfg     Config
	client  provider.Client
	store   cache.Store
	hot     *hotset.Registry
	pool    *worker.Pool
	metrics *telemetry.Metrics

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time

	tickInProgress atomic.Bool
	ticksRun       atomic.Int64
	ticksSkipped   atomic.Int64
}

func New(cfg Config, client provider.Client, store cache.Store, hot *hotset.Registry, pool *worker.Pool, metrics *telemetry.Metrics) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:     cfg,
		client:  client,
		store:   store,
		hot:     hot,
		pool:    pool,
		metrics: metrics,
	}
}

// Start performs the one-shot bootstrap and installs one recurring timer
// per tier. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.started = true
	s.cancel = cancel
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.bootstrap(runCtx)

	tiers := []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{"matchList", s.cfg.MatchListInterval, s.refreshMatchLists},
		{"topEvents", s.cfg.TopEventsInterval, func(ctx context.Context) {
			s.refreshTier(ctx, "topEvents", cache.KeyTopEvents, s.cfg.TopEventsTTL, s.client.GetTopEvents)
		}},
		{"banners", s.cfg.BannersInterval, func(ctx context.Context) {
			s.refreshTier(ctx, "banners", cache.KeyBanners, s.cfg.BannersTTL, s.client.GetBanners)
		}},
		{"sidebar", s.cfg.SidebarInterval, func(ctx context.Context) {
			s.refreshTier(ctx, "sidebar", cache.KeySidebar, s.cfg.SidebarTTL, s.client.GetSidebarTree)
		}},
	}

	for _, tier := range tiers {
		s.wg.Add(1)
		go s.tierLoop(runCtx, tier.interval, tier.run)
	}

	s.wg.Add(2)
	go s.oddsLoop(runCtx)
	go s.completionLoop(runCtx)

	log.Info().Dur("odds_interval", s.cfg.OddsInterval).
		Int("tiers", len(tiers)+1).Msg("scheduler started")
	return nil
}

// Stop cancels all timers, waits for the loops to exit and drains the
// worker pool with a bounded deadline. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	drainCtx, drainCancel := context.WithTimeout(context.Background(), s.cfg.DrainTimeout)
	defer drainCancel()
	if err := s.pool.Stop(drainCtx); err != nil {
		log.Warn().Err(err).Msg("worker pool drain timed out on stop")
	}
	s.tickInProgress.Store(false)

	log.Info().Msg("scheduler stopped")
}

// Snapshot returns scheduler health.
func (s *Scheduler) Snapshot() Stats {
	s.mu.Lock()
	started := s.started
	startedAt := s.startedAt
	s.mu.Unlock()

	var uptime time.Duration
	if started {
		uptime = time.Since(startedAt)
	}
	return Stats{
		Started:           started,
		Uptime:            uptime,
		OddsPollingActive: s.tickInProgress.Load(),
		TicksRun:          s.ticksRun.Load(),
		TicksSkipped:      s.ticksSkipped.Load(),
	}
}

// bootstrap synchronously fetches the small, slowly-changing datasets and
// a first match-list sweep. Failures are logged, not fatal: routes serve
// empty data until the next tier tick succeeds.
func (s *Scheduler) bootstrap(ctx context.Context) {
	s.refreshTier(ctx, "bootstrap.sports", cache.KeySports, s.cfg.SportsTTL, s.client.GetAllSports)
	s.refreshTier(ctx, "bootstrap.sidebar", cache.KeySidebar, s.cfg.SidebarTTL, s.client.GetSidebarTree)
	s.refreshTier(ctx, "bootstrap.topEvents", cache.KeyTopEvents, s.cfg.TopEventsTTL, s.client.GetTopEvents)
	s.refreshTier(ctx, "bootstrap.banners", cache.KeyBanners, s.cfg.BannersTTL, s.client.GetBanners)
	s.refreshMatchLists(ctx)
	log.Info().Msg("bootstrap sweep finished")
}

func (s *Scheduler) tierLoop(ctx context.Context, interval time.Duration, run func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

// refreshTier fetches one dataset and overwrites its canonical key when
// the response is non-empty. Never propagates errors to the timer.
func (s *Scheduler) refreshTier(ctx context.Context, name, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) {
	payload, err := fetch(ctx)
	if err != nil {
		s.metrics.IncUpstreamFailure(name)
		log.Warn().Err(err).Str("tier", name).Msg("tier refresh failed")
		return
	}
	if len(payload) == 0 {
		log.Debug().Str("tier", name).Msg("tier refresh returned empty payload")
		return
	}
	if err := s.store.Set(ctx, key, payload, ttl); err != nil {
		log.Warn().Err(err).Str("tier", name).Str("key", key).Msg("tier cache write failed")
		return
	}
	log.Debug().Str("tier", name).Str("key", key).Msg("tier refreshed")
}

func (s *Scheduler) refreshMatchLists(ctx context.Context) {
	for _, sportID := range s.sportIDs(ctx) {
		sid := sportID
		s.refreshTier(ctx, "matchList", cache.KeyMatches(sid), s.cfg.MatchListTTL,
			func(ctx context.Context) ([]byte, error) {
				return s.client.GetMatchList(ctx, sid)
			})
	}
}

// sportIDs enumerates the sweep list from the cached sports payload,
// falling back to the configured list when the payload is absent or not
// enumerable.
func (s *Scheduler) sportIDs(ctx context.Context) []string {
	payload, ok, err := s.store.Get(ctx, cache.KeySports)
	if err != nil || !ok {
		return s.cfg.Sports
	}
	ids := parseSportIDs(payload)
	if len(ids) == 0 {
		return s.cfg.Sports
	}
	return ids
}

func (s *Scheduler) oddsLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.OddsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.oddsTick(ctx)
		}
	}
}

// oddsTick enqueues the live hot set. A tick arriving before the previous
// one drained is dropped rather than queued: the hot set persists, so the
// next tick re-enqueues the same ids.
func (s *Scheduler) oddsTick(ctx context.Context) {
	if s.tickInProgress.Load() {
		s.ticksSkipped.Add(1)
		s.metrics.IncTickSkipped()
		log.Debug().Msg("odds tick skipped, previous tick still draining")
		return
	}

	entries, err := s.hot.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("hot set enumeration failed")
		return
	}
	s.metrics.SetHotKeys(len(entries))
	if len(entries) == 0 {
		return
	}

	jobs := make([]worker.Job, 0, len(entries))
	for _, e := range entries {
		jobs = append(jobs, worker.Job{GameID: e.ID, SportID: e.Meta.SportID})
	}

	s.tickInProgress.Store(true)
	s.ticksRun.Add(1)
	s.metrics.IncTickRun()
	s.pool.Enqueue(jobs)
}

func (s *Scheduler) completionLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.pool.TickComplete():
			s.tickInProgress.Store(false)
		}
	}
}
