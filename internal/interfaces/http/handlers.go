package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/oddsedge/oddsedge/internal/cache"
	"github.com/oddsedge/oddsedge/internal/coalesce"
	"github.com/oddsedge/oddsedge/internal/hotset"
	"github.com/oddsedge/oddsedge/internal/provider"
	"github.com/oddsedge/oddsedge/internal/scheduler"
	"github.com/oddsedge/oddsedge/internal/telemetry"
	"github.com/oddsedge/oddsedge/internal/worker"
)

const maxBodyBytes = 1 << 20

// TTLs are the per-dataset fresh durations the handlers write with.
type TTLs struct {
	Sports    time.Duration
	MatchList time.Duration
	Odds      time.Duration
	Results   time.Duration
	TopEvents time.Duration
	Banners   time.Duration
	Sidebar   time.Duration
	OnDemand  time.Duration
}

// Handlers implements the per-request edge logic: check cache, coalesce
// the fetch, mark hot, respond.
type Handlers struct {
	store   cache.Store
	coal    *coalesce.Coalescer
	hot     *hotset.Registry
	client  provider.Client
	sched   *scheduler.Scheduler
	pool    *worker.Pool
	ttl     TTLs
	metrics *telemetry.Metrics
}

func NewHandlers(store cache.Store, coal *coalesce.Coalescer, hot *hotset.Registry, client provider.Client, sched *scheduler.Scheduler, pool *worker.Pool, ttl TTLs, metrics *telemetry.Metrics) *Handlers {
	return &Handlers{
		store:   store,
		coal:    coal,
		hot:     hot,
		client:  client,
		sched:   sched,
		pool:    pool,
		ttl:     ttl,
		metrics: metrics,
	}
}

// readThrough serves a dataset from cache, falling through to the provider
// with stampede protection. Stale entries are served immediately while the
// store revalidates in the background.
func (h *Handlers) readThrough(w http.ResponseWriter, r *http.Request, dataset, key string, ttl time.Duration, fetch func(context.Context) ([]byte, error)) {
	ctx := r.Context()

	if ok, err := h.store.Exists(ctx, key); err == nil && ok {
		h.metrics.IncCacheHit(dataset)
	} else {
		h.metrics.IncCacheMiss(dataset)
	}

	payload, err := h.store.GetOrSet(ctx, key, ttl, fetch)
	if errors.Is(err, provider.ErrNotFound) {
		// List-style endpoints surface a semantic not-found as empty data.
		writeData(w, nil)
		return
	}
	if err != nil {
		h.upstreamError(w, dataset, err)
		return
	}
	writeData(w, payload)
}

func (h *Handlers) Sports(w http.ResponseWriter, r *http.Request) {
	h.readThrough(w, r, "sports", cache.KeySports, h.ttl.Sports, h.client.GetAllSports)
}

func (h *Handlers) Matches(w http.ResponseWriter, r *http.Request) {
	sportID := mux.Vars(r)["sportId"]
	if sportID == "" {
		writeError(w, http.StatusBadRequest, "missing sport id")
		return
	}
	h.readThrough(w, r, "matchList", cache.KeyMatches(sportID), h.ttl.MatchList,
		func(ctx context.Context) ([]byte, error) {
			return h.client.GetMatchList(ctx, sportID)
		})
}

func (h *Handlers) Results(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sportID, gameID := vars["sportId"], vars["id"]
	if sportID == "" || gameID == "" {
		writeError(w, http.StatusBadRequest, "missing sport or match id")
		return
	}
	h.readThrough(w, r, "results", cache.KeyResults(sportID, gameID), h.ttl.Results,
		func(ctx context.Context) ([]byte, error) {
			return h.client.GetResults(ctx, sportID, gameID)
		})
}

func (h *Handlers) Sidebar(w http.ResponseWriter, r *http.Request) {
	h.readThrough(w, r, "sidebar", cache.KeySidebar, h.ttl.Sidebar, h.client.GetSidebarTree)
}

func (h *Handlers) TopEvents(w http.ResponseWriter, r *http.Request) {
	h.readThrough(w, r, "topEvents", cache.KeyTopEvents, h.ttl.TopEvents, h.client.GetTopEvents)
}

func (h *Handlers) Banners(w http.ResponseWriter, r *http.Request) {
	h.readThrough(w, r, "banners", cache.KeyBanners, h.ttl.Banners, h.client.GetBanners)
}

// Odds is the demand path: a cache hit renews the hot record and returns;
// a miss fetches through the coalescer, which also seeds the hot record so
// the 1-second tier keeps the key warm from here on.
func (h *Handlers) Odds(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "missing match id")
		return
	}
	sportID := r.URL.Query().Get("sportId")
	ctx := r.Context()
	key := cache.KeyOdds(gameID)

	if payload, ok, err := h.store.Get(ctx, key); err == nil && ok {
		h.metrics.IncCacheHit("odds")
		if err := h.hot.Mark(ctx, gameID, sportID); err != nil {
			log.Warn().Err(err).Str("game_id", gameID).Msg("hot mark failed")
		}
		writeData(w, payload)
		return
	}
	h.metrics.IncCacheMiss("odds")

	payload, err := h.coal.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		p, err := h.client.GetMatchOdds(ctx, gameID, sportID)
		if err != nil {
			return nil, err
		}
		if len(p) > 0 {
			if err := h.store.Set(ctx, key, p, h.ttl.Odds); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("odds cache write failed")
			}
		}
		return p, nil
	})
	if errors.Is(err, provider.ErrNotFound) {
		writeData(w, nil)
		return
	}
	if err != nil {
		h.upstreamError(w, "odds", err)
		return
	}
	if err := h.hot.Mark(ctx, gameID, sportID); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("hot mark failed")
	}
	writeData(w, payload)
}

// onDemand caches a dataset once per id; there is no refresh tier for
// these, the long TTL does the aging.
func (h *Handlers) onDemand(w http.ResponseWriter, r *http.Request, dataset, key string, fetch func(context.Context) ([]byte, error)) {
	ctx := r.Context()

	if payload, ok, err := h.store.Get(ctx, key); err == nil && ok {
		h.metrics.IncCacheHit(dataset)
		writeData(w, payload)
		return
	}
	h.metrics.IncCacheMiss(dataset)

	payload, err := fetch(ctx)
	if errors.Is(err, provider.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		h.upstreamError(w, dataset, err)
		return
	}
	if len(payload) > 0 {
		if err := h.store.Set(ctx, key, payload, h.ttl.OnDemand); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("on-demand cache write failed")
		}
	}
	writeData(w, payload)
}

func (h *Handlers) Details(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "missing match id")
		return
	}
	sportID := r.URL.Query().Get("sportId")
	h.onDemand(w, r, "details", cache.KeyDetails(gameID),
		func(ctx context.Context) ([]byte, error) {
			return h.client.GetMatchDetails(ctx, sportID, gameID)
		})
}

func (h *Handlers) LiveTV(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "missing match id")
		return
	}
	sportID := r.URL.Query().Get("sportId")
	h.onDemand(w, r, "liveTv", cache.KeyLiveTV(gameID),
		func(ctx context.Context) ([]byte, error) {
			return h.client.GetLiveTVScore(ctx, gameID, sportID)
		})
}

func (h *Handlers) VirtualTV(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["id"]
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "missing match id")
		return
	}
	h.onDemand(w, r, "virtualTv", cache.KeyVirtualTV(gameID),
		func(ctx context.Context) ([]byte, error) {
			return h.client.GetVirtualTV(ctx, gameID)
		})
}

type priorityMarketRequest struct {
	SportID    string `json:"sportId"`
	ID         string `json:"id"`
	MarketName string `json:"marketName"`
	MName      string `json:"mname"`
	GType      string `json:"gtype"`
}

// PriorityMarket is a pure pass-through: one upstream POST, no cache read
// or write.
func (h *Handlers) PriorityMarket(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var req priorityMarketRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.SportID == "" || req.ID == "" {
		writeError(w, http.StatusBadRequest, "missing sport or match id")
		return
	}

	payload, err := h.client.PostPriorityMarket(r.Context(), body)
	if err != nil {
		h.upstreamError(w, "priorityMarket", err)
		return
	}
	writeData(w, payload)
}

type statsResponse struct {
	Started           bool            `json:"started"`
	UptimeSeconds     float64         `json:"uptimeSeconds"`
	OddsPollingActive bool            `json:"oddsPollingActive"`
	TicksRun          int64           `json:"ticksRun"`
	TicksSkipped      int64           `json:"ticksSkipped"`
	CoalescerActive   int64           `json:"coalescerActive"`
	Worker            worker.Stats    `json:"worker"`
	HotKeys           []string        `json:"hotKeys"`
	HotKeyCount       int             `json:"hotKeyCount"`
	Coalescer         coalesce.Stats  `json:"coalescer"`
	Scheduler         scheduler.Stats `json:"scheduler"`
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	sched := h.sched.Snapshot()

	hotKeys := []string{}
	if entries, err := h.hot.List(r.Context()); err == nil {
		for _, e := range entries {
			hotKeys = append(hotKeys, e.ID)
		}
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Started:           sched.Started,
		UptimeSeconds:     sched.Uptime.Seconds(),
		OddsPollingActive: sched.OddsPollingActive,
		TicksRun:          sched.TicksRun,
		TicksSkipped:      sched.TicksSkipped,
		CoalescerActive:   h.coal.ActiveCount(),
		Worker:            h.pool.Snapshot(),
		HotKeys:           hotKeys,
		HotKeyCount:       len(hotKeys),
		Coalescer:         h.coal.Snapshot(),
		Scheduler:         sched,
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "unknown route")
}

// upstreamError maps provider failures onto the downstream contract: a
// short cause, never an exception trace.
func (h *Handlers) upstreamError(w http.ResponseWriter, dataset string, err error) {
	h.metrics.IncUpstreamFailure(dataset)
	log.Warn().Err(err).Str("dataset", dataset).Msg("upstream call failed")

	msg := "upstream unavailable"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "upstream timeout"
	}
	writeError(w, http.StatusInternalServerError, msg)
}
