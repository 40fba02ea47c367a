package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 8 << 20

// GatewayConfig tunes the diamond-proxy HTTP client.
type GatewayConfig struct {
	BaseURL string

	// Per-call deadlines. Timer-driven polls inherit these; they do not
	// cascade.
	RequestTimeout time.Duration // GETs, default 3s
	PostTimeout    time.Duration // POSTs, default 5s

	// Upstream request budget shared across all calls.
	RateLimit float64 // requests per second, default 50
	Burst     int     // default 25
}

// Gateway is the production Client talking to the diamond-proxy upstream.
// All calls pass a shared rate limiter and a circuit breaker; breaker-open
// surfaces as a transport error, never as empty data.
type Gateway struct {
	cfg     GatewayConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

var _ Client = (*Gateway)(nil)

// NewGateway creates a gateway client with defaults applied.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 3 * time.Second
	}
	if cfg.PostTimeout <= 0 {
		cfg.PostTimeout = 5 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 25
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "diamond-proxy",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// A semantic not-found is a valid upstream answer, not a fault.
		IsSuccessful: func(err error) bool {
			return err == nil || err == ErrNotFound
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("upstream circuit state change")
		},
	})

	return &Gateway{
		cfg:     cfg,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		breaker: breaker,
	}
}

func (g *Gateway) GetAllSports(ctx context.Context) ([]byte, error) {
	return g.get(ctx, "/v1/sports", nil)
}

func (g *Gateway) GetMatchList(ctx context.Context, sportID string) ([]byte, error) {
	return g.get(ctx, "/v1/sports/"+url.PathEscape(sportID)+"/matches", nil)
}

func (g *Gateway) GetMatchOdds(ctx context.Context, gameID, sportID string) ([]byte, error) {
	return g.get(ctx, "/v1/odds/"+url.PathEscape(gameID), url.Values{"sportId": {sportID}})
}

func (g *Gateway) GetMatchDetails(ctx context.Context, sportID, gameID string) ([]byte, error) {
	return g.get(ctx, "/v1/matches/"+url.PathEscape(gameID), url.Values{"sportId": {sportID}})
}

func (g *Gateway) GetLiveTVScore(ctx context.Context, gameID, sportID string) ([]byte, error) {
	return g.get(ctx, "/v1/tv/"+url.PathEscape(gameID), url.Values{"sportId": {sportID}})
}

func (g *Gateway) GetVirtualTV(ctx context.Context, gameID string) ([]byte, error) {
	return g.get(ctx, "/v1/virtual-tv/"+url.PathEscape(gameID), nil)
}

func (g *Gateway) GetResults(ctx context.Context, sportID, gameID string) ([]byte, error) {
	return g.get(ctx, "/v1/results/"+url.PathEscape(sportID)+"/"+url.PathEscape(gameID), nil)
}

func (g *Gateway) GetSidebarTree(ctx context.Context) ([]byte, error) {
	return g.get(ctx, "/v1/sidebar", nil)
}

func (g *Gateway) GetTopEvents(ctx context.Context) ([]byte, error) {
	return g.get(ctx, "/v1/top-events", nil)
}

func (g *Gateway) GetBanners(ctx context.Context) ([]byte, error) {
	return g.get(ctx, "/v1/banners", nil)
}

func (g *Gateway) PostPriorityMarket(ctx context.Context, payload []byte) ([]byte, error) {
	return g.call(ctx, http.MethodPost, "/v1/priority-market", nil, payload, g.cfg.PostTimeout)
}

func (g *Gateway) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return g.call(ctx, http.MethodGet, path, query, nil, g.cfg.RequestTimeout)
}

func (g *Gateway) call(ctx context.Context, method, path string, query url.Values, body []byte, timeout time.Duration) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.roundTrip(ctx, method, path, query, body, timeout)
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.([]byte), nil
}

func (g *Gateway) roundTrip(ctx context.Context, method, path string, query url.Values, body []byte, timeout time.Duration) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := g.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("upstream %s %s: read body: %w", method, path, err)
	}

	log.Debug().Str("method", method).Str("path", path).
		Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).
		Msg("upstream call")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("upstream %s %s: status %d", method, path, resp.StatusCode)
	}

	if isEmptyPayload(payload) {
		return nil, nil
	}
	return payload, nil
}

// isEmptyPayload reports a 2xx response that carries no content: the
// provider answered, there is just nothing there.
func isEmptyPayload(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return true
	}
	switch string(trimmed) {
	case "null", "{}", "[]":
		return true
	}
	return false
}
