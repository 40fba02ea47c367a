// Package hotset tracks which game ids are currently "hot": requested
// recently enough that the odds tier should keep polling them.
//
// Records age out by cache TTL instead of explicit removal. Clients that
// disconnect or navigate away simply stop requesting, and within the TTL
// the key drops out of the polling set on its own.
package hotset

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/oddsedge/oddsedge/internal/cache"
)

// Prefix is the hot-set sub-namespace inside the cache store.
const Prefix = "hot:odds:"

// Meta carries what the odds fetcher needs to re-address the provider.
type Meta struct {
	GameID    string    `json:"gameId"`
	SportID   string    `json:"sportId"`
	RenewedAt time.Time `json:"renewedAt"`
}

// Entry is one live hot record.
type Entry struct {
	ID   string
	Meta Meta
}

// Registry is a view over the cache store's hot-key prefix.
type Registry struct {
	store        cache.Store
	ttl          time.Duration
	defaultSport string
}

// New creates a registry. defaultSport is substituted when a record carries
// no sport id (legacy records must be tolerated).
func New(store cache.Store, ttl time.Duration, defaultSport string) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Registry{store: store, ttl: ttl, defaultSport: defaultSport}
}

// TTL returns the aging window.
func (r *Registry) TTL() time.Duration { return r.ttl }

// Mark writes or renews the hot record for id. Idempotent; concurrent
// marks for the same id are benign (both set the same TTL).
func (r *Registry) Mark(ctx context.Context, id, sportID string) error {
	if sportID == "" {
		sportID = r.defaultSport
	}
	meta := Meta{GameID: id, SportID: sportID, RenewedAt: time.Now().UTC()}
	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, Prefix+id, payload, r.ttl)
}

// List returns every record still within its aging window. Records whose
// payload does not decode (or predates the metadata schema) fall back to
// the default sport id rather than being dropped.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	keys, err := r.store.KeysMatching(ctx, Prefix+"*")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		payload, ok, err := r.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}

		id := strings.TrimPrefix(key, Prefix)
		var meta Meta
		if err := json.Unmarshal(payload, &meta); err != nil {
			meta = Meta{}
		}
		if meta.GameID == "" {
			meta.GameID = id
		}
		if meta.SportID == "" {
			meta.SportID = r.defaultSport
		}
		// The memory store serves entries through their stale window; a
		// record past its renewal TTL must not keep the key hot.
		if !meta.RenewedAt.IsZero() && now.After(meta.RenewedAt.Add(r.ttl)) {
			continue
		}
		entries = append(entries, Entry{ID: id, Meta: meta})
	}
	return entries, nil
}
