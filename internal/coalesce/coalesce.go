// Package coalesce collapses concurrent fetches for the same key into a
// single in-flight upstream call whose result is shared by every waiter.
package coalesce

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the value for a key from upstream.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Stats holds coalescing metrics.
type Stats struct {
	Active    int64 `json:"active"`
	Started   int64 `json:"started"`
	Coalesced int64 `json:"coalesced"`
}

// Coalescer deduplicates concurrent fetches per key. At most one FetchFunc
// executes per key at any instant; callers joining mid-flight receive the
// same result (value or error) as the originator. The in-flight slot is
// released before the result is handed to waiters, so a follow-up call for
// the same key always starts a fresh fetch.
type Coalescer struct {
	group singleflight.Group

	active    atomic.Int64
	started   atomic.Int64
	coalesced atomic.Int64
}

func New() *Coalescer {
	return &Coalescer{}
}

// Do executes fn under key's single-flight slot. A caller whose context
// expires abandons the slot for itself only; the shared fetch keeps running
// for the remaining waiters.
func (c *Coalescer) Do(ctx context.Context, key string, fn FetchFunc) ([]byte, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.started.Add(1)
		c.active.Add(1)
		defer c.active.Add(-1)
		// Detached from the originating caller so one client disconnecting
		// does not cancel the shared upstream call.
		val, err := fn(context.WithoutCancel(ctx))
		return val, err
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.coalesced.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Val == nil {
			return nil, nil
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActiveCount returns the number of fetches currently in flight.
func (c *Coalescer) ActiveCount() int64 {
	return c.active.Load()
}

// Snapshot returns a copy of the coalescing counters.
func (c *Coalescer) Snapshot() Stats {
	return Stats{
		Active:    c.active.Load(),
		Started:   c.started.Load(),
		Coalesced: c.coalesced.Load(),
	}
}
