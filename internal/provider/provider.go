// Package provider abstracts the upstream sports-data gateway.
package provider

import (
	"context"
	"errors"
)

// ErrNotFound reports the provider responded but knows no such entity.
// Distinct from a transport error: details-style endpoints surface it as
// 404, list endpoints as empty data.
var ErrNotFound = errors.New("provider: entity not found")

// Client is the set of typed upstream calls. Every call returns the raw
// payload bytes; a nil payload with a nil error means the provider
// responded with no content, which callers must not mistake for failure.
type Client interface {
	GetAllSports(ctx context.Context) ([]byte, error)
	GetMatchList(ctx context.Context, sportID string) ([]byte, error)
	GetMatchOdds(ctx context.Context, gameID, sportID string) ([]byte, error)
	GetMatchDetails(ctx context.Context, sportID, gameID string) ([]byte, error)
	GetLiveTVScore(ctx context.Context, gameID, sportID string) ([]byte, error)
	GetVirtualTV(ctx context.Context, gameID string) ([]byte, error)
	GetResults(ctx context.Context, sportID, gameID string) ([]byte, error)
	GetSidebarTree(ctx context.Context) ([]byte, error)
	GetTopEvents(ctx context.Context) ([]byte, error)
	GetBanners(ctx context.Context) ([]byte, error)
	PostPriorityMarket(ctx context.Context, payload []byte) ([]byte, error)
}
