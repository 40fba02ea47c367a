package provider

import "context"

// Mock is a configurable Client for tests. Unset funcs return (nil, nil).
type Mock struct {
	AllSportsFunc      func(ctx context.Context) ([]byte, error)
	MatchListFunc      func(ctx context.Context, sportID string) ([]byte, error)
	MatchOddsFunc      func(ctx context.Context, gameID, sportID string) ([]byte, error)
	MatchDetailsFunc   func(ctx context.Context, sportID, gameID string) ([]byte, error)
	LiveTVScoreFunc    func(ctx context.Context, gameID, sportID string) ([]byte, error)
	VirtualTVFunc      func(ctx context.Context, gameID string) ([]byte, error)
	ResultsFunc        func(ctx context.Context, sportID, gameID string) ([]byte, error)
	SidebarTreeFunc    func(ctx context.Context) ([]byte, error)
	TopEventsFunc      func(ctx context.Context) ([]byte, error)
	BannersFunc        func(ctx context.Context) ([]byte, error)
	PriorityMarketFunc func(ctx context.Context, payload []byte) ([]byte, error)
}

var _ Client = (*Mock)(nil)

func (m *Mock) GetAllSports(ctx context.Context) ([]byte, error) {
	if m.AllSportsFunc == nil {
		return nil, nil
	}
	return m.AllSportsFunc(ctx)
}

func (m *Mock) GetMatchList(ctx context.Context, sportID string) ([]byte, error) {
	if m.MatchListFunc == nil {
		return nil, nil
	}
	return m.MatchListFunc(ctx, sportID)
}

func (m *Mock) GetMatchOdds(ctx context.Context, gameID, sportID string) ([]byte, error) {
	if m.MatchOddsFunc == nil {
		return nil, nil
	}
	return m.MatchOddsFunc(ctx, gameID, sportID)
}

func (m *Mock) GetMatchDetails(ctx context.Context, sportID, gameID string) ([]byte, error) {
	if m.MatchDetailsFunc == nil {
		return nil, nil
	}
	return m.MatchDetailsFunc(ctx, sportID, gameID)
}

func (m *Mock) GetLiveTVScore(ctx context.Context, gameID, sportID string) ([]byte, error) {
	if m.LiveTVScoreFunc == nil {
		return nil, nil
	}
	return m.LiveTVScoreFunc(ctx, gameID, sportID)
}

func (m *Mock) GetVirtualTV(ctx context.Context, gameID string) ([]byte, error) {
	if m.VirtualTVFunc == nil {
		return nil, nil
	}
	return m.VirtualTVFunc(ctx, gameID)
}

func (m *Mock) GetResults(ctx context.Context, sportID, gameID string) ([]byte, error) {
	if m.ResultsFunc == nil {
		return nil, nil
	}
	return m.ResultsFunc(ctx, sportID, gameID)
}

func (m *Mock) GetSidebarTree(ctx context.Context) ([]byte, error) {
	if m.SidebarTreeFunc == nil {
		return nil, nil
	}
	return m.SidebarTreeFunc(ctx)
}

func (m *Mock) GetTopEvents(ctx context.Context) ([]byte, error) {
	if m.TopEventsFunc == nil {
		return nil, nil
	}
	return m.TopEventsFunc(ctx)
}

func (m *Mock) GetBanners(ctx context.Context) ([]byte, error) {
	if m.BannersFunc == nil {
		return nil, nil
	}
	return m.BannersFunc(ctx)
}

func (m *Mock) PostPriorityMarket(ctx context.Context, payload []byte) ([]byte, error) {
	if m.PriorityMarketFunc == nil {
		return nil, nil
	}
	return m.PriorityMarketFunc(ctx, payload)
}
