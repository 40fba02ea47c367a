package cache

// Canonical cache keys per dataset. The scheduler writes these on its tier
// cadence and the edge handlers read them back.

const (
	KeySports    = "sports"
	KeySidebar   = "sidebar"
	KeyTopEvents = "top-events"
	KeyBanners   = "banners"
)

func KeyMatches(sportID string) string { return "matches:" + sportID }

func KeyOdds(gameID string) string { return "odds:" + gameID }

func KeyDetails(gameID string) string { return "details:" + gameID }

func KeyLiveTV(gameID string) string { return "tv:" + gameID }

func KeyVirtualTV(gameID string) string { return "vtv:" + gameID }

func KeyResults(sportID, gameID string) string { return "results:" + sportID + ":" + gameID }
