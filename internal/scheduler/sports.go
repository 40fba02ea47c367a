package scheduler

import "encoding/json"

// Sports payloads are opaque to the edge except for one field: the sport
// id, needed to address the per-sport match-list sweep. The provider has
// shipped both a bare array and a data-wrapped envelope over time, so both
// shapes are accepted.

type sportRecord struct {
	ID      json.Number `json:"id"`
	SportID json.Number `json:"sportId"`
}

func (r sportRecord) id() string {
	if r.ID.String() != "" {
		return r.ID.String()
	}
	return r.SportID.String()
}

func parseSportIDs(payload []byte) []string {
	var records []sportRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		var wrapped struct {
			Data []sportRecord `json:"data"`
		}
		if err := json.Unmarshal(payload, &wrapped); err != nil {
			return nil
		}
		records = wrapped.Data
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		if id := r.id(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
