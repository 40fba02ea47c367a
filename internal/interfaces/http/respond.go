package http

import (
	"encoding/json"
	"net/http"
)

// envelope is the downstream response contract. Status 200 always carries
// success=true, even when data is empty; 4xx/5xx carry success=false and a
// short error string. Stack traces never cross this boundary.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, payload []byte) {
	data := json.RawMessage(payload)
	if len(payload) == 0 || !json.Valid(payload) {
		data = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encoding failure")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: raw})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Data:    json.RawMessage("null"),
		Error:   msg,
	})
}
