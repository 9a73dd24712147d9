package controller

import (
	"encoding/json"
	"net/http"
	"time"
)

type pingResponse struct {
	Timestamp string `json:"timestamp"`
}

// ping reports server time for client clock synchronization.
func (c controller) ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	if err := json.NewEncoder(w).Encode(pingResponse{
		Timestamp: c.clock.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		c.logger.Warn().Err(err).Msg("failed to write ping response")
	}
}
