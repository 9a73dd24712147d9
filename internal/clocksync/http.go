package clocksync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPProber reads {"timestamp": "<ISO-8601>"} from the server's ping endpoint.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

func NewHTTPProber(baseURL string) *HTTPProber {
	return &HTTPProber{
		URL:    strings.TrimRight(baseURL, "/") + "/ping",
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type pingResponse struct {
	Timestamp string `json:"timestamp"`
}

func (p *HTTPProber) Probe(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to build ping request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to ping: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("ping returned status %d", resp.StatusCode)
	}

	var body pingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode ping response: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, body.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", body.Timestamp, err)
	}

	return ts, nil
}
