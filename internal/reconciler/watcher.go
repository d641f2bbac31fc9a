package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tokensale-ledger-go/internal/models"
)

// WatcherFeed fetches transfers from the external blockchain watcher's HTTP
// endpoint. The watcher returns a JSON array of transfers seen since the
// given timestamp, at-least-once and unordered.
type WatcherFeed struct {
	client  *http.Client
	baseURL string
}

func NewWatcherFeed(baseURL string, timeout time.Duration) *WatcherFeed {
	return &WatcherFeed{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (f *WatcherFeed) FetchTransfers(ctx context.Context, since time.Time) ([]models.Transfer, error) {
	endpoint, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid watcher URL %q: %w", f.baseURL, err)
	}
	query := endpoint.Query()
	query.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build watcher request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("watcher request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("watcher returned %d: %s", resp.StatusCode, string(body))
	}

	var transfers []models.Transfer
	if err := json.NewDecoder(resp.Body).Decode(&transfers); err != nil {
		return nil, fmt.Errorf("failed to decode watcher response: %w", err)
	}
	return transfers, nil
}
