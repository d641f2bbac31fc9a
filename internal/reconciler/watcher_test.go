package reconciler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherFeed_FetchTransfers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("since"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"hash": "0xhash1", "from": "0xalice", "to": "0xcompany", "value": "280", "block_number": 100},
			{"hash": "0xhash2", "from": "0xcompany", "to": "0xbob", "value": "50", "block_number": 101}
		]`))
	}))
	defer server.Close()

	feed := NewWatcherFeed(server.URL, 5*time.Second)
	transfers, err := feed.FetchTransfers(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	assert.Equal(t, "0xhash1", transfers[0].Hash)
	assert.True(t, transfers[0].Value.Equal(decimal.NewFromInt(280)))
	assert.Equal(t, uint64(101), transfers[1].BlockNumber)
}

func TestWatcherFeed_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "watcher unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	feed := NewWatcherFeed(server.URL, 5*time.Second)
	_, err := feed.FetchTransfers(context.Background(), time.Now())
	assert.Error(t, err)
}
