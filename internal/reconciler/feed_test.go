package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"tokensale-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFeed replays a fixed slice of transfers and counts fetches.
type stubFeed struct {
	mu        sync.Mutex
	transfers []models.Transfer
	fetches   int
}

func (s *stubFeed) FetchTransfers(ctx context.Context, since time.Time) ([]models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return append([]models.Transfer(nil), s.transfers...), nil
}

func newTestPoller(f *fixture, feed TransferFeed) *Poller {
	return NewPoller(PollerConfig{
		Feed:            feed,
		Reconciler:      f.reconciler,
		DbService:       f.service,
		LookbackWindow:  time.Hour,
		PollingInterval: time.Minute,
		CleanupInterval: time.Minute,
	})
}

func TestPollOnce_HandlesAndCachesTransfers(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	createWalletAccount(t, f.service, "acct1", "0xalice", true)

	feed := &stubFeed{transfers: []models.Transfer{
		inbound("0xhash1", "0xalice", 100),
		inbound("0xhash2", "0xalice", 200),
	}}
	poller := newTestPoller(f, feed)

	poller.pollOnce(ctx)

	account, err := f.service.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, account.AvailableTokens.Equal(decimal.NewFromInt(300)))

	assert.True(t, poller.isHashProcessed("0xhash1"))
	assert.True(t, poller.isHashProcessed("0xhash2"))

	// The next poll redelivers the same transfers; the cache short-circuits
	// them and no balances move.
	poller.pollOnce(ctx)

	account, err = f.service.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, account.AvailableTokens.Equal(decimal.NewFromInt(300)))

	entries, err := f.service.GetEntries(ctx, "acct1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStartupRecovery_ReplaysFeedSafely(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	createWalletAccount(t, f.service, "acct1", "0xalice", true)

	// One transfer was already reconciled before the restart.
	_, err := f.reconciler.HandleTransfer(ctx, inbound("0xhash1", "0xalice", 100))
	require.NoError(t, err)

	feed := &stubFeed{transfers: []models.Transfer{
		inbound("0xhash1", "0xalice", 100),
		inbound("0xhash2", "0xalice", 50),
	}}
	poller := newTestPoller(f, feed)

	require.NoError(t, poller.performStartupRecovery(ctx))

	account, err := f.service.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, account.AvailableTokens.Equal(decimal.NewFromInt(150)),
		"recovery must credit only the missed transfer, got %s", account.AvailableTokens.String())
	assert.Equal(t, 1, feed.fetches)
}

func TestCleanupProcessedHashes_DropsStaleEntries(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	poller := newTestPoller(f, &stubFeed{})
	poller.markHashProcessed("0xfresh")
	poller.processedHashes["0xstale"] = time.Now().UTC().Add(-2 * time.Hour)

	poller.cleanupProcessedHashes()

	assert.True(t, poller.isHashProcessed("0xfresh"))
	assert.False(t, poller.isHashProcessed("0xstale"))
}
