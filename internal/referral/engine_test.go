package referral

import (
	"context"
	"sync"
	"testing"
	"time"

	"tokensale-ledger-go/internal/database"
	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/notify"
	"tokensale-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureNotifier records events synchronously so tests can assert on them
// without racing a background dispatcher.
type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureNotifier) Publish(event notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureNotifier) Events() []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Event(nil), c.events...)
}

func setupEngine(t *testing.T) (*Engine, *database.Service, *captureNotifier, func()) {
	t.Helper()

	service, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)

	notifier := &captureNotifier{}
	engine := NewEngine(service, notifier, decimal.RequireFromString("0.05"))
	return engine, service, notifier, service.Close
}

func createAccount(t *testing.T, service *database.Service, id, referredBy string) {
	t.Helper()

	_, err := service.CreateAccount(context.Background(), store.CreateAccountParams{
		Id:           id,
		Name:         "Test " + id,
		Email:        id + "@example.com",
		ReferralCode: "REF-" + id,
		ReferredBy:   referredBy,
	})
	require.NoError(t, err)
	require.NoError(t, service.ActivateAccount(context.Background(), id))
}

func TestOnFirstQualifyingPurchase_PaysOnce(t *testing.T) {
	engine, service, notifier, cleanup := setupEngine(t)
	defer cleanup()

	ctx := context.Background()
	createAccount(t, service, "referrer", "")
	createAccount(t, service, "referred", "referrer")

	// First purchase pays 280 * 5% = 14.
	purchase := decimal.NewFromInt(280)
	require.NoError(t, engine.OnFirstQualifyingPurchase(ctx, "referred", purchase))

	referrer, err := service.GetAccount(ctx, "referrer")
	require.NoError(t, err)
	assert.True(t, referrer.CashBalance.Equal(decimal.NewFromInt(14)),
		"expected cash 14, got %s", referrer.CashBalance.String())
	assert.True(t, referrer.ReferralEarnings.Equal(decimal.NewFromInt(14)))

	// A second purchase by the same account pays nothing more.
	require.NoError(t, engine.OnFirstQualifyingPurchase(ctx, "referred", decimal.NewFromInt(1000)))

	referrer, err = service.GetAccount(ctx, "referrer")
	require.NoError(t, err)
	assert.True(t, referrer.CashBalance.Equal(decimal.NewFromInt(14)),
		"second purchase must not pay again, got %s", referrer.CashBalance.String())

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventCommissionPaid, events[0].Kind)
	assert.Equal(t, "referrer", events[0].AccountId)
}

func TestOnFirstQualifyingPurchase_NoReferrer(t *testing.T) {
	engine, service, notifier, cleanup := setupEngine(t)
	defer cleanup()

	ctx := context.Background()
	createAccount(t, service, "orphan", "")

	require.NoError(t, engine.OnFirstQualifyingPurchase(ctx, "orphan", decimal.NewFromInt(500)))

	account, err := service.GetAccount(ctx, "orphan")
	require.NoError(t, err)
	assert.True(t, account.CashBalance.IsZero())
	assert.Empty(t, notifier.Events())
}

func TestCommissionRate_SettingOverridesDefault(t *testing.T) {
	engine, _, _, cleanup := setupEngine(t)
	defer cleanup()

	ctx := context.Background()
	rate, err := engine.CommissionRate(ctx)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.05")))

	require.NoError(t, engine.SetCommissionRate(ctx, decimal.RequireFromString("0.08")))

	rate, err = engine.CommissionRate(ctx)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.08")))
}

func TestSetCommissionRate_RejectsOutOfRange(t *testing.T) {
	engine, _, _, cleanup := setupEngine(t)
	defer cleanup()

	ctx := context.Background()
	assert.Error(t, engine.SetCommissionRate(ctx, decimal.NewFromInt(-1)))
	assert.Error(t, engine.SetCommissionRate(ctx, decimal.RequireFromString("1.5")))
}

func TestCommissionRate_AppliesToFutureCommissionsOnly(t *testing.T) {
	engine, service, _, cleanup := setupEngine(t)
	defer cleanup()

	ctx := context.Background()
	createAccount(t, service, "referrer", "")
	createAccount(t, service, "alice", "referrer")
	createAccount(t, service, "bob", "referrer")

	require.NoError(t, engine.OnFirstQualifyingPurchase(ctx, "alice", decimal.NewFromInt(100)))
	require.NoError(t, engine.SetCommissionRate(ctx, decimal.RequireFromString("0.10")))
	require.NoError(t, engine.OnFirstQualifyingPurchase(ctx, "bob", decimal.NewFromInt(100)))

	first, err := service.GetCommission(ctx, "referrer", "alice")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.Percentage.Equal(decimal.RequireFromString("0.05")),
		"paid record keeps its recorded percentage")

	second, err := service.GetCommission(ctx, "referrer", "bob")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.True(t, second.Amount.Equal(decimal.NewFromInt(10)))
}
