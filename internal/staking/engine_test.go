package staking

import (
	"context"
	"sync"
	"testing"
	"time"

	"tokensale-ledger-go/internal/database"
	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/notify"
	"tokensale-ledger-go/internal/store"
	"tokensale-ledger-go/internal/supply"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func setupEngine(t *testing.T, cap int64) (*Engine, *database.Service, *captureNotifier, func()) {
	t.Helper()

	service, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, service.EnsureSupplyCounter(context.Background(), decimal.NewFromInt(cap)))

	notifier := &captureNotifier{}
	engine := NewEngine(service, supply.NewLedger(service), notifier, decimal.RequireFromString("0.1"))
	return engine, service, notifier, service.Close
}

func fundAccount(t *testing.T, service *database.Service, id string, tokens int64) {
	t.Helper()

	ctx := context.Background()
	_, err := service.CreateAccount(ctx, store.CreateAccountParams{
		Id:           id,
		Name:         "Test " + id,
		Email:        id + "@example.com",
		ReferralCode: "REF-" + id,
	})
	require.NoError(t, err)
	require.NoError(t, service.ActivateAccount(ctx, id))

	amount := decimal.NewFromInt(tokens)
	require.NoError(t, service.ReserveSupply(ctx, amount))
	_, err = service.CreditPurchase(ctx, store.CreditPurchaseParams{
		AccountId:   id,
		TokenAmount: amount,
	})
	require.NoError(t, err)
}

func TestMatureAll_SettlesEligiblePositions(t *testing.T) {
	engine, service, notifier, cleanup := setupEngine(t, 1000000)
	defer cleanup()

	ctx := context.Background()
	fundAccount(t, service, "acct1", 1000)

	// Backdated so the position is already past maturity.
	position, err := service.OpenStakingPosition(ctx, store.OpenPositionParams{
		AccountId: "acct1",
		Amount:    decimal.NewFromInt(1000),
		Apy:       decimal.RequireFromString("0.125"),
		LockYears: 3,
		StartDate: time.Now().UTC().AddDate(-3, 0, -1),
	})
	require.NoError(t, err)

	// 1000 * 12.5% * 3 = 375.
	assert.True(t, Rewards(position).Equal(decimal.NewFromInt(375)))

	before, err := service.GetSupplyCounter(ctx)
	require.NoError(t, err)

	settled, err := engine.MatureAll(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	account, err := service.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, account.StakedTokens.IsZero())
	assert.True(t, account.AvailableTokens.Equal(decimal.NewFromInt(1375)),
		"expected principal plus rewards, got %s", account.AvailableTokens.String())
	assert.True(t, account.TotalTokens.Equal(decimal.NewFromInt(1375)))

	// The 375 reward tokens count against the supply cap.
	after, err := service.GetSupplyCounter(ctx)
	require.NoError(t, err)
	assert.True(t, after.TokensIssued.Sub(before.TokensIssued).Equal(decimal.NewFromInt(375)))

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventStakeMatured, events[0].Kind)

	// A second sweep settles nothing.
	settled, err = engine.MatureAll(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, settled)
}

func TestMatureAll_SkipsUnmaturedPositions(t *testing.T) {
	engine, service, _, cleanup := setupEngine(t, 1000000)
	defer cleanup()

	ctx := context.Background()
	fundAccount(t, service, "acct1", 500)

	_, err := engine.OpenPosition(ctx, "acct1", decimal.NewFromInt(500), 2, decimal.RequireFromString("0.1"))
	require.NoError(t, err)

	settled, err := engine.MatureAll(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, settled)

	account, err := service.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, account.StakedTokens.Equal(decimal.NewFromInt(500)))
}

func TestMatureAll_SupplyCapBlocksRewards(t *testing.T) {
	// Cap leaves no room for the reward issuance.
	engine, service, _, cleanup := setupEngine(t, 1000)
	defer cleanup()

	ctx := context.Background()
	fundAccount(t, service, "acct1", 1000)

	_, err := service.OpenStakingPosition(ctx, store.OpenPositionParams{
		AccountId: "acct1",
		Amount:    decimal.NewFromInt(1000),
		Apy:       decimal.RequireFromString("0.125"),
		LockYears: 3,
		StartDate: time.Now().UTC().AddDate(-3, 0, -1),
	})
	require.NoError(t, err)

	settled, err := engine.MatureAll(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, settled, "rewards exceeding the cap must not settle")

	account, err := service.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, account.StakedTokens.Equal(decimal.NewFromInt(1000)),
		"position must remain staked when rewards cannot be issued")
}

func TestCancel_PenaltyReturnsToSupply(t *testing.T) {
	engine, service, _, cleanup := setupEngine(t, 1000000)
	defer cleanup()

	ctx := context.Background()
	fundAccount(t, service, "acct1", 1000)

	position, err := engine.OpenPosition(ctx, "acct1", decimal.NewFromInt(1000), 3, decimal.RequireFromString("0.125"))
	require.NoError(t, err)

	before, err := service.GetSupplyCounter(ctx)
	require.NoError(t, err)

	returned, err := engine.Cancel(ctx, position.Id)
	require.NoError(t, err)
	assert.True(t, returned.Equal(decimal.NewFromInt(900)),
		"expected 1000 minus 10%% penalty, got %s", returned.String())

	account, err := service.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, account.AvailableTokens.Equal(decimal.NewFromInt(900)))
	assert.True(t, account.StakedTokens.IsZero())

	// The forfeited 100 tokens are issuable again.
	after, err := service.GetSupplyCounter(ctx)
	require.NoError(t, err)
	assert.True(t, before.TokensIssued.Sub(after.TokensIssued).Equal(decimal.NewFromInt(100)))
}

func TestCancel_MaturedPositionRejected(t *testing.T) {
	engine, service, _, cleanup := setupEngine(t, 1000000)
	defer cleanup()

	ctx := context.Background()
	fundAccount(t, service, "acct1", 1000)

	// Backdated past maturity but not yet swept.
	position, err := service.OpenStakingPosition(ctx, store.OpenPositionParams{
		AccountId: "acct1",
		Amount:    decimal.NewFromInt(1000),
		Apy:       decimal.RequireFromString("0.125"),
		LockYears: 3,
		StartDate: time.Now().UTC().AddDate(-3, 0, -1),
	})
	require.NoError(t, err)

	before, err := service.GetSupplyCounter(ctx)
	require.NoError(t, err)

	_, err = engine.Cancel(ctx, position.Id)
	assert.ErrorIs(t, err, store.ErrInvalidTransition,
		"a position past its end date must settle at full reward, not cancel with a penalty")

	// Nothing moved: still staked, supply untouched.
	account, err := service.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.True(t, account.StakedTokens.Equal(decimal.NewFromInt(1000)))
	assert.True(t, account.AvailableTokens.IsZero())

	after, err := service.GetSupplyCounter(ctx)
	require.NoError(t, err)
	assert.True(t, after.TokensIssued.Equal(before.TokensIssued))

	// The sweep still settles it normally.
	settled, err := engine.MatureAll(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
}

func TestOpenPosition_Validation(t *testing.T) {
	engine, service, _, cleanup := setupEngine(t, 1000000)
	defer cleanup()

	ctx := context.Background()
	fundAccount(t, service, "acct1", 100)

	_, err := engine.OpenPosition(ctx, "acct1", decimal.Zero, 1, decimal.RequireFromString("0.1"))
	assert.Error(t, err)

	_, err = engine.OpenPosition(ctx, "acct1", decimal.NewFromInt(50), 0, decimal.RequireFromString("0.1"))
	assert.Error(t, err)

	_, err = engine.OpenPosition(ctx, "acct1", decimal.NewFromInt(500), 1, decimal.RequireFromString("0.1"))
	assert.ErrorIs(t, err, store.ErrInsufficientAvailable)
}
