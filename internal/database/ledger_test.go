package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

func setupTestService(t *testing.T) (*Service, func()) {
	t.Helper()

	service, err := NewService(context.Background(), models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := service.EnsureSupplyCounter(context.Background(), decimal.NewFromInt(1000000)); err != nil {
		t.Fatalf("Failed to seed supply counter: %v", err)
	}

	cleanup := func() {
		service.Close()
	}
	return service, cleanup
}

func createTestAccount(t *testing.T, service *Service, id, wallet string, active bool) *models.Account {
	t.Helper()

	account, err := service.CreateAccount(context.Background(), store.CreateAccountParams{
		Id:            id,
		Name:          "Test " + id,
		Email:         id + "@example.com",
		WalletAddress: wallet,
		ReferralCode:  "REF-" + id,
	})
	if err != nil {
		t.Fatalf("Failed to create account %s: %v", id, err)
	}

	if active {
		if err := service.ActivateAccount(context.Background(), id); err != nil {
			t.Fatalf("Failed to activate account %s: %v", id, err)
		}
		account.IsActive = true
	}
	return account
}

func creditTokens(t *testing.T, service *Service, accountId string, tokens int64) {
	t.Helper()

	amount := decimal.NewFromInt(tokens)
	if err := service.ReserveSupply(context.Background(), amount); err != nil {
		t.Fatalf("Failed to reserve supply: %v", err)
	}
	_, err := service.CreditPurchase(context.Background(), store.CreditPurchaseParams{
		AccountId:   accountId,
		TokenAmount: amount,
	})
	if err != nil {
		t.Fatalf("Failed to credit tokens: %v", err)
	}
}

func checkInvariant(t *testing.T, account *models.Account) {
	t.Helper()

	if !account.TotalTokens.Equal(account.StakedTokens.Add(account.AvailableTokens)) {
		t.Errorf("Balance invariant violated: total %s != staked %s + available %s",
			account.TotalTokens.String(), account.StakedTokens.String(), account.AvailableTokens.String())
	}
}

func TestCreditPurchase_PurchaseScenario(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", "", true)
	creditTokens(t, service, "acct1", 1000)

	// $280 at $2.80 per token buys exactly 100 tokens.
	cash := decimal.NewFromInt(280)
	price := decimal.RequireFromString("2.80")
	tokens := cash.Div(price)
	if !tokens.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("Expected 100 tokens, got %s", tokens.String())
	}

	if err := service.ReserveSupply(ctx, tokens); err != nil {
		t.Fatalf("ReserveSupply failed: %v", err)
	}
	entry, err := service.CreditPurchase(ctx, store.CreditPurchaseParams{
		AccountId:     "acct1",
		CashAmount:    cash,
		TokenAmount:   tokens,
		PricePerToken: price,
	})
	if err != nil {
		t.Fatalf("CreditPurchase failed: %v", err)
	}
	if entry.Status != models.EntryStatusCompleted {
		t.Errorf("Expected completed entry, got %s", entry.Status)
	}

	account, err := service.GetAccount(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.AvailableTokens.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("Expected available 1100, got %s", account.AvailableTokens.String())
	}
	checkInvariant(t, account)

	counter, err := service.GetSupplyCounter(ctx)
	if err != nil {
		t.Fatalf("GetSupplyCounter failed: %v", err)
	}
	if !counter.TokensIssued.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("Expected 1100 tokens issued, got %s", counter.TokensIssued.String())
	}
}

func TestCreditPurchase_DuplicateExternalRef(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", "", true)

	params := store.CreditPurchaseParams{
		AccountId:     "acct1",
		CashAmount:    decimal.NewFromInt(280),
		TokenAmount:   decimal.NewFromInt(100),
		PricePerToken: decimal.RequireFromString("2.80"),
		ExternalRef:   "0xabc123",
	}

	first, err := service.CreditPurchase(ctx, params)
	if err != nil {
		t.Fatalf("First CreditPurchase failed: %v", err)
	}

	second, err := service.CreditPurchase(ctx, params)
	if !errors.Is(err, store.ErrDuplicateExternalRef) {
		t.Fatalf("Expected ErrDuplicateExternalRef, got %v", err)
	}
	if second == nil || second.Id != first.Id {
		t.Errorf("Expected the original entry to be returned")
	}

	account, err := service.GetAccount(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.AvailableTokens.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected a single credit of 100, got %s", account.AvailableTokens.String())
	}

	entries, err := service.GetEntries(ctx, "acct1", 10, 0)
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected exactly one ledger entry, got %d", len(entries))
	}
}

func TestDebitForStake_Insufficient(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", "", true)
	creditTokens(t, service, "acct1", 50)

	err := service.DebitForStake(ctx, "acct1", decimal.NewFromInt(100))
	if !errors.Is(err, store.ErrInsufficientAvailable) {
		t.Fatalf("Expected ErrInsufficientAvailable, got %v", err)
	}

	account, err := service.GetAccount(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.AvailableTokens.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Balances must be unchanged after rejection, got %s", account.AvailableTokens.String())
	}
	checkInvariant(t, account)
}

func TestCreditCommission_NoDoubleCommission(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "referrer", "", true)
	createTestAccount(t, service, "referred", "", true)

	params := store.CreditCommissionParams{
		ReferrerId:        "referrer",
		ReferredAccountId: "referred",
		Amount:            decimal.NewFromInt(14),
		Percentage:        decimal.RequireFromString("0.05"),
		Period:            "2026-08",
	}

	record, err := service.CreditCommission(ctx, params)
	if err != nil {
		t.Fatalf("CreditCommission failed: %v", err)
	}
	if record.Status != models.CommissionStatusPaid {
		t.Errorf("Expected paid commission, got %s", record.Status)
	}

	_, err = service.CreditCommission(ctx, params)
	if !errors.Is(err, store.ErrDuplicateCommission) {
		t.Fatalf("Expected ErrDuplicateCommission, got %v", err)
	}

	referrer, err := service.GetAccount(ctx, "referrer")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !referrer.CashBalance.Equal(decimal.NewFromInt(14)) {
		t.Errorf("Expected one commission of 14, got cash %s", referrer.CashBalance.String())
	}
	if !referrer.ReferralEarnings.Equal(decimal.NewFromInt(14)) {
		t.Errorf("Expected referral earnings 14, got %s", referrer.ReferralEarnings.String())
	}
}
