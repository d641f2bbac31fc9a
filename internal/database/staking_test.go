package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestOpenAndSettleStakingPosition(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", "", true)
	creditTokens(t, service, "acct1", 1000)

	position, err := service.OpenStakingPosition(ctx, store.OpenPositionParams{
		AccountId: "acct1",
		Amount:    decimal.NewFromInt(1000),
		Apy:       decimal.RequireFromString("0.125"),
		LockYears: 3,
		StartDate: time.Now().UTC().AddDate(-3, 0, -1),
	})
	if err != nil {
		t.Fatalf("OpenStakingPosition failed: %v", err)
	}
	if position.Status != models.PositionStatusActive {
		t.Errorf("Expected active position, got %s", position.Status)
	}

	account, err := service.GetAccount(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.StakedTokens.Equal(decimal.NewFromInt(1000)) || !account.AvailableTokens.IsZero() {
		t.Errorf("Expected staked 1000 / available 0, got %s / %s",
			account.StakedTokens.String(), account.AvailableTokens.String())
	}
	checkInvariant(t, account)

	matured, err := service.GetMaturedPositions(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("GetMaturedPositions failed: %v", err)
	}
	if len(matured) != 1 {
		t.Fatalf("Expected one matured position, got %d", len(matured))
	}

	// 1000 * 12.5% * 3 years = 375 flat rewards.
	rewards := decimal.NewFromInt(375)
	if err := service.SettleMaturedPosition(ctx, position.Id, rewards); err != nil {
		t.Fatalf("SettleMaturedPosition failed: %v", err)
	}

	account, err = service.GetAccount(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.StakedTokens.IsZero() {
		t.Errorf("Expected staked 0 after maturity, got %s", account.StakedTokens.String())
	}
	if !account.AvailableTokens.Equal(decimal.NewFromInt(1375)) {
		t.Errorf("Expected available 1375 after maturity, got %s", account.AvailableTokens.String())
	}
	checkInvariant(t, account)
}

func TestSettleMaturedPosition_Idempotent(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", "", true)
	creditTokens(t, service, "acct1", 100)

	position, err := service.OpenStakingPosition(ctx, store.OpenPositionParams{
		AccountId: "acct1",
		Amount:    decimal.NewFromInt(100),
		Apy:       decimal.RequireFromString("0.1"),
		LockYears: 1,
		StartDate: time.Now().UTC().AddDate(-1, 0, -1),
	})
	if err != nil {
		t.Fatalf("OpenStakingPosition failed: %v", err)
	}

	rewards := decimal.NewFromInt(10)
	if err := service.SettleMaturedPosition(ctx, position.Id, rewards); err != nil {
		t.Fatalf("First settle failed: %v", err)
	}

	err = service.SettleMaturedPosition(ctx, position.Id, rewards)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition on re-settle, got %v", err)
	}

	account, err := service.GetAccount(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.AvailableTokens.Equal(decimal.NewFromInt(110)) {
		t.Errorf("Balances must not change on re-settle, got %s", account.AvailableTokens.String())
	}
}

func TestCancelStakingPosition_PenaltyForfeited(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestAccount(t, service, "acct1", "", true)
	creditTokens(t, service, "acct1", 1000)

	position, err := service.OpenStakingPosition(ctx, store.OpenPositionParams{
		AccountId: "acct1",
		Amount:    decimal.NewFromInt(1000),
		Apy:       decimal.RequireFromString("0.125"),
		LockYears: 3,
		StartDate: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("OpenStakingPosition failed: %v", err)
	}

	penalty := decimal.NewFromInt(100)
	if err := service.CancelStakingPosition(ctx, position.Id, penalty); err != nil {
		t.Fatalf("CancelStakingPosition failed: %v", err)
	}

	account, err := service.GetAccount(ctx, "acct1")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if !account.AvailableTokens.Equal(decimal.NewFromInt(900)) {
		t.Errorf("Expected available 900 after penalty, got %s", account.AvailableTokens.String())
	}
	if !account.TotalTokens.Equal(decimal.NewFromInt(900)) {
		t.Errorf("Expected total 900 after penalty, got %s", account.TotalTokens.String())
	}
	checkInvariant(t, account)

	// A cancelled position cannot be settled.
	err = service.SettleMaturedPosition(ctx, position.Id, decimal.NewFromInt(375))
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
}
