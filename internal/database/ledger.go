package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	var cash, tokens, price string

	err := row.Scan(&e.Id, &e.AccountId, &e.Kind, &cash, &tokens, &price,
		&e.Status, &e.ExternalRef, &e.RequestId, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	if e.CashAmount, err = parseDecimal(cash, "cash_amount"); err != nil {
		return nil, err
	}
	if e.TokenAmount, err = parseDecimal(tokens, "token_amount"); err != nil {
		return nil, err
	}
	if e.PricePerToken, err = parseDecimal(price, "price_per_token"); err != nil {
		return nil, err
	}
	return &e, nil
}

func insertEntryTx(ctx context.Context, tx dbtx, entry *models.LedgerEntry) error {
	var externalRef, requestId any
	if entry.ExternalRef != "" {
		externalRef = entry.ExternalRef
	}
	if entry.RequestId != "" {
		requestId = entry.RequestId
	}

	_, err := tx.ExecContext(ctx, queryInsertEntry,
		entry.Id, entry.AccountId, string(entry.Kind),
		entry.CashAmount.String(), entry.TokenAmount.String(), entry.PricePerToken.String(),
		string(entry.Status), externalRef, requestId, entry.CreatedAt)
	return err
}

func isUniqueViolation(err error, index string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), index)
}

// CreditPurchase credits a settled purchase to the account: total and
// available both grow by the token amount, and a completed ledger entry is
// written. The supply reservation must already have succeeded. If an entry
// with the same external ref exists the call returns that entry together
// with store.ErrDuplicateExternalRef; callers treat it as idempotent
// success. The duplicate check and the insert share one transaction.
func (s *Service) CreditPurchase(ctx context.Context, params store.CreditPurchaseParams) (*models.LedgerEntry, error) {
	zap.L().Info("Crediting purchase",
		zap.String("account_id", params.AccountId),
		zap.String("cash_amount", params.CashAmount.String()),
		zap.String("token_amount", params.TokenAmount.String()),
		zap.String("price_per_token", params.PricePerToken.String()),
		zap.String("external_ref", params.ExternalRef))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if params.ExternalRef != "" {
		existing, err := scanEntry(tx.QueryRowContext(ctx, queryGetEntryByExternalRef, params.ExternalRef))
		if err == nil {
			zap.L().Warn("Duplicate external ref detected, skipping",
				zap.String("external_ref", params.ExternalRef),
				zap.String("existing_entry_id", existing.Id))
			return existing, fmt.Errorf("%w: external_ref %s already exists",
				store.ErrDuplicateExternalRef, params.ExternalRef)
		} else if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to check for duplicate external ref: %w", err)
		}
	}

	account, err := s.getAccountTx(ctx, tx, params.AccountId)
	if err != nil {
		return nil, err
	}

	account.TotalTokens = account.TotalTokens.Add(params.TokenAmount)
	account.AvailableTokens = account.AvailableTokens.Add(params.TokenAmount)

	entry := &models.LedgerEntry{
		Id:            uuid.New().String(),
		AccountId:     params.AccountId,
		Kind:          models.EntryKindPurchase,
		CashAmount:    params.CashAmount,
		TokenAmount:   params.TokenAmount,
		PricePerToken: params.PricePerToken,
		Status:        models.EntryStatusCompleted,
		ExternalRef:   params.ExternalRef,
		CreatedAt:     time.Now().UTC(),
	}
	if err := insertEntryTx(ctx, tx, entry); err != nil {
		// A concurrent writer inserted the same external ref between our
		// check and the insert; the unique index is the arbiter.
		if isUniqueViolation(err, "ledger_entries") {
			return nil, fmt.Errorf("%w: external_ref %s already exists",
				store.ErrDuplicateExternalRef, params.ExternalRef)
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	if err := s.applyBalancesTx(ctx, tx, account); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Purchase credited",
		zap.String("entry_id", entry.Id),
		zap.String("account_id", params.AccountId),
		zap.String("new_available", account.AvailableTokens.String()))
	return entry, nil
}

// debitForStakeTx moves amount from available to staked inside an open
// transaction. Total is unchanged so the balance invariant holds.
func (s *Service) debitForStakeTx(ctx context.Context, tx dbtx, accountId string, amount decimal.Decimal) (*models.Account, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("stake amount must be positive, got %s", amount.String())
	}

	account, err := s.getAccountTx(ctx, tx, accountId)
	if err != nil {
		return nil, err
	}
	if account.AvailableTokens.LessThan(amount) {
		return nil, fmt.Errorf("%w: have %s, need %s",
			store.ErrInsufficientAvailable, account.AvailableTokens.String(), amount.String())
	}

	account.AvailableTokens = account.AvailableTokens.Sub(amount)
	account.StakedTokens = account.StakedTokens.Add(amount)

	if err := s.applyBalancesTx(ctx, tx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Service) DebitForStake(ctx context.Context, accountId string, amount decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.debitForStakeTx(ctx, tx, accountId, amount); err != nil {
		return err
	}
	return tx.Commit()
}

// creditFromStakeMaturityTx returns principal from staked to available and
// credits rewards to available and total, plus a stake_mature entry for the
// reward issuance.
func (s *Service) creditFromStakeMaturityTx(ctx context.Context, tx dbtx, accountId string, principal, rewards decimal.Decimal) error {
	account, err := s.getAccountTx(ctx, tx, accountId)
	if err != nil {
		return err
	}
	if account.StakedTokens.LessThan(principal) {
		return fmt.Errorf("%w: staked %s, principal %s",
			store.ErrInsufficientAvailable, account.StakedTokens.String(), principal.String())
	}

	account.StakedTokens = account.StakedTokens.Sub(principal)
	account.AvailableTokens = account.AvailableTokens.Add(principal).Add(rewards)
	account.TotalTokens = account.TotalTokens.Add(rewards)

	entry := &models.LedgerEntry{
		Id:          uuid.New().String(),
		AccountId:   accountId,
		Kind:        models.EntryKindStakeMature,
		TokenAmount: rewards,
		Status:      models.EntryStatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
	if err := insertEntryTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to insert maturity entry: %w", err)
	}

	return s.applyBalancesTx(ctx, tx, account)
}

// CreditFromStakeMaturity applies a maturity credit on its own. The supply
// reservation for the reward portion must already have succeeded.
func (s *Service) CreditFromStakeMaturity(ctx context.Context, accountId string, principal, rewards decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.creditFromStakeMaturityTx(ctx, tx, accountId, principal, rewards); err != nil {
		return err
	}
	return tx.Commit()
}

// CreditCommission pays a one-time referral commission. The commission row,
// the referrer's balance update, and the ledger entry commit together; the
// UNIQUE(referrer_id, referred_account_id) constraint guarantees a pair is
// paid at most once even under concurrent settlement of the same purchase.
func (s *Service) CreditCommission(ctx context.Context, params store.CreditCommissionParams) (*models.ReferralCommission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record := &models.ReferralCommission{
		Id:                uuid.New().String(),
		ReferrerId:        params.ReferrerId,
		ReferredAccountId: params.ReferredAccountId,
		Amount:            params.Amount,
		Percentage:        params.Percentage,
		Status:            models.CommissionStatusPaid,
		Period:            params.Period,
		CreatedAt:         time.Now().UTC(),
	}

	result, err := tx.ExecContext(ctx, queryInsertCommission,
		record.Id, record.ReferrerId, record.ReferredAccountId,
		record.Amount.String(), record.Percentage.String(),
		string(record.Status), record.Period)
	if err != nil {
		return nil, fmt.Errorf("failed to insert commission record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: referrer %s, referred %s",
			store.ErrDuplicateCommission, params.ReferrerId, params.ReferredAccountId)
	}

	referrer, err := s.getAccountTx(ctx, tx, params.ReferrerId)
	if err != nil {
		return nil, err
	}
	referrer.CashBalance = referrer.CashBalance.Add(params.Amount)
	referrer.ReferralEarnings = referrer.ReferralEarnings.Add(params.Amount)

	entry := &models.LedgerEntry{
		Id:         uuid.New().String(),
		AccountId:  params.ReferrerId,
		Kind:       models.EntryKindReferralCommission,
		CashAmount: params.Amount,
		Status:     models.EntryStatusCompleted,
		CreatedAt:  time.Now().UTC(),
	}
	if err := insertEntryTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("failed to insert commission entry: %w", err)
	}

	if err := s.applyBalancesTx(ctx, tx, referrer); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Commission paid",
		zap.String("referrer_id", params.ReferrerId),
		zap.String("referred_account_id", params.ReferredAccountId),
		zap.String("amount", params.Amount.String()))
	return record, nil
}

// GetEntryByExternalRef returns the entry for a blockchain hash, or
// (nil, nil) when none exists.
func (s *Service) GetEntryByExternalRef(ctx context.Context, externalRef string) (*models.LedgerEntry, error) {
	entry, err := scanEntry(s.db.QueryRowContext(ctx, queryGetEntryByExternalRef, externalRef))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry by external ref: %w", err)
	}
	return entry, nil
}

// GetEntries returns paginated ledger history for an account, newest first.
func (s *Service) GetEntries(ctx context.Context, accountId string, limit, offset int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetEntries, accountId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}
	return entries, nil
}

// GetMostRecentEntryTime returns the newest reconciled entry timestamp, for
// feed startup recovery.
func (s *Service) GetMostRecentEntryTime(ctx context.Context) (time.Time, error) {
	var timestampStr sql.NullString
	err := s.db.QueryRowContext(ctx, queryGetMostRecentEntryTime).Scan(&timestampStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get most recent entry time: %w", err)
	}

	if !timestampStr.Valid || timestampStr.String == "" {
		// No reconciled entries yet, start from 2 hours ago
		return time.Now().Add(-2 * time.Hour), nil
	}

	// SQLite stores TIMESTAMP with a space instead of T; try its formats
	// first and fall back to RFC3339.
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999-07:00",
		"2006-01-02 15:04:05-07:00",
		time.RFC3339Nano,
		time.RFC3339,
	} {
		if parsed, err := time.Parse(layout, timestampStr.String); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", timestampStr.String)
}
