package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func scanWithdrawal(row rowScanner) (*models.WithdrawalRequest, error) {
	var w models.WithdrawalRequest
	var tokens, cash string
	var decidedAt sql.NullTime

	err := row.Scan(&w.Id, &w.AccountId, &tokens, &cash, &w.Network, &w.DestinationAddress,
		&w.Status, &w.RequestedAt, &w.LockPeriodDays, &decidedAt)
	if err != nil {
		return nil, err
	}

	if w.TokenAmount, err = parseDecimal(tokens, "token_amount"); err != nil {
		return nil, err
	}
	if w.CashAmount, err = parseDecimal(cash, "cash_amount"); err != nil {
		return nil, err
	}
	if decidedAt.Valid {
		w.DecidedAt = decidedAt.Time
	}
	return &w, nil
}

func (s *Service) CreateWithdrawal(ctx context.Context, params store.CreateWithdrawalParams) (*models.WithdrawalRequest, error) {
	request := &models.WithdrawalRequest{
		Id:                 uuid.New().String(),
		AccountId:          params.AccountId,
		TokenAmount:        params.TokenAmount,
		CashAmount:         params.CashAmount,
		Network:            params.Network,
		DestinationAddress: params.DestinationAddress,
		Status:             models.WithdrawalStatusPending,
		RequestedAt:        params.RequestedAt,
		LockPeriodDays:     params.LockPeriodDays,
	}

	_, err := s.db.ExecContext(ctx, queryInsertWithdrawal,
		request.Id, request.AccountId,
		request.TokenAmount.String(), request.CashAmount.String(),
		request.Network, request.DestinationAddress,
		string(request.Status), request.RequestedAt, request.LockPeriodDays)
	if err != nil {
		return nil, fmt.Errorf("failed to create withdrawal request: %w", err)
	}

	zap.L().Info("Withdrawal requested",
		zap.String("request_id", request.Id),
		zap.String("account_id", request.AccountId),
		zap.String("token_amount", request.TokenAmount.String()),
		zap.String("cash_amount", request.CashAmount.String()),
		zap.String("network", request.Network))
	return request, nil
}

func (s *Service) GetWithdrawal(ctx context.Context, requestId string) (*models.WithdrawalRequest, error) {
	request, err := scanWithdrawal(s.db.QueryRowContext(ctx, queryGetWithdrawal, requestId))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("withdrawal request not found: %s", requestId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal request: %w", err)
	}
	return request, nil
}

func (s *Service) GetWithdrawalsByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
	rows, err := s.db.QueryContext(ctx, queryGetWithdrawalsByStatus, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawal requests: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var requests []models.WithdrawalRequest
	for rows.Next() {
		request, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal request: %w", err)
		}
		requests = append(requests, *request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withdrawal rows: %w", err)
	}
	return requests, nil
}

// DebitForWithdrawal executes the approval transition: the account debit
// and the pending->processing move commit together. Re-approving a request
// that already moved on is a no-op so client retries are harmless; only
// rejected or completed requests are an error. The account must be active
// and hold enough available tokens (or cash) at this moment.
func (s *Service) DebitForWithdrawal(ctx context.Context, requestId string, decidedAt time.Time) (*models.WithdrawalRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	request, err := scanWithdrawal(tx.QueryRowContext(ctx, queryGetWithdrawal, requestId))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("withdrawal request not found: %s", requestId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal request: %w", err)
	}

	switch request.Status {
	case models.WithdrawalStatusApproved, models.WithdrawalStatusProcessing:
		zap.L().Info("Withdrawal already approved, treating as no-op",
			zap.String("request_id", requestId),
			zap.String("status", string(request.Status)))
		return request, nil
	}
	if !request.Status.CanTransitionTo(models.WithdrawalStatusApproved) {
		return nil, fmt.Errorf("%w: cannot approve %s request %s",
			store.ErrInvalidTransition, request.Status, requestId)
	}

	account, err := s.getAccountTx(ctx, tx, request.AccountId)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, fmt.Errorf("%w: account %s", store.ErrAccountLocked, account.Id)
	}

	if request.TokenAmount.IsPositive() {
		if account.AvailableTokens.LessThan(request.TokenAmount) {
			return nil, fmt.Errorf("%w: have %s, need %s",
				store.ErrInsufficientAvailable, account.AvailableTokens.String(), request.TokenAmount.String())
		}
		account.AvailableTokens = account.AvailableTokens.Sub(request.TokenAmount)
		account.TotalTokens = account.TotalTokens.Sub(request.TokenAmount)
	}
	if request.CashAmount.IsPositive() {
		if account.CashBalance.LessThan(request.CashAmount) {
			return nil, fmt.Errorf("%w: cash %s, need %s",
				store.ErrInsufficientAvailable, account.CashBalance.String(), request.CashAmount.String())
		}
		account.CashBalance = account.CashBalance.Sub(request.CashAmount)
	}

	result, err := tx.ExecContext(ctx, queryTransitionWithdrawal,
		string(models.WithdrawalStatusProcessing), decidedAt, requestId,
		string(models.WithdrawalStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to transition withdrawal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("withdrawal transition failed - %w", store.ErrConcurrentModification)
	}

	// The entry stays pending until the on-chain transfer confirms; the
	// balance debit is already final.
	entry := &models.LedgerEntry{
		Id:          uuid.New().String(),
		AccountId:   request.AccountId,
		Kind:        models.EntryKindWithdrawal,
		TokenAmount: request.TokenAmount,
		CashAmount:  request.CashAmount,
		Status:      models.EntryStatusPending,
		RequestId:   request.Id,
		CreatedAt:   time.Now().UTC(),
	}
	if err := insertEntryTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("failed to insert withdrawal entry: %w", err)
	}

	if err := s.applyBalancesTx(ctx, tx, account); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	request.Status = models.WithdrawalStatusProcessing
	request.DecidedAt = decidedAt

	zap.L().Info("Withdrawal approved and debited",
		zap.String("request_id", request.Id),
		zap.String("account_id", request.AccountId),
		zap.String("token_amount", request.TokenAmount.String()),
		zap.String("cash_amount", request.CashAmount.String()))
	return request, nil
}

// RejectWithdrawal is terminal and changes no balances. Re-rejecting is a
// no-op for retry tolerance.
func (s *Service) RejectWithdrawal(ctx context.Context, requestId string, decidedAt time.Time) (*models.WithdrawalRequest, error) {
	request, err := s.GetWithdrawal(ctx, requestId)
	if err != nil {
		return nil, err
	}

	if request.Status == models.WithdrawalStatusRejected {
		return request, nil
	}
	if !request.Status.CanTransitionTo(models.WithdrawalStatusRejected) {
		return nil, fmt.Errorf("%w: cannot reject %s request %s",
			store.ErrInvalidTransition, request.Status, requestId)
	}

	result, err := s.db.ExecContext(ctx, queryTransitionWithdrawal,
		string(models.WithdrawalStatusRejected), decidedAt, requestId,
		string(models.WithdrawalStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to reject withdrawal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("withdrawal rejection failed - %w", store.ErrConcurrentModification)
	}

	request.Status = models.WithdrawalStatusRejected
	request.DecidedAt = decidedAt

	zap.L().Info("Withdrawal rejected",
		zap.String("request_id", request.Id),
		zap.String("account_id", request.AccountId))
	return request, nil
}

// ConfirmWithdrawalTransfer matches an outbound on-chain transfer to the
// oldest processing request for the destination address, completes the
// request, and stamps the pending withdrawal entry with the transfer hash.
// Returns (nil, nil) when no processing request matches; the caller then
// records the confirmation as informational only. A transfer hash that was
// already recorded returns ErrDuplicateExternalRef.
func (s *Service) ConfirmWithdrawalTransfer(ctx context.Context, destinationAddress, externalRef string) (*models.WithdrawalRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanEntry(tx.QueryRowContext(ctx, queryGetEntryByExternalRef, externalRef))
	if err == nil {
		return nil, fmt.Errorf("%w: external_ref %s already exists",
			store.ErrDuplicateExternalRef, existing.ExternalRef)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check for duplicate external ref: %w", err)
	}

	request, err := scanWithdrawal(tx.QueryRowContext(ctx, queryFindProcessingWithdrawal,
		destinationAddress))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find processing withdrawal: %w", err)
	}

	result, err := tx.ExecContext(ctx, queryCompleteWithdrawal, request.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to complete withdrawal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("withdrawal completion failed - %w", store.ErrConcurrentModification)
	}

	entry, err := scanEntry(tx.QueryRowContext(ctx, queryGetEntryForRequest, request.Id))
	if err != nil {
		return nil, fmt.Errorf("failed to load withdrawal entry: %w", err)
	}
	if !entry.Status.CanTransitionTo(models.EntryStatusCompleted) {
		return nil, fmt.Errorf("%w: entry %s is %s",
			store.ErrInvalidTransition, entry.Id, entry.Status)
	}

	if _, err := tx.ExecContext(ctx, queryCompleteEntryForRequest, externalRef, request.Id); err != nil {
		return nil, fmt.Errorf("failed to complete withdrawal entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	request.Status = models.WithdrawalStatusCompleted

	zap.L().Info("Withdrawal confirmed on-chain",
		zap.String("request_id", request.Id),
		zap.String("account_id", request.AccountId),
		zap.String("external_ref", externalRef))
	return request, nil
}
