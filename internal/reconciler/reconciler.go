/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tokensale-ledger-go/internal/ledger"
	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/notify"
	"tokensale-ledger-go/internal/store"
	"tokensale-ledger-go/internal/withdrawal"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reconciler matches external blockchain transfers to internal accounts and
// drives the same ledger mutation primitives the command surface uses. The
// feed is at-least-once and unordered, so every path here is idempotent on
// the transfer hash.
type Reconciler struct {
	db                  store.LedgerStore
	ledgerService       *ledger.Service
	withdrawals         *withdrawal.Lifecycle
	notifier            notify.Port
	companyWallet       string
	suspiciousThreshold decimal.Decimal
}

type Config struct {
	DbService           store.LedgerStore
	LedgerService       *ledger.Service
	Withdrawals         *withdrawal.Lifecycle
	Notifier            notify.Port
	CompanyWallet       string
	SuspiciousThreshold decimal.Decimal
}

func New(cfg Config) *Reconciler {
	return &Reconciler{
		db:                  cfg.DbService,
		ledgerService:       cfg.LedgerService,
		withdrawals:         cfg.Withdrawals,
		notifier:            cfg.Notifier,
		companyWallet:       strings.ToLower(cfg.CompanyWallet),
		suspiciousThreshold: cfg.SuspiciousThreshold,
	}
}

// HandleTransfer classifies and settles one transfer. Safe to call any
// number of times with the same hash: the first delivery mutates the
// ledger, every repeat resolves to Processed without touching balances.
func (r *Reconciler) HandleTransfer(ctx context.Context, transfer models.Transfer) (models.ReconcileResult, error) {
	to := strings.ToLower(transfer.To)
	from := strings.ToLower(transfer.From)

	if to != r.companyWallet && from != r.companyWallet {
		return models.ReconcileIgnored, nil
	}
	if to == r.companyWallet && from == r.companyWallet {
		// Internal shuffle, no counterparty to settle against.
		return models.ReconcileIgnored, nil
	}

	entry, err := r.db.GetEntryByExternalRef(ctx, transfer.Hash)
	if err != nil {
		return "", fmt.Errorf("failed to check transfer hash: %w", err)
	}
	if entry != nil {
		zap.L().Debug("Transfer already reconciled",
			zap.String("hash", transfer.Hash),
			zap.String("entry_id", entry.Id))
		return models.ReconcileProcessed, nil
	}

	if to == r.companyWallet {
		return r.handleDeposit(ctx, transfer)
	}
	return r.handleWithdrawalConfirmation(ctx, transfer)
}

// handleDeposit credits a matched, active account with tokens bought at the
// current price. Unknown senders and inactive accounts are flagged, never
// silently matched or dropped.
func (r *Reconciler) handleDeposit(ctx context.Context, transfer models.Transfer) (models.ReconcileResult, error) {
	account, err := r.db.GetAccountByWallet(ctx, transfer.From)
	if errors.Is(err, store.ErrAccountNotFound) {
		return r.flag(ctx, transfer, "inbound", transfer.From, "no account registered for sender address")
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve deposit sender: %w", err)
	}

	if !account.IsActive {
		return r.flag(ctx, transfer, "inbound", transfer.From,
			fmt.Sprintf("deposit to inactive account %s", account.Id))
	}

	if _, err := r.ledgerService.Purchase(ctx, ledger.PurchaseParams{
		AccountId:   account.Id,
		CashAmount:  transfer.Value,
		ExternalRef: transfer.Hash,
	}); err != nil {
		return "", fmt.Errorf("failed to credit deposit %s: %w", transfer.Hash, err)
	}

	zap.L().Info("Deposit reconciled",
		zap.String("hash", transfer.Hash),
		zap.String("account_id", account.Id),
		zap.String("value", transfer.Value.String()))
	return models.ReconcileProcessed, nil
}

// handleWithdrawalConfirmation completes a processing request for the
// destination address. The account was debited at approval time, so no
// balance changes here; the event is informational.
func (r *Reconciler) handleWithdrawalConfirmation(ctx context.Context, transfer models.Transfer) (models.ReconcileResult, error) {
	if _, err := r.db.GetAccountByWallet(ctx, transfer.To); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return r.flag(ctx, transfer, "outbound", transfer.To, "no account registered for recipient address")
		}
		return "", fmt.Errorf("failed to resolve withdrawal recipient: %w", err)
	}

	request, err := r.withdrawals.ConfirmTransfer(ctx, transfer.To, transfer.Hash)
	if errors.Is(err, store.ErrDuplicateExternalRef) {
		return models.ReconcileProcessed, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to confirm withdrawal %s: %w", transfer.Hash, err)
	}
	if request == nil {
		zap.L().Info("Outbound transfer with no processing request, recording as informational",
			zap.String("hash", transfer.Hash),
			zap.String("to", transfer.To))
		return models.ReconcileProcessed, nil
	}

	zap.L().Info("Withdrawal payout reconciled",
		zap.String("hash", transfer.Hash),
		zap.String("request_id", request.Id))
	return models.ReconcileProcessed, nil
}

// flag records the transfer in the audit queue and escalates it. Severity
// scales with the amount against the configured suspicious threshold.
func (r *Reconciler) flag(ctx context.Context, transfer models.Transfer, direction, counterparty, reason string) (models.ReconcileResult, error) {
	severity := "warning"
	if r.suspiciousThreshold.IsPositive() && transfer.Value.GreaterThanOrEqual(r.suspiciousThreshold) {
		severity = "critical"
	}

	if err := r.db.FlagTransfer(ctx, store.FlagTransferParams{
		Hash:         transfer.Hash,
		Direction:    direction,
		Counterparty: counterparty,
		Amount:       transfer.Value,
		Reason:       reason,
		Severity:     severity,
	}); err != nil {
		return "", err
	}

	r.notifier.Publish(notify.Event{
		Kind:     notify.EventSuspiciousTransfer,
		Amount:   transfer.Value,
		Severity: severity,
		Message: fmt.Sprintf("Flagged %s transfer %s from %s: %s",
			direction, transfer.Hash, counterparty, reason),
	})
	return models.ReconcileFlagged, nil
}
