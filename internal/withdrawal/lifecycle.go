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

package withdrawal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tokensale-ledger-go/internal/common"
	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/notify"
	"tokensale-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

// Lifecycle drives the withdrawal state machine:
// pending -> processing (approve, debits the account) -> completed, or
// pending -> rejected. A request only becomes actionable once its lock
// period has elapsed.
type Lifecycle struct {
	db              store.LedgerStore
	notifier        notify.Port
	minimumAmount   decimal.Decimal
	lockPeriodDays  int
	allowedNetworks map[string]bool
}

func NewLifecycle(db store.LedgerStore, notifier notify.Port, minimumAmount decimal.Decimal, lockPeriodDays int, networks []common.NetworkConfig) *Lifecycle {
	allowed := make(map[string]bool, len(networks))
	for _, network := range networks {
		allowed[strings.ToLower(network.Name)] = true
	}

	return &Lifecycle{
		db:              db,
		notifier:        notifier,
		minimumAmount:   minimumAmount,
		lockPeriodDays:  lockPeriodDays,
		allowedNetworks: allowed,
	}
}

// RequestParams describes a new withdrawal. Exactly one of TokenAmount and
// CashAmount should be positive.
type RequestParams struct {
	AccountId          string
	TokenAmount        decimal.Decimal
	CashAmount         decimal.Decimal
	Network            string
	DestinationAddress string
}

// Request creates a pending withdrawal. The amount is validated against the
// configured minimum and the account's live balances; nothing is debited
// until approval.
func (l *Lifecycle) Request(ctx context.Context, params RequestParams) (*models.WithdrawalRequest, error) {
	amount := params.TokenAmount
	if !amount.IsPositive() {
		amount = params.CashAmount
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("withdrawal amount must be positive")
	}
	if amount.LessThan(l.minimumAmount) {
		return nil, fmt.Errorf("%w: %s < %s", store.ErrBelowMinimum, amount.String(), l.minimumAmount.String())
	}
	if len(l.allowedNetworks) > 0 && !l.allowedNetworks[strings.ToLower(params.Network)] {
		return nil, fmt.Errorf("unsupported withdrawal network: %s", params.Network)
	}
	if params.DestinationAddress == "" {
		return nil, fmt.Errorf("destination address is required")
	}

	account, err := l.db.GetAccount(ctx, params.AccountId)
	if err != nil {
		return nil, err
	}
	if params.TokenAmount.IsPositive() && account.AvailableTokens.LessThan(params.TokenAmount) {
		return nil, fmt.Errorf("%w: have %s, requested %s",
			store.ErrInsufficientAvailable, account.AvailableTokens.String(), params.TokenAmount.String())
	}
	if params.CashAmount.IsPositive() && account.CashBalance.LessThan(params.CashAmount) {
		return nil, fmt.Errorf("%w: cash %s, requested %s",
			store.ErrInsufficientAvailable, account.CashBalance.String(), params.CashAmount.String())
	}

	request, err := l.db.CreateWithdrawal(ctx, store.CreateWithdrawalParams{
		AccountId:          params.AccountId,
		TokenAmount:        params.TokenAmount,
		CashAmount:         params.CashAmount,
		Network:            params.Network,
		DestinationAddress: params.DestinationAddress,
		LockPeriodDays:     l.lockPeriodDays,
		RequestedAt:        time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	l.publishStateChange(request, "Withdrawal requested, locked until "+request.EligibleAt().Format("2006-01-02"))
	return request, nil
}

// Approve debits the account and moves the request to processing. Gated on
// the lock period: before requestedAt + lockPeriodDays the request is
// visible but cannot transition. Re-approving an already-processing request
// is a no-op.
func (l *Lifecycle) Approve(ctx context.Context, requestId string, now time.Time) (*models.WithdrawalRequest, error) {
	request, err := l.db.GetWithdrawal(ctx, requestId)
	if err != nil {
		return nil, err
	}
	if request.Status == models.WithdrawalStatusPending && now.Before(request.EligibleAt()) {
		return nil, fmt.Errorf("%w: eligible at %s", store.ErrWithdrawalLocked,
			request.EligibleAt().Format(time.RFC3339))
	}

	approved, err := l.db.DebitForWithdrawal(ctx, requestId, now)
	if err != nil {
		return nil, err
	}

	l.publishStateChange(approved, "Withdrawal approved, payout in progress")
	return approved, nil
}

// Reject is terminal and changes no balances. Gated on the same lock period
// as Approve; re-rejecting is a no-op.
func (l *Lifecycle) Reject(ctx context.Context, requestId string, now time.Time) (*models.WithdrawalRequest, error) {
	request, err := l.db.GetWithdrawal(ctx, requestId)
	if err != nil {
		return nil, err
	}
	if request.Status == models.WithdrawalStatusPending && now.Before(request.EligibleAt()) {
		return nil, fmt.Errorf("%w: eligible at %s", store.ErrWithdrawalLocked,
			request.EligibleAt().Format(time.RFC3339))
	}

	rejected, err := l.db.RejectWithdrawal(ctx, requestId, now)
	if err != nil {
		return nil, err
	}

	l.publishStateChange(rejected, "Withdrawal rejected")
	return rejected, nil
}

// ConfirmTransfer completes the processing request matching an outbound
// on-chain transfer. The account was already debited at approval, so this
// changes no balances. Returns (nil, nil) when no request matches.
func (l *Lifecycle) ConfirmTransfer(ctx context.Context, destinationAddress, externalRef string) (*models.WithdrawalRequest, error) {
	request, err := l.db.ConfirmWithdrawalTransfer(ctx, destinationAddress, externalRef)
	if err != nil || request == nil {
		return request, err
	}

	l.publishStateChange(request, "Withdrawal payout confirmed on-chain")
	return request, nil
}

// ByStatus lists requests for the admin queue.
func (l *Lifecycle) ByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
	return l.db.GetWithdrawalsByStatus(ctx, status)
}

func (l *Lifecycle) publishStateChange(request *models.WithdrawalRequest, message string) {
	amount := request.TokenAmount
	if !amount.IsPositive() {
		amount = request.CashAmount
	}
	l.notifier.Publish(notify.Event{
		Kind:      notify.EventWithdrawalStateChanged,
		AccountId: request.AccountId,
		Amount:    amount,
		Message:   fmt.Sprintf("%s (request %s, status %s)", message, request.Id, request.Status),
	})
}
