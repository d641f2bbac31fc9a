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

package ledger

import (
	"context"
	"errors"
	"fmt"

	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/notify"
	"tokensale-ledger-go/internal/pricing"
	"tokensale-ledger-go/internal/referral"
	"tokensale-ledger-go/internal/store"
	"tokensale-ledger-go/internal/supply"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service is the purchase command surface. It owns the reserve-then-credit
// orchestration so the supply cap and the account credit cannot drift apart:
// a reservation whose credit fails is released, and a duplicate delivery
// releases its redundant reservation and returns the original entry.
type Service struct {
	db        store.LedgerStore
	oracle    *pricing.Oracle
	supply    *supply.Ledger
	referrals *referral.Engine
	notifier  notify.Port
}

func NewService(db store.LedgerStore, oracle *pricing.Oracle, supplyLedger *supply.Ledger, referrals *referral.Engine, notifier notify.Port) *Service {
	return &Service{
		db:        db,
		oracle:    oracle,
		supply:    supplyLedger,
		referrals: referrals,
		notifier:  notifier,
	}
}

// PurchaseParams describes one settled cash purchase. ExternalRef carries
// the blockchain hash for reconciled deposits and is empty for off-chain
// purchases.
type PurchaseParams struct {
	AccountId   string
	CashAmount  decimal.Decimal
	ExternalRef string
}

// Purchase converts cash to tokens at the current price, reserves supply,
// and credits the account. Idempotent on ExternalRef: a repeat delivery
// returns the original entry and leaves all balances unchanged.
func (s *Service) Purchase(ctx context.Context, params PurchaseParams) (*models.LedgerEntry, error) {
	if !params.CashAmount.IsPositive() {
		return nil, fmt.Errorf("purchase amount must be positive, got %s", params.CashAmount.String())
	}

	price, err := s.oracle.CurrentPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current price: %w", err)
	}
	tokenAmount := params.CashAmount.Div(price)

	if err := s.supply.Reserve(ctx, tokenAmount); err != nil {
		return nil, err
	}

	entry, err := s.db.CreditPurchase(ctx, store.CreditPurchaseParams{
		AccountId:     params.AccountId,
		CashAmount:    params.CashAmount,
		TokenAmount:   tokenAmount,
		PricePerToken: price,
		ExternalRef:   params.ExternalRef,
	})
	if errors.Is(err, store.ErrDuplicateExternalRef) {
		// Repeat delivery: the original credit already holds its own
		// reservation, so this one is redundant.
		if releaseErr := s.supply.Release(ctx, tokenAmount); releaseErr != nil {
			zap.L().Error("Failed to release redundant supply reservation",
				zap.String("external_ref", params.ExternalRef),
				zap.Error(releaseErr))
		}
		if entry == nil {
			// Lost the insert race; the winner's entry is committed.
			entry, err = s.db.GetEntryByExternalRef(ctx, params.ExternalRef)
			if err != nil {
				return nil, err
			}
		}
		zap.L().Info("Duplicate purchase delivery, returning existing entry",
			zap.String("external_ref", params.ExternalRef))
		return entry, nil
	}
	if err != nil {
		if releaseErr := s.supply.Release(ctx, tokenAmount); releaseErr != nil {
			zap.L().Error("Failed to release supply after credit failure",
				zap.String("account_id", params.AccountId),
				zap.Error(releaseErr))
		}
		return nil, err
	}

	s.notifier.Publish(notify.Event{
		Kind:      notify.EventAccountCredited,
		AccountId: params.AccountId,
		Amount:    tokenAmount,
		Message: fmt.Sprintf("Purchase settled: %s tokens for %s at %s",
			tokenAmount.String(), params.CashAmount.String(), price.String()),
	})

	// Commission runs after the purchase committed; a failure here never
	// rolls back the credit.
	if err := s.referrals.OnFirstQualifyingPurchase(ctx, params.AccountId, params.CashAmount); err != nil {
		zap.L().Error("Failed to process referral commission",
			zap.String("account_id", params.AccountId),
			zap.Error(err))
	}

	return entry, nil
}
