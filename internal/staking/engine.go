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

package staking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/notify"
	"tokensale-ledger-go/internal/store"
	"tokensale-ledger-go/internal/supply"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine manages multi-year staking positions. Rewards are flat rate:
// amount * apy * lockYears at maturity, no compounding and no proration on
// early cancel.
type Engine struct {
	db          store.LedgerStore
	supply      *supply.Ledger
	notifier    notify.Port
	penaltyRate decimal.Decimal
}

func NewEngine(db store.LedgerStore, supplyLedger *supply.Ledger, notifier notify.Port, penaltyRate decimal.Decimal) *Engine {
	return &Engine{
		db:          db,
		supply:      supplyLedger,
		notifier:    notifier,
		penaltyRate: penaltyRate,
	}
}

// OpenPosition moves amount from available to staked and creates an active
// position maturing lockYears from now.
func (e *Engine) OpenPosition(ctx context.Context, accountId string, amount decimal.Decimal, lockYears int, apy decimal.Decimal) (*models.StakingPosition, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("stake amount must be positive, got %s", amount.String())
	}
	if lockYears < 1 {
		return nil, fmt.Errorf("lock years must be at least 1, got %d", lockYears)
	}

	return e.db.OpenStakingPosition(ctx, store.OpenPositionParams{
		AccountId: accountId,
		Amount:    amount,
		Apy:       apy,
		LockYears: lockYears,
		StartDate: time.Now().UTC(),
	})
}

// Rewards computes the flat maturity reward for a position.
func Rewards(position *models.StakingPosition) decimal.Decimal {
	return position.Amount.Mul(position.Apy).Mul(decimal.NewFromInt(int64(position.LockYears)))
}

// MatureAll settles every active position whose end date has passed. The
// reward tokens are new issuance, so each settlement reserves supply first;
// a reservation whose settlement fails is released. One failed position is
// logged and skipped, never aborting the batch. Safe to re-run: a position
// settled by an earlier sweep is a no-op.
func (e *Engine) MatureAll(ctx context.Context, now time.Time) (int, error) {
	positions, err := e.db.GetMaturedPositions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list matured positions: %w", err)
	}

	settled := 0
	for i := range positions {
		position := &positions[i]
		rewards := Rewards(position)

		if err := e.supply.Reserve(ctx, rewards); err != nil {
			zap.L().Error("Failed to reserve supply for maturity rewards",
				zap.String("position_id", position.Id),
				zap.String("rewards", rewards.String()),
				zap.Error(err))
			continue
		}

		if err := e.db.SettleMaturedPosition(ctx, position.Id, rewards); err != nil {
			if releaseErr := e.supply.Release(ctx, rewards); releaseErr != nil {
				zap.L().Error("Failed to release rewards reservation",
					zap.String("position_id", position.Id),
					zap.Error(releaseErr))
			}
			if errors.Is(err, store.ErrInvalidTransition) {
				// Settled concurrently, nothing to do.
				continue
			}
			zap.L().Error("Failed to settle matured position",
				zap.String("position_id", position.Id),
				zap.Error(err))
			continue
		}

		settled++
		e.notifier.Publish(notify.Event{
			Kind:      notify.EventStakeMatured,
			AccountId: position.AccountId,
			Amount:    position.Amount.Add(rewards),
			Message: fmt.Sprintf("Staking position matured: %s principal plus %s rewards",
				position.Amount.String(), rewards.String()),
		})
	}

	if len(positions) > 0 {
		zap.L().Info("Maturity sweep finished",
			zap.Int("eligible", len(positions)),
			zap.Int("settled", settled))
	}
	return settled, nil
}

// Cancel terminates a position before maturity. The configured penalty
// percentage of the principal is forfeited and handed back to the supply
// counter; accrued rewards are forfeited entirely.
func (e *Engine) Cancel(ctx context.Context, positionId string) (decimal.Decimal, error) {
	position, err := e.db.GetStakingPosition(ctx, positionId)
	if err != nil {
		return decimal.Zero, err
	}

	// A matured position settles at full reward; cancelling it would charge
	// the early penalty on a lock that already ran its course.
	if !time.Now().UTC().Before(position.EndDate) {
		return decimal.Zero, fmt.Errorf("%w: position %s matured at %s, settle it instead",
			store.ErrInvalidTransition, positionId, position.EndDate.Format(time.RFC3339))
	}

	penalty := position.Amount.Mul(e.penaltyRate)
	if err := e.db.CancelStakingPosition(ctx, positionId, penalty); err != nil {
		return decimal.Zero, err
	}

	// Forfeited tokens go back into the issuable pool.
	if err := e.supply.Release(ctx, penalty); err != nil {
		zap.L().Error("Failed to release cancel penalty to supply",
			zap.String("position_id", positionId),
			zap.String("penalty", penalty.String()),
			zap.Error(err))
	}

	return position.Amount.Sub(penalty), nil
}
