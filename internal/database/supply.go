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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// reserveAttempts bounds the optimistic retry loop on the supply counter.
const reserveAttempts = 5

// EnsureSupplyCounter seeds the single counter row and keeps the cap in
// sync with configuration. Issued tokens are never touched here.
func (s *Service) EnsureSupplyCounter(ctx context.Context, cap decimal.Decimal) error {
	if _, err := s.db.ExecContext(ctx, queryEnsureSupplyCounter, cap.String()); err != nil {
		return fmt.Errorf("failed to seed supply counter: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, queryUpdateSupplyCap, cap.String()); err != nil {
		return fmt.Errorf("failed to update supply cap: %w", err)
	}
	return nil
}

func (s *Service) GetSupplyCounter(ctx context.Context) (*models.SupplyCounter, error) {
	var capStr, issuedStr string
	err := s.db.QueryRowContext(ctx, queryGetSupplyCounter).Scan(&capStr, &issuedStr)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("supply counter not seeded")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get supply counter: %w", err)
	}

	counter := &models.SupplyCounter{}
	if counter.TotalSupplyCap, err = parseDecimal(capStr, "total_supply_cap"); err != nil {
		return nil, err
	}
	if counter.TokensIssued, err = parseDecimal(issuedStr, "tokens_issued"); err != nil {
		return nil, err
	}
	return counter, nil
}

// ReserveSupply atomically admits amount against the cap. The guard on the
// previous issued value makes the check and the increment one step: of two
// concurrent reservations that would jointly overrun the cap, at most one
// can win the update.
func (s *Service) ReserveSupply(ctx context.Context, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("reserve amount must be positive, got %s", amount.String())
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		var capStr, issuedStr string
		err := s.db.QueryRowContext(ctx, queryGetSupplyCounter).Scan(&capStr, &issuedStr)
		if err != nil {
			return fmt.Errorf("failed to read supply counter: %w", err)
		}

		cap, err := parseDecimal(capStr, "total_supply_cap")
		if err != nil {
			return err
		}
		issued, err := parseDecimal(issuedStr, "tokens_issued")
		if err != nil {
			return err
		}

		newIssued := issued.Add(amount)
		if newIssued.GreaterThan(cap) {
			return fmt.Errorf("%w: issued %s + %s exceeds cap %s",
				store.ErrSupplyExceeded, issued.String(), amount.String(), cap.String())
		}

		result, err := s.db.ExecContext(ctx, queryUpdateTokensIssued, newIssued.String(), issuedStr)
		if err != nil {
			return fmt.Errorf("failed to update tokens issued: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 1 {
			zap.L().Debug("Supply reserved",
				zap.String("amount", amount.String()),
				zap.String("tokens_issued", newIssued.String()))
			return nil
		}
		// Lost the race; re-read and retry.
	}

	return fmt.Errorf("supply reservation failed - %w", store.ErrConcurrentModification)
}

// ReleaseSupply compensates a reservation whose paired purchase failed.
// Issued tokens never go below zero.
func (s *Service) ReleaseSupply(ctx context.Context, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("release amount must be positive, got %s", amount.String())
	}

	for attempt := 0; attempt < reserveAttempts; attempt++ {
		var capStr, issuedStr string
		err := s.db.QueryRowContext(ctx, queryGetSupplyCounter).Scan(&capStr, &issuedStr)
		if err != nil {
			return fmt.Errorf("failed to read supply counter: %w", err)
		}

		issued, err := parseDecimal(issuedStr, "tokens_issued")
		if err != nil {
			return err
		}

		newIssued := issued.Sub(amount)
		if newIssued.IsNegative() {
			newIssued = decimal.Zero
		}

		result, err := s.db.ExecContext(ctx, queryUpdateTokensIssued, newIssued.String(), issuedStr)
		if err != nil {
			return fmt.Errorf("failed to update tokens issued: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 1 {
			zap.L().Info("Supply released",
				zap.String("amount", amount.String()),
				zap.String("tokens_issued", newIssued.String()))
			return nil
		}
	}

	return fmt.Errorf("supply release failed - %w", store.ErrConcurrentModification)
}
