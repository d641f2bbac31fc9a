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

package pricing

import (
	"context"
	"errors"
	"time"

	"tokensale-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Oracle resolves token prices against the append-only, date-indexed price
// table. Prices have day granularity.
type Oracle struct {
	db            store.LedgerStore
	fallbackPrice decimal.Decimal
}

func NewOracle(db store.LedgerStore, fallbackPrice decimal.Decimal) *Oracle {
	return &Oracle{
		db:            db,
		fallbackPrice: fallbackPrice,
	}
}

// CurrentPrice returns the latest price entry, or the configured fallback
// when no price has ever been set.
func (o *Oracle) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	price, err := o.db.GetLatestPrice(ctx)
	if errors.Is(err, store.ErrNoPriceAvailable) {
		zap.L().Debug("No price entries, using fallback",
			zap.String("fallback", o.fallbackPrice.String()))
		return o.fallbackPrice, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

// PriceAt returns the price in effect on the given date: the entry for the
// date itself, else the latest entry before it. ErrNoPriceAvailable only
// when no entry precedes the date.
func (o *Oracle) PriceAt(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	return o.db.GetPriceAt(ctx, date.UTC().Format(dateLayout))
}

// SetPrice upserts the price for a date. Non-positive prices are rejected
// with ErrInvalidPrice. Settled ledger entries keep the price they were
// recorded at.
func (o *Oracle) SetPrice(ctx context.Context, date time.Time, price decimal.Decimal) error {
	return o.db.UpsertPrice(ctx, date.UTC().Format(dateLayout), price)
}
