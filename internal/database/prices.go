package database

import (
	"context"
	"database/sql"
	"fmt"

	"tokensale-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UpsertPrice writes the price for a date. A later write for the same date
// overwrites the displayed price; settled ledger entries keep the price
// they were recorded at.
func (s *Service) UpsertPrice(ctx context.Context, date string, price decimal.Decimal) error {
	if price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: %s", store.ErrInvalidPrice, price.String())
	}

	if _, err := s.db.ExecContext(ctx, queryUpsertPrice, date, price.String()); err != nil {
		return fmt.Errorf("failed to upsert price: %w", err)
	}

	zap.L().Info("Price set", zap.String("date", date), zap.String("price", price.String()))
	return nil
}

// GetPriceAt returns the price for a date, falling back to the latest entry
// on or before it. Fails with ErrNoPriceAvailable only when no entry
// precedes the date.
func (s *Service) GetPriceAt(ctx context.Context, date string) (decimal.Decimal, error) {
	var priceStr string
	err := s.db.QueryRowContext(ctx, queryGetPriceAt, date).Scan(&priceStr)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("%w: %s", store.ErrNoPriceAvailable, date)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get price at %s: %w", date, err)
	}
	return parseDecimal(priceStr, "price")
}

// GetLatestPrice returns the newest price entry, or ErrNoPriceAvailable
// when the table is empty.
func (s *Service) GetLatestPrice(ctx context.Context) (decimal.Decimal, error) {
	var priceStr string
	err := s.db.QueryRowContext(ctx, queryGetLatestPrice).Scan(&priceStr)
	if err == sql.ErrNoRows {
		return decimal.Zero, store.ErrNoPriceAvailable
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get latest price: %w", err)
	}
	return parseDecimal(priceStr, "price")
}
