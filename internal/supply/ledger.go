package supply

import (
	"context"

	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

// Ledger is the single admission-control point for token issuance. Every
// purchase credit and every maturity reward must pass Reserve before the
// account credit commits.
type Ledger struct {
	db store.LedgerStore
}

func NewLedger(db store.LedgerStore) *Ledger {
	return &Ledger{db: db}
}

// Reserve admits tokenAmount against the hard cap. Two concurrent reserves
// that would jointly overrun the cap cannot both succeed; the loser gets
// ErrSupplyExceeded.
func (l *Ledger) Reserve(ctx context.Context, tokenAmount decimal.Decimal) error {
	return l.db.ReserveSupply(ctx, tokenAmount)
}

// Release compensates a reservation whose paired credit failed. Never goes
// below zero.
func (l *Ledger) Release(ctx context.Context, tokenAmount decimal.Decimal) error {
	return l.db.ReleaseSupply(ctx, tokenAmount)
}

// Counter returns the current cap and issued totals.
func (l *Ledger) Counter(ctx context.Context) (*models.SupplyCounter, error) {
	return l.db.GetSupplyCounter(ctx)
}
