package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokensale-ledger-go/internal/notify"
	"tokensale-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// settingCommissionRate is the admin-configurable rate row; the config value
// is only the bootstrap default.
const settingCommissionRate = "commission_rate"

// Engine pays a one-time commission to a referrer when a referred account's
// first qualifying purchase settles. At most one commission ever exists per
// (referrer, referred) pair, regardless of how many purchases follow.
type Engine struct {
	db          store.LedgerStore
	notifier    notify.Port
	defaultRate decimal.Decimal
}

func NewEngine(db store.LedgerStore, notifier notify.Port, defaultRate decimal.Decimal) *Engine {
	return &Engine{
		db:          db,
		notifier:    notifier,
		defaultRate: defaultRate,
	}
}

// OnFirstQualifyingPurchase credits the referrer of the purchasing account.
// No referrer, or an already-recorded commission for the pair, is a no-op.
func (e *Engine) OnFirstQualifyingPurchase(ctx context.Context, referredAccountId string, purchaseAmount decimal.Decimal) error {
	account, err := e.db.GetAccount(ctx, referredAccountId)
	if err != nil {
		return err
	}
	if account.ReferredBy == "" {
		return nil
	}

	existing, err := e.db.GetCommission(ctx, account.ReferredBy, referredAccountId)
	if err != nil {
		return err
	}
	if existing != nil {
		zap.L().Debug("Commission already recorded for pair, skipping",
			zap.String("referrer_id", account.ReferredBy),
			zap.String("referred_account_id", referredAccountId))
		return nil
	}

	rate, err := e.CommissionRate(ctx)
	if err != nil {
		return err
	}
	amount := purchaseAmount.Mul(rate)

	commission, err := e.db.CreditCommission(ctx, store.CreditCommissionParams{
		ReferrerId:        account.ReferredBy,
		ReferredAccountId: referredAccountId,
		Amount:            amount,
		Percentage:        rate,
		Period:            time.Now().UTC().Format("2006-01"),
	})
	if errors.Is(err, store.ErrDuplicateCommission) {
		// Lost a race with a concurrent purchase by the same account.
		return nil
	}
	if err != nil {
		return err
	}

	e.notifier.Publish(notify.Event{
		Kind:      notify.EventCommissionPaid,
		AccountId: commission.ReferrerId,
		Amount:    commission.Amount,
		Message: fmt.Sprintf("Referral commission of %s paid for account %s",
			commission.Amount.String(), referredAccountId),
	})
	return nil
}

// CommissionRate reads the live rate from settings, falling back to the
// configured default when the row has never been written.
func (e *Engine) CommissionRate(ctx context.Context) (decimal.Decimal, error) {
	value, err := e.db.GetSetting(ctx, settingCommissionRate)
	if err != nil {
		return decimal.Zero, err
	}
	if value == "" {
		return e.defaultRate, nil
	}

	rate, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid commission rate setting %q: %w", value, err)
	}
	return rate, nil
}

// SetCommissionRate updates the live rate. Applies to future commissions
// only; paid records keep their recorded percentage.
func (e *Engine) SetCommissionRate(ctx context.Context, rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate must be between 0 and 1, got %s", rate.String())
	}
	return e.db.SetSetting(ctx, settingCommissionRate, rate.String())
}
