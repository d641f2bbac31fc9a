package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a ledger entry by the operation that produced it.
type EntryKind string

const (
	EntryKindPurchase           EntryKind = "purchase"
	EntryKindWithdrawal         EntryKind = "withdrawal"
	EntryKindReferralCommission EntryKind = "referral_commission"
	EntryKindStakeCreate        EntryKind = "stake_create"
	EntryKindStakeMature        EntryKind = "stake_mature"
)

// EntryStatus is the settlement state of a ledger entry. Entries are
// append-only; status moves pending -> completed|failed exactly once.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
)

// CanTransitionTo reports whether a status change is legal.
func (s EntryStatus) CanTransitionTo(next EntryStatus) bool {
	switch s {
	case EntryStatusPending:
		return next == EntryStatusCompleted || next == EntryStatusFailed
	case EntryStatusCompleted, EntryStatusFailed:
		return false
	}
	return false
}

// PositionStatus is the lifecycle state of a staking position.
type PositionStatus string

const (
	PositionStatusActive    PositionStatus = "active"
	PositionStatusCompleted PositionStatus = "completed"
	PositionStatusCancelled PositionStatus = "cancelled"
)

// CanTransitionTo reports whether a position status change is legal.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	switch s {
	case PositionStatusActive:
		return next == PositionStatusCompleted || next == PositionStatusCancelled
	case PositionStatusCompleted, PositionStatusCancelled:
		return false
	}
	return false
}

// WithdrawalStatus is the state of a withdrawal request.
// Pending -> Approved -> Processing -> Completed, or Pending -> Rejected.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusApproved   WithdrawalStatus = "approved"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
)

// CanTransitionTo reports whether a withdrawal status change is legal.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	switch s {
	case WithdrawalStatusPending:
		return next == WithdrawalStatusApproved || next == WithdrawalStatusRejected
	case WithdrawalStatusApproved:
		return next == WithdrawalStatusProcessing
	case WithdrawalStatusProcessing:
		return next == WithdrawalStatusCompleted
	case WithdrawalStatusCompleted, WithdrawalStatusRejected:
		return false
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalStatusCompleted || s == WithdrawalStatusRejected
}

// CommissionStatus is the payout state of a referral commission record.
type CommissionStatus string

const (
	CommissionStatusPending CommissionStatus = "pending"
	CommissionStatusPaid    CommissionStatus = "paid"
)

// Account holds per-user token and cash balances. The balance invariant
// total_tokens = staked_tokens + available_tokens holds in every committed
// state. New accounts start inactive and cannot be credited by the
// reconciler until activated.
type Account struct {
	Id               string          `db:"id"`
	Name             string          `db:"name"`
	Email            string          `db:"email"`
	WalletAddress    string          `db:"wallet_address"`
	TotalTokens      decimal.Decimal `db:"total_tokens"`
	StakedTokens     decimal.Decimal `db:"staked_tokens"`
	AvailableTokens  decimal.Decimal `db:"available_tokens"`
	CashBalance      decimal.Decimal `db:"cash_balance"`
	ReferralEarnings decimal.Decimal `db:"referral_earnings"`
	IsActive         bool            `db:"is_active"`
	ReferralCode     string          `db:"referral_code"`
	ReferredBy       string          `db:"referred_by"`
	Version          int64           `db:"version"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// LedgerEntry is an immutable record of one balance-affecting event.
type LedgerEntry struct {
	Id            string          `db:"id"`
	AccountId     string          `db:"account_id"`
	Kind          EntryKind       `db:"kind"`
	CashAmount    decimal.Decimal `db:"cash_amount"`
	TokenAmount   decimal.Decimal `db:"token_amount"`
	PricePerToken decimal.Decimal `db:"price_per_token"`
	Status        EntryStatus     `db:"status"`
	ExternalRef   string          `db:"external_ref"`
	RequestId     string          `db:"request_id"` // links a withdrawal entry to its request
	CreatedAt     time.Time       `db:"created_at"`
}

// PriceEntry is one day's token price. Later writes for the same date
// overwrite the displayed price but never settled entries.
type PriceEntry struct {
	Date  string          `db:"date"` // YYYY-MM-DD
	Price decimal.Decimal `db:"price"`
}

// SupplyCounter is the single-row issued-vs-cap counter.
type SupplyCounter struct {
	TotalSupplyCap decimal.Decimal `db:"total_supply_cap"`
	TokensIssued   decimal.Decimal `db:"tokens_issued"`
}

// StakingPosition locks an amount of tokens for LockYears at a flat Apy.
// Rewards at maturity are amount * apy * lockYears, not compounded.
type StakingPosition struct {
	Id             string          `db:"id"`
	AccountId      string          `db:"account_id"`
	Amount         decimal.Decimal `db:"amount"`
	Apy            decimal.Decimal `db:"apy"`
	LockYears      int             `db:"lock_years"`
	StartDate      time.Time       `db:"start_date"`
	EndDate        time.Time       `db:"end_date"`
	Status         PositionStatus  `db:"status"`
	RewardsAccrued decimal.Decimal `db:"rewards_accrued"`
	CreatedAt      time.Time       `db:"created_at"`
}

// WithdrawalRequest is a user's request to move tokens or cash off-platform.
// It becomes actionable by an admin only after the lock period elapses.
type WithdrawalRequest struct {
	Id                 string           `db:"id"`
	AccountId          string           `db:"account_id"`
	TokenAmount        decimal.Decimal  `db:"token_amount"`
	CashAmount         decimal.Decimal  `db:"cash_amount"`
	Network            string           `db:"network"`
	DestinationAddress string           `db:"destination_address"`
	Status             WithdrawalStatus `db:"status"`
	RequestedAt        time.Time        `db:"requested_at"`
	LockPeriodDays     int              `db:"lock_period_days"`
	DecidedAt          time.Time        `db:"decided_at"`
}

// EligibleAt returns the first instant an admin may act on the request.
func (w *WithdrawalRequest) EligibleAt() time.Time {
	return w.RequestedAt.AddDate(0, 0, w.LockPeriodDays)
}

// ReferralCommission records the one-time commission paid to a referrer for
// a referred account's first qualifying purchase. At most one row exists per
// (referrer, referred) pair.
type ReferralCommission struct {
	Id                string           `db:"id"`
	ReferrerId        string           `db:"referrer_id"`
	ReferredAccountId string           `db:"referred_account_id"`
	Amount            decimal.Decimal  `db:"amount"`
	Percentage        decimal.Decimal  `db:"percentage"`
	Status            CommissionStatus `db:"status"`
	Period            string           `db:"period"` // YYYY-MM
	CreatedAt         time.Time        `db:"created_at"`
}

// FlaggedTransfer is an audit-queue row for transfers the reconciler could
// not (or refused to) match to an account.
type FlaggedTransfer struct {
	Id           string          `db:"id"`
	Hash         string          `db:"hash"`
	Direction    string          `db:"direction"`
	Counterparty string          `db:"counterparty"`
	Amount       decimal.Decimal `db:"amount"`
	Reason       string          `db:"reason"`
	Severity     string          `db:"severity"`
	CreatedAt    time.Time       `db:"created_at"`
}
