package store

import (
	"context"
	"errors"
	"time"

	"tokensale-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across the ledger. Domain violations are returned
// typed to the caller and never corrupt committed state.
var (
	ErrInsufficientAvailable  = errors.New("insufficient available tokens")
	ErrSupplyExceeded         = errors.New("total supply cap exceeded")
	ErrInvalidPrice           = errors.New("price must be positive")
	ErrNoPriceAvailable       = errors.New("no price available for date")
	ErrAccountLocked          = errors.New("account is not active")
	ErrDuplicateExternalRef   = errors.New("duplicate external reference")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrAccountNotFound        = errors.New("account not found")
	ErrWithdrawalLocked       = errors.New("withdrawal lock period has not elapsed")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrBelowMinimum           = errors.New("amount below configured minimum")
	ErrDuplicateCommission    = errors.New("commission already recorded for referral pair")
)

// CreateAccountParams contains the parameters for registering an account.
type CreateAccountParams struct {
	Id            string
	Name          string
	Email         string
	WalletAddress string
	ReferralCode  string
	ReferredBy    string // referrer account id, empty when none
}

// CreditPurchaseParams contains the parameters for crediting a settled
// purchase. The supply reservation must already have succeeded.
type CreditPurchaseParams struct {
	AccountId     string
	CashAmount    decimal.Decimal
	TokenAmount   decimal.Decimal
	PricePerToken decimal.Decimal
	ExternalRef   string // blockchain hash, empty for off-chain purchases
}

// OpenPositionParams contains the parameters for opening a staking position.
type OpenPositionParams struct {
	AccountId string
	Amount    decimal.Decimal
	Apy       decimal.Decimal
	LockYears int
	StartDate time.Time
}

// CreditCommissionParams contains the parameters for paying a one-time
// referral commission. The (ReferrerId, ReferredAccountId) pair is unique;
// a second call for the same pair is rejected with ErrDuplicateCommission.
type CreditCommissionParams struct {
	ReferrerId        string
	ReferredAccountId string
	Amount            decimal.Decimal
	Percentage        decimal.Decimal
	Period            string // YYYY-MM
}

// CreateWithdrawalParams contains the parameters for a withdrawal request.
type CreateWithdrawalParams struct {
	AccountId          string
	TokenAmount        decimal.Decimal
	CashAmount         decimal.Decimal
	Network            string
	DestinationAddress string
	LockPeriodDays     int
	RequestedAt        time.Time
}

// FlagTransferParams records one suspicious or unmatched transfer in the
// admin audit queue.
type FlagTransferParams struct {
	Hash         string
	Direction    string
	Counterparty string
	Amount       decimal.Decimal
	Reason       string
	Severity     string
}

// LedgerStore defines the persistence contract the engines depend on.
type LedgerStore interface {
	// --- Accounts ---
	CreateAccount(ctx context.Context, params CreateAccountParams) (*models.Account, error)
	GetAccount(ctx context.Context, accountId string) (*models.Account, error)
	GetAccountByWallet(ctx context.Context, walletAddress string) (*models.Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (*models.Account, error)
	ActivateAccount(ctx context.Context, accountId string) error
	GetAccounts(ctx context.Context) ([]models.Account, error)

	// --- Account ledger mutations (each one atomic transaction) ---
	CreditPurchase(ctx context.Context, params CreditPurchaseParams) (*models.LedgerEntry, error)
	DebitForStake(ctx context.Context, accountId string, amount decimal.Decimal) error
	CreditFromStakeMaturity(ctx context.Context, accountId string, principal, rewards decimal.Decimal) error
	DebitForWithdrawal(ctx context.Context, requestId string, decidedAt time.Time) (*models.WithdrawalRequest, error)
	CreditCommission(ctx context.Context, params CreditCommissionParams) (*models.ReferralCommission, error)

	// --- Ledger entries ---
	GetEntryByExternalRef(ctx context.Context, externalRef string) (*models.LedgerEntry, error)
	GetEntries(ctx context.Context, accountId string, limit, offset int) ([]models.LedgerEntry, error)
	GetMostRecentEntryTime(ctx context.Context) (time.Time, error)

	// --- Supply ---
	GetSupplyCounter(ctx context.Context) (*models.SupplyCounter, error)
	ReserveSupply(ctx context.Context, amount decimal.Decimal) error
	ReleaseSupply(ctx context.Context, amount decimal.Decimal) error

	// --- Prices ---
	UpsertPrice(ctx context.Context, date string, price decimal.Decimal) error
	GetPriceAt(ctx context.Context, date string) (decimal.Decimal, error)
	GetLatestPrice(ctx context.Context) (decimal.Decimal, error)

	// --- Staking ---
	OpenStakingPosition(ctx context.Context, params OpenPositionParams) (*models.StakingPosition, error)
	GetStakingPosition(ctx context.Context, positionId string) (*models.StakingPosition, error)
	GetMaturedPositions(ctx context.Context, asOf time.Time) ([]models.StakingPosition, error)
	SettleMaturedPosition(ctx context.Context, positionId string, rewards decimal.Decimal) error
	CancelStakingPosition(ctx context.Context, positionId string, penalty decimal.Decimal) error

	// --- Withdrawals ---
	CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*models.WithdrawalRequest, error)
	GetWithdrawal(ctx context.Context, requestId string) (*models.WithdrawalRequest, error)
	GetWithdrawalsByStatus(ctx context.Context, status models.WithdrawalStatus) ([]models.WithdrawalRequest, error)
	RejectWithdrawal(ctx context.Context, requestId string, decidedAt time.Time) (*models.WithdrawalRequest, error)
	ConfirmWithdrawalTransfer(ctx context.Context, destinationAddress, externalRef string) (*models.WithdrawalRequest, error)

	// --- Referrals ---
	GetCommission(ctx context.Context, referrerId, referredAccountId string) (*models.ReferralCommission, error)

	// --- Settings ---
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// --- Flagged transfers ---
	FlagTransfer(ctx context.Context, params FlagTransferParams) error
	GetFlaggedTransfers(ctx context.Context, limit, offset int) ([]models.FlaggedTransfer, error)

	// --- Lifecycle ---
	Close()
}
