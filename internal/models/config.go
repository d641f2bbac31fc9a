package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Feed     FeedConfig
	Ledger   LedgerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path               string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	PingTimeout        time.Duration
	CreateDemoAccounts bool
}

// FeedConfig holds transfer feed poller settings
type FeedConfig struct {
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
	WatcherURL      string
}

// LedgerConfig holds the ledger policy knobs. These replace the ambient
// global settings of the legacy system: every engine receives them at
// construction.
type LedgerConfig struct {
	CompanyWallet       string
	TotalSupplyCap      decimal.Decimal
	FallbackPrice       decimal.Decimal
	MinimumWithdrawal   decimal.Decimal
	LockPeriodDays      int
	CommissionRate      decimal.Decimal // default; runtime value lives in the settings row
	SuspiciousThreshold decimal.Decimal
	CancelPenaltyRate   decimal.Decimal
	MaturitySchedule    string // cron spec for the staking maturity sweep
	NetworksFile        string
}
