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

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(cfg.CreateDemoAccounts); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Ledger database initialized successfully")
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) initSchema(createDemoAccounts bool) error {
	schema := `
	-- Accounts: per-user balances. Invariant: total = staked + available.
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		wallet_address TEXT,
		total_tokens TEXT NOT NULL DEFAULT '0',
		staked_tokens TEXT NOT NULL DEFAULT '0',
		available_tokens TEXT NOT NULL DEFAULT '0',
		cash_balance TEXT NOT NULL DEFAULT '0',
		referral_earnings TEXT NOT NULL DEFAULT '0',
		is_active BOOLEAN NOT NULL DEFAULT 0,
		referral_code TEXT NOT NULL UNIQUE,
		referred_by TEXT REFERENCES accounts(id),
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_wallet
		ON accounts(LOWER(wallet_address)) WHERE wallet_address IS NOT NULL AND wallet_address != '';
	CREATE INDEX IF NOT EXISTS idx_accounts_referred_by ON accounts(referred_by);

	-- Ledger entries: append-only audit trail. external_ref is the
	-- blockchain hash and is unique when present; that index is the
	-- exactly-once mechanism for the reconciler.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		cash_amount TEXT NOT NULL DEFAULT '0',
		token_amount TEXT NOT NULL DEFAULT '0',
		price_per_token TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'completed',
		external_ref TEXT,
		request_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_external_ref
		ON ledger_entries(external_ref) WHERE external_ref IS NOT NULL AND external_ref != '';
	CREATE INDEX IF NOT EXISTS idx_entries_account ON ledger_entries(account_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_request ON ledger_entries(request_id);

	-- Daily token prices, append-only by date.
	CREATE TABLE IF NOT EXISTS price_entries (
		date TEXT PRIMARY KEY,
		price TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Single-row issued-vs-cap counter.
	CREATE TABLE IF NOT EXISTS supply_counter (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		total_supply_cap TEXT NOT NULL,
		tokens_issued TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS staking_positions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		apy TEXT NOT NULL,
		lock_years INTEGER NOT NULL,
		start_date TIMESTAMP NOT NULL,
		end_date TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		rewards_accrued TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_positions_due ON staking_positions(status, end_date);
	CREATE INDEX IF NOT EXISTS idx_positions_account ON staking_positions(account_id);

	CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		token_amount TEXT NOT NULL DEFAULT '0',
		cash_amount TEXT NOT NULL DEFAULT '0',
		network TEXT NOT NULL,
		destination_address TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		requested_at TIMESTAMP NOT NULL,
		lock_period_days INTEGER NOT NULL,
		decided_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawal_requests(status, requested_at);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_dest ON withdrawal_requests(destination_address);

	CREATE TABLE IF NOT EXISTS referral_commissions (
		id TEXT PRIMARY KEY,
		referrer_id TEXT NOT NULL,
		referred_account_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		percentage TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		period TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(referrer_id, referred_account_id)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Admin audit queue for transfers the reconciler refused to credit.
	CREATE TABLE IF NOT EXISTS flagged_transfers (
		id TEXT PRIMARY KEY,
		hash TEXT NOT NULL UNIQUE,
		direction TEXT NOT NULL,
		counterparty TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		severity TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Insert demo accounts for local testing if configured to do so
	if createDemoAccounts {
		accounts := []struct {
			id     string
			name   string
			email  string
			wallet string
		}{
			{uuid.New().String(), "Alice Johnson", "alice.johnson@example.com", "0xA11CE0000000000000000000000000000000001"},
			{uuid.New().String(), "Bob Smith", "bob.smith@example.com", "0xB0B00000000000000000000000000000000002"},
			{uuid.New().String(), "Carol Williams", "carol.williams@example.com", "0xCAR0L000000000000000000000000000000003"},
		}

		for _, a := range accounts {
			_, err := s.db.Exec(queryInsertAccount,
				a.id, a.name, a.email, a.wallet, uuid.New().String()[:8], nil)
			if err != nil {
				zap.L().Error("Failed to insert demo account", zap.String("name", a.name), zap.Error(err))
			} else {
				zap.L().Info("Demo account created", zap.String("id", a.id), zap.String("name", a.name))
			}
		}
	} else {
		zap.L().Info("Skipping demo account creation (CREATE_DEMO_ACCOUNTS=false)")
	}

	return nil
}
