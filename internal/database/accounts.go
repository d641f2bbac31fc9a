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

// dbtx is satisfied by both *sql.DB and *sql.Tx so scan helpers can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func parseDecimal(value, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s %q: %w", field, value, err)
	}
	return d, nil
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var wallet, referredBy sql.NullString
	var total, staked, available, cash, earnings string

	err := row.Scan(&a.Id, &a.Name, &a.Email, &wallet,
		&total, &staked, &available, &cash, &earnings,
		&a.IsActive, &a.ReferralCode, &referredBy,
		&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	a.WalletAddress = wallet.String
	a.ReferredBy = referredBy.String

	for _, f := range []struct {
		dst  *decimal.Decimal
		raw  string
		name string
	}{
		{&a.TotalTokens, total, "total_tokens"},
		{&a.StakedTokens, staked, "staked_tokens"},
		{&a.AvailableTokens, available, "available_tokens"},
		{&a.CashBalance, cash, "cash_balance"},
		{&a.ReferralEarnings, earnings, "referral_earnings"},
	} {
		d, err := parseDecimal(f.raw, f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = d
	}

	return &a, nil
}

func (s *Service) CreateAccount(ctx context.Context, params store.CreateAccountParams) (*models.Account, error) {
	var wallet, referredBy any
	if params.WalletAddress != "" {
		wallet = params.WalletAddress
	}
	if params.ReferredBy != "" {
		referredBy = params.ReferredBy
	}

	_, err := s.db.ExecContext(ctx, queryInsertAccount,
		params.Id, params.Name, params.Email, wallet, params.ReferralCode, referredBy)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	zap.L().Info("Account created",
		zap.String("account_id", params.Id),
		zap.String("email", params.Email),
		zap.String("referred_by", params.ReferredBy))

	return s.GetAccount(ctx, params.Id)
}

func (s *Service) GetAccount(ctx context.Context, accountId string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountById, accountId))
	if err == sql.ErrNoRows {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

func (s *Service) GetAccountByWallet(ctx context.Context, walletAddress string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountByWallet, walletAddress))
	if err == sql.ErrNoRows {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by wallet: %w", err)
	}
	return account, nil
}

func (s *Service) GetAccountByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx, queryGetAccountByReferralCode, code))
	if err == sql.ErrNoRows {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by referral code: %w", err)
	}
	return account, nil
}

func (s *Service) ActivateAccount(ctx context.Context, accountId string) error {
	result, err := s.db.ExecContext(ctx, queryActivateAccount, accountId)
	if err != nil {
		return fmt.Errorf("failed to activate account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrAccountNotFound
	}
	zap.L().Info("Account activated", zap.String("account_id", accountId))
	return nil
}

func (s *Service) GetAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAccounts)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}
	return accounts, nil
}

// getAccountTx loads an account inside a transaction for a version-guarded
// balance update.
func (s *Service) getAccountTx(ctx context.Context, tx dbtx, accountId string) (*models.Account, error) {
	account, err := scanAccount(tx.QueryRowContext(ctx, queryGetAccountById, accountId))
	if err == sql.ErrNoRows {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// applyBalancesTx writes the account's mutated balances back with an
// optimistic version check. Callers mutate the decimals on the loaded
// account and must not touch Version themselves.
func (s *Service) applyBalancesTx(ctx context.Context, tx dbtx, account *models.Account) error {
	result, err := tx.ExecContext(ctx, queryUpdateAccountBalances,
		account.TotalTokens.String(),
		account.StakedTokens.String(),
		account.AvailableTokens.String(),
		account.CashBalance.String(),
		account.ReferralEarnings.String(),
		account.Id, account.Version)
	if err != nil {
		return fmt.Errorf("failed to update balances: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}
	return nil
}
