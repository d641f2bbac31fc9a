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

const (
	// Account queries
	queryInsertAccount = `
		INSERT INTO accounts (id, name, email, wallet_address, referral_code, referred_by)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryAccountColumns = `
		id, name, email, wallet_address, total_tokens, staked_tokens, available_tokens,
		cash_balance, referral_earnings, is_active, referral_code, referred_by,
		version, created_at, updated_at`

	queryGetAccountById = `
		SELECT ` + queryAccountColumns + `
		FROM accounts
		WHERE id = ?`

	queryGetAccountByWallet = `
		SELECT ` + queryAccountColumns + `
		FROM accounts
		WHERE LOWER(wallet_address) = LOWER(?)`

	queryGetAccountByReferralCode = `
		SELECT ` + queryAccountColumns + `
		FROM accounts
		WHERE referral_code = ?`

	queryGetAccounts = `
		SELECT ` + queryAccountColumns + `
		FROM accounts
		ORDER BY created_at`

	queryActivateAccount = `
		UPDATE accounts
		SET is_active = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`

	queryUpdateAccountBalances = `
		UPDATE accounts
		SET total_tokens = ?, staked_tokens = ?, available_tokens = ?,
		    cash_balance = ?, referral_earnings = ?,
		    version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND version = ?`

	// Ledger entry queries
	queryInsertEntry = `
		INSERT INTO ledger_entries (
			id, account_id, kind, cash_amount, token_amount, price_per_token,
			status, external_ref, request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryEntryColumns = `
		id, account_id, kind, cash_amount, token_amount, price_per_token,
		status, COALESCE(external_ref, ''), COALESCE(request_id, ''), created_at`

	queryGetEntryByExternalRef = `
		SELECT ` + queryEntryColumns + `
		FROM ledger_entries
		WHERE external_ref = ?
		LIMIT 1`

	queryGetEntries = `
		SELECT ` + queryEntryColumns + `
		FROM ledger_entries
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryGetEntryForRequest = `
		SELECT ` + queryEntryColumns + `
		FROM ledger_entries
		WHERE request_id = ?
		LIMIT 1`

	queryCompleteEntryForRequest = `
		UPDATE ledger_entries
		SET status = 'completed', external_ref = ?
		WHERE request_id = ? AND status = 'pending'`

	queryGetMostRecentEntryTime = `
		SELECT MAX(created_at)
		FROM ledger_entries
		WHERE external_ref IS NOT NULL AND external_ref != ''`

	// Supply queries
	queryGetSupplyCounter = `
		SELECT total_supply_cap, tokens_issued
		FROM supply_counter
		WHERE id = 1`

	queryEnsureSupplyCounter = `
		INSERT OR IGNORE INTO supply_counter (id, total_supply_cap, tokens_issued)
		VALUES (1, ?, '0')`

	queryUpdateSupplyCap = `
		UPDATE supply_counter SET total_supply_cap = ? WHERE id = 1`

	// Optimistic guard on the previous issued value makes the cap check and
	// the increment one atomic step.
	queryUpdateTokensIssued = `
		UPDATE supply_counter
		SET tokens_issued = ?
		WHERE id = 1 AND tokens_issued = ?`

	// Price queries
	queryUpsertPrice = `
		INSERT INTO price_entries (date, price)
		VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET price = excluded.price, updated_at = CURRENT_TIMESTAMP`

	queryGetPriceAt = `
		SELECT price
		FROM price_entries
		WHERE date <= ?
		ORDER BY date DESC
		LIMIT 1`

	queryGetLatestPrice = `
		SELECT price
		FROM price_entries
		ORDER BY date DESC
		LIMIT 1`

	// Staking queries
	queryInsertPosition = `
		INSERT INTO staking_positions (
			id, account_id, amount, apy, lock_years, start_date, end_date, status, rewards_accrued
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '0')`

	queryPositionColumns = `
		id, account_id, amount, apy, lock_years, start_date, end_date, status, rewards_accrued, created_at`

	queryGetPosition = `
		SELECT ` + queryPositionColumns + `
		FROM staking_positions
		WHERE id = ?`

	queryGetMaturedPositions = `
		SELECT ` + queryPositionColumns + `
		FROM staking_positions
		WHERE status = 'active' AND end_date <= ?
		ORDER BY end_date`

	// Status guard makes settlement idempotent per position.
	querySettlePosition = `
		UPDATE staking_positions
		SET status = 'completed', rewards_accrued = ?
		WHERE id = ? AND status = 'active'`

	queryCancelPosition = `
		UPDATE staking_positions
		SET status = 'cancelled'
		WHERE id = ? AND status = 'active'`

	// Withdrawal queries
	queryInsertWithdrawal = `
		INSERT INTO withdrawal_requests (
			id, account_id, token_amount, cash_amount, network, destination_address,
			status, requested_at, lock_period_days
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryWithdrawalColumns = `
		id, account_id, token_amount, cash_amount, network, destination_address,
		status, requested_at, lock_period_days, decided_at`

	queryGetWithdrawal = `
		SELECT ` + queryWithdrawalColumns + `
		FROM withdrawal_requests
		WHERE id = ?`

	queryGetWithdrawalsByStatus = `
		SELECT ` + queryWithdrawalColumns + `
		FROM withdrawal_requests
		WHERE status = ?
		ORDER BY requested_at`

	queryFindProcessingWithdrawal = `
		SELECT ` + queryWithdrawalColumns + `
		FROM withdrawal_requests
		WHERE status = 'processing'
		  AND LOWER(destination_address) = LOWER(?)
		ORDER BY requested_at
		LIMIT 1`

	queryTransitionWithdrawal = `
		UPDATE withdrawal_requests
		SET status = ?, decided_at = ?
		WHERE id = ? AND status = ?`

	queryCompleteWithdrawal = `
		UPDATE withdrawal_requests
		SET status = 'completed'
		WHERE id = ? AND status = 'processing'`

	// Referral queries
	queryInsertCommission = `
		INSERT INTO referral_commissions (
			id, referrer_id, referred_account_id, amount, percentage, status, period
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(referrer_id, referred_account_id) DO NOTHING`

	queryGetCommission = `
		SELECT id, referrer_id, referred_account_id, amount, percentage, status, period, created_at
		FROM referral_commissions
		WHERE referrer_id = ? AND referred_account_id = ?`

	// Settings queries
	queryGetSetting = `
		SELECT value FROM settings WHERE key = ?`

	querySetSetting = `
		INSERT INTO settings (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

	// Flagged transfer queries
	queryInsertFlaggedTransfer = `
		INSERT OR IGNORE INTO flagged_transfers (id, hash, direction, counterparty, amount, reason, severity)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetFlaggedTransfers = `
		SELECT id, hash, direction, counterparty, amount, reason, severity, created_at
		FROM flagged_transfers
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`
)
