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

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"tokensale-ledger-go/internal/common"
	"tokensale-ledger-go/internal/config"
	"tokensale-ledger-go/internal/database"
	"tokensale-ledger-go/internal/models"

	"go.uber.org/zap"
)

const recentEntryLimit = 5

func formatExternalRef(externalRef string) string {
	if externalRef == "" {
		return "none"
	}
	if len(externalRef) > 12 {
		return externalRef[:12] + "..."
	}
	return externalRef
}

func printAccountHeader(account models.Account) {
	status := "active"
	if !account.IsActive {
		status = "inactive"
	}
	fmt.Printf("\n┌─ Account: %s (%s, %s)\n", account.Name, account.Email, status)
	fmt.Printf("│  ID: %s\n", account.Id)
	fmt.Printf("│  Tokens: total %s = staked %s + available %s\n",
		account.TotalTokens.String(), account.StakedTokens.String(), account.AvailableTokens.String())
	fmt.Printf("│  Cash: %s  Referral earnings: %s\n",
		account.CashBalance.String(), account.ReferralEarnings.String())
}

func printEntries(entries []models.LedgerEntry) {
	for i, entry := range entries {
		prefix := common.BoxPrefix(i == len(entries)-1)
		fmt.Printf("%s %-20s %12s tokens %12s cash (%s, ref: %s, %s)\n",
			prefix,
			string(entry.Kind),
			entry.TokenAmount.String(),
			entry.CashAmount.String(),
			string(entry.Status),
			formatExternalRef(entry.ExternalRef),
			entry.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func processAccount(ctx context.Context, dbService *database.Service, account models.Account) error {
	entries, err := dbService.GetEntries(ctx, account.Id, recentEntryLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to get ledger entries: %w", err)
	}

	printAccountHeader(account)
	if len(entries) > 0 {
		printEntries(entries)
	} else {
		fmt.Println("└  no ledger entries")
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific account email (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	zap.L().Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	accounts, err := dbService.GetAccounts(ctx)
	if err != nil {
		zap.L().Fatal("Failed to get accounts", zap.Error(err))
	}

	if *emailFlag != "" {
		filtered := accounts[:0]
		for _, account := range accounts {
			if strings.EqualFold(account.Email, *emailFlag) {
				filtered = append(filtered, account)
			}
		}
		accounts = filtered
	}

	common.PrintHeader("ACCOUNT BALANCE REPORT", common.DefaultWidth)

	printed := 0
	for _, account := range accounts {
		if err := processAccount(ctx, dbService, account); err != nil {
			zap.L().Error("Failed to process account",
				zap.String("account_id", account.Id),
				zap.Error(err))
			continue
		}
		printed++
	}

	counter, err := dbService.GetSupplyCounter(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read supply counter", zap.Error(err))
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts | supply %s / %s issued",
		printed, counter.TokensIssued.String(), counter.TotalSupplyCap.String())
	common.PrintFooter(summary, common.DefaultWidth)

	zap.L().Info("Balance query completed", zap.Int("accounts", printed))
}
