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
	"fmt"

	"tokensale-ledger-go/internal/common"
	"tokensale-ledger-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	zap.L().Info("Starting ledger setup")

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	// NewService creates the full schema on first run; InitializeServices
	// also seeds the supply counter with the configured cap.
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	counter, err := services.DbService.GetSupplyCounter(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read supply counter", zap.Error(err))
	}

	accounts, err := services.DbService.GetAccounts(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read accounts", zap.Error(err))
	}

	common.PrintHeader("LEDGER SETUP COMPLETE", common.DefaultWidth)
	fmt.Printf("Database:         %s\n", cfg.Database.Path)
	fmt.Printf("Total supply cap: %s\n", counter.TotalSupplyCap.String())
	fmt.Printf("Tokens issued:    %s\n", counter.TokensIssued.String())
	fmt.Printf("Accounts:         %d\n", len(accounts))
	fmt.Printf("Lock period:      %d days\n", cfg.Ledger.LockPeriodDays)
	fmt.Printf("Commission rate:  %s\n", cfg.Ledger.CommissionRate.String())
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("Setup completed",
		zap.String("database", cfg.Database.Path),
		zap.Int("accounts", len(accounts)))
}
