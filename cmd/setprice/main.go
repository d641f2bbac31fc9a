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
	"time"

	"tokensale-ledger-go/internal/common"
	"tokensale-ledger-go/internal/config"
	"tokensale-ledger-go/internal/pricing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	dateFlag := flag.String("date", "", "Price date YYYY-MM-DD (default: today)")
	priceFlag := flag.String("price", "", "Token price (required)")
	flag.Parse()

	if *priceFlag == "" {
		zap.L().Fatal("--price is required")
	}
	price, err := decimal.NewFromString(*priceFlag)
	if err != nil {
		zap.L().Fatal("Invalid price", zap.String("price", *priceFlag), zap.Error(err))
	}

	date := time.Now().UTC()
	if *dateFlag != "" {
		date, err = time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			zap.L().Fatal("Invalid date", zap.String("date", *dateFlag), zap.Error(err))
		}
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	oracle := pricing.NewOracle(dbService, cfg.Ledger.FallbackPrice)
	if err := oracle.SetPrice(ctx, date, price); err != nil {
		zap.L().Fatal("Failed to set price", zap.Error(err))
	}

	current, err := oracle.CurrentPrice(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read back current price", zap.Error(err))
	}

	fmt.Printf("Price for %s set to %s (current price: %s)\n",
		date.Format("2006-01-02"), price.String(), current.String())
}
