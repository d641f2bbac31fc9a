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
	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/withdrawal"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func printRequest(request *models.WithdrawalRequest) {
	fmt.Printf("  %s  %-10s  %12s tokens  %10s cash  %s/%s  requested %s\n",
		request.Id,
		string(request.Status),
		request.TokenAmount.String(),
		request.CashAmount.String(),
		request.Network,
		request.DestinationAddress,
		request.RequestedAt.Format("2006-01-02"))
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	listFlag := flag.String("list", "", "List requests by status (pending|processing|rejected|completed)")
	requestFlag := flag.String("request", "", "Account id to create a withdrawal request for")
	amountFlag := flag.String("amount", "", "Token amount for --request")
	networkFlag := flag.String("network", "", "Network for --request")
	addressFlag := flag.String("address", "", "Destination address for --request")
	approveFlag := flag.String("approve", "", "Request id to approve")
	rejectFlag := flag.String("reject", "", "Request id to reject")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	networks, err := common.LoadNetworkConfig(cfg.Ledger.NetworksFile)
	if err != nil {
		zap.L().Fatal("Failed to load network config", zap.Error(err))
	}

	lifecycle := withdrawal.NewLifecycle(services.DbService, services.Notifier,
		cfg.Ledger.MinimumWithdrawal, cfg.Ledger.LockPeriodDays, networks)

	now := time.Now().UTC()

	switch {
	case *listFlag != "":
		requests, err := lifecycle.ByStatus(ctx, models.WithdrawalStatus(*listFlag))
		if err != nil {
			zap.L().Fatal("Failed to list withdrawal requests", zap.Error(err))
		}
		common.PrintHeader(fmt.Sprintf("WITHDRAWAL REQUESTS (%s)", *listFlag), common.DefaultWidth)
		for i := range requests {
			printRequest(&requests[i])
		}
		common.PrintFooter(fmt.Sprintf("%d requests", len(requests)), common.DefaultWidth)

	case *requestFlag != "":
		if *amountFlag == "" || *addressFlag == "" {
			zap.L().Fatal("--request needs --amount and --address")
		}
		amount, err := decimal.NewFromString(*amountFlag)
		if err != nil {
			zap.L().Fatal("Invalid amount", zap.String("amount", *amountFlag), zap.Error(err))
		}
		request, err := lifecycle.Request(ctx, withdrawal.RequestParams{
			AccountId:          *requestFlag,
			TokenAmount:        amount,
			Network:            *networkFlag,
			DestinationAddress: *addressFlag,
		})
		if err != nil {
			zap.L().Fatal("Failed to create withdrawal request", zap.Error(err))
		}
		fmt.Printf("Created request %s, eligible for review at %s\n",
			request.Id, request.EligibleAt().Format("2006-01-02"))

	case *approveFlag != "":
		request, err := lifecycle.Approve(ctx, *approveFlag, now)
		if err != nil {
			zap.L().Fatal("Failed to approve withdrawal", zap.Error(err))
		}
		fmt.Printf("Request %s is now %s\n", request.Id, request.Status)

	case *rejectFlag != "":
		request, err := lifecycle.Reject(ctx, *rejectFlag, now)
		if err != nil {
			zap.L().Fatal("Failed to reject withdrawal", zap.Error(err))
		}
		fmt.Printf("Request %s is now %s\n", request.Id, request.Status)

	default:
		flag.Usage()
	}
}
