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
	"os"
	"os/signal"
	"syscall"
	"time"

	"tokensale-ledger-go/internal/common"
	"tokensale-ledger-go/internal/config"
	"tokensale-ledger-go/internal/ledger"
	"tokensale-ledger-go/internal/pricing"
	"tokensale-ledger-go/internal/reconciler"
	"tokensale-ledger-go/internal/referral"
	"tokensale-ledger-go/internal/staking"
	"tokensale-ledger-go/internal/supply"
	"tokensale-ledger-go/internal/withdrawal"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting token ledger engine")

	if cfg.Ledger.CompanyWallet == "" {
		zap.L().Fatal("LEDGER_COMPANY_WALLET must be set")
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

	db := services.DbService
	notifier := services.Notifier

	oracle := pricing.NewOracle(db, cfg.Ledger.FallbackPrice)
	supplyLedger := supply.NewLedger(db)
	referrals := referral.NewEngine(db, notifier, cfg.Ledger.CommissionRate)
	ledgerService := ledger.NewService(db, oracle, supplyLedger, referrals, notifier)
	stakingEngine := staking.NewEngine(db, supplyLedger, notifier, cfg.Ledger.CancelPenaltyRate)
	withdrawals := withdrawal.NewLifecycle(db, notifier,
		cfg.Ledger.MinimumWithdrawal, cfg.Ledger.LockPeriodDays, networks)

	rec := reconciler.New(reconciler.Config{
		DbService:           db,
		LedgerService:       ledgerService,
		Withdrawals:         withdrawals,
		Notifier:            notifier,
		CompanyWallet:       cfg.Ledger.CompanyWallet,
		SuspiciousThreshold: cfg.Ledger.SuspiciousThreshold,
	})

	feed := reconciler.NewWatcherFeed(cfg.Feed.WatcherURL, 30*time.Second)
	poller := reconciler.NewPoller(reconciler.PollerConfig{
		Feed:            feed,
		Reconciler:      rec,
		DbService:       db,
		LookbackWindow:  cfg.Feed.LookbackWindow,
		PollingInterval: cfg.Feed.PollingInterval,
		CleanupInterval: cfg.Feed.CleanupInterval,
	})

	if err := poller.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start transfer feed poller", zap.Error(err))
	}

	sweeper := cron.New()
	_, err = sweeper.AddFunc(cfg.Ledger.MaturitySchedule, func() {
		if _, err := stakingEngine.MatureAll(ctx, time.Now().UTC()); err != nil {
			zap.L().Error("Maturity sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		zap.L().Fatal("Invalid maturity schedule",
			zap.String("schedule", cfg.Ledger.MaturitySchedule), zap.Error(err))
	}
	sweeper.Start()

	zap.L().Info("Engine running",
		zap.String("company_wallet", cfg.Ledger.CompanyWallet),
		zap.String("maturity_schedule", cfg.Ledger.MaturitySchedule),
		zap.String("watcher_url", cfg.Feed.WatcherURL))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		cronCtx := sweeper.Stop()
		<-cronCtx.Done()
		poller.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Engine stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
