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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"tokensale-ledger-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	lookbackWindow, err := getEnvDuration("FEED_LOOKBACK_WINDOW", 6*time.Hour)
	if err != nil {
		return nil, err
	}

	pollingInterval, err := getEnvDuration("FEED_POLLING_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cleanupInterval, err := getEnvDuration("FEED_CLEANUP_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	totalSupplyCap, err := getEnvDecimal("LEDGER_TOTAL_SUPPLY_CAP", "50000000")
	if err != nil {
		return nil, err
	}

	fallbackPrice, err := getEnvDecimal("LEDGER_FALLBACK_PRICE", "1")
	if err != nil {
		return nil, err
	}

	minimumWithdrawal, err := getEnvDecimal("LEDGER_MINIMUM_WITHDRAWAL", "10")
	if err != nil {
		return nil, err
	}

	commissionRate, err := getEnvDecimal("LEDGER_COMMISSION_RATE", "0.05")
	if err != nil {
		return nil, err
	}

	suspiciousThreshold, err := getEnvDecimal("LEDGER_SUSPICIOUS_THRESHOLD", "10000")
	if err != nil {
		return nil, err
	}

	cancelPenaltyRate, err := getEnvDecimal("LEDGER_CANCEL_PENALTY_RATE", "0.1")
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:               getEnvString("DATABASE_PATH", "ledger.db"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:    connMaxLifetime,
			ConnMaxIdleTime:    connMaxIdleTime,
			PingTimeout:        pingTimeout,
			CreateDemoAccounts: getEnvBool("CREATE_DEMO_ACCOUNTS", false),
		},
		Feed: models.FeedConfig{
			LookbackWindow:  lookbackWindow,
			PollingInterval: pollingInterval,
			CleanupInterval: cleanupInterval,
			WatcherURL:      getEnvString("FEED_WATCHER_URL", "http://localhost:8585/transfers"),
		},
		Ledger: models.LedgerConfig{
			CompanyWallet:       getEnvString("LEDGER_COMPANY_WALLET", ""),
			TotalSupplyCap:      totalSupplyCap,
			FallbackPrice:       fallbackPrice,
			MinimumWithdrawal:   minimumWithdrawal,
			LockPeriodDays:      getEnvInt("LEDGER_LOCK_PERIOD_DAYS", 30),
			CommissionRate:      commissionRate,
			SuspiciousThreshold: suspiciousThreshold,
			CancelPenaltyRate:   cancelPenaltyRate,
			MaturitySchedule:    getEnvString("LEDGER_MATURITY_SCHEDULE", "@hourly"),
			NetworksFile:        getEnvString("LEDGER_NETWORKS_FILE", "networks.yaml"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
	}
	return d, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
