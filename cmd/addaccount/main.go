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
	"regexp"
	"strings"

	"tokensale-ledger-go/internal/common"
	"tokensale-ledger-go/internal/config"
	"tokensale-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	nameFlag := flag.String("name", "", "Account holder's full name (required)")
	emailFlag := flag.String("email", "", "Account holder's email address (required)")
	walletFlag := flag.String("wallet", "", "Registered blockchain wallet address (optional)")
	referredByFlag := flag.String("referred-by", "", "Referral code of the referring account (optional)")
	activateFlag := flag.Bool("activate", false, "Activate the account immediately")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
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

	var referrerId string
	if *referredByFlag != "" {
		referrer, err := dbService.GetAccountByReferralCode(ctx, *referredByFlag)
		if err != nil {
			zap.L().Fatal("Referral code does not match any account",
				zap.String("referral_code", *referredByFlag), zap.Error(err))
		}
		referrerId = referrer.Id
	}

	accountId := uuid.New().String()
	referralCode := strings.ToUpper(strings.Split(uuid.New().String(), "-")[0])

	account, err := dbService.CreateAccount(ctx, store.CreateAccountParams{
		Id:            accountId,
		Name:          *nameFlag,
		Email:         *emailFlag,
		WalletAddress: *walletFlag,
		ReferralCode:  referralCode,
		ReferredBy:    referrerId,
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			zap.L().Fatal("Account already exists with this email or wallet",
				zap.String("email", *emailFlag))
		}
		zap.L().Fatal("Failed to create account", zap.Error(err))
	}

	if *activateFlag {
		if err := dbService.ActivateAccount(ctx, account.Id); err != nil {
			zap.L().Fatal("Failed to activate account", zap.Error(err))
		}
		account.IsActive = true
	}

	common.PrintHeader("ACCOUNT CREATED", common.DefaultWidth)
	fmt.Printf("ID:            %s\n", account.Id)
	fmt.Printf("Name:          %s\n", account.Name)
	fmt.Printf("Email:         %s\n", account.Email)
	if account.WalletAddress != "" {
		fmt.Printf("Wallet:        %s\n", account.WalletAddress)
	}
	fmt.Printf("Referral code: %s\n", account.ReferralCode)
	if referrerId != "" {
		fmt.Printf("Referred by:   %s\n", referrerId)
	}
	fmt.Printf("Active:        %t\n", account.IsActive)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	if !account.IsActive {
		fmt.Println("Account is inactive: deposits to its wallet will be flagged until activation.")
	}

	zap.L().Info("Account created successfully", zap.String("id", account.Id))
}
