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

package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/store"

	"go.uber.org/zap"
)

// TransferFeed abstracts how transfers arrive. The reconciler core never
// depends on the transport; swapping the polling watcher for a subscription
// feed changes nothing above this interface.
type TransferFeed interface {
	FetchTransfers(ctx context.Context, since time.Time) ([]models.Transfer, error)
}

// PollerConfig contains configuration for Poller.
type PollerConfig struct {
	Feed            TransferFeed
	Reconciler      *Reconciler
	DbService       store.LedgerStore
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// Poller drives the reconciler from a polling feed. It keeps an in-memory
// cache of recently handled hashes to avoid re-querying the database for
// every repeat delivery inside the lookback window; the database unique
// constraint remains the correctness mechanism.
type Poller struct {
	feed       TransferFeed
	reconciler *Reconciler
	dbService  store.LedgerStore

	processedHashes map[string]time.Time
	mutex           sync.RWMutex
	lookbackWindow  time.Duration
	pollingInterval time.Duration
	cleanupInterval time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewPoller(cfg PollerConfig) *Poller {
	return &Poller{
		feed:            cfg.Feed,
		reconciler:      cfg.Reconciler,
		dbService:       cfg.DbService,
		processedHashes: make(map[string]time.Time),
		lookbackWindow:  cfg.LookbackWindow,
		pollingInterval: cfg.PollingInterval,
		cleanupInterval: cfg.CleanupInterval,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start runs startup recovery, then launches the poll and cleanup loops.
func (p *Poller) Start(ctx context.Context) error {
	zap.L().Info("Starting transfer feed poller")

	if err := p.performStartupRecovery(ctx); err != nil {
		zap.L().Error("Startup recovery failed", zap.Error(err))
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	go p.pollLoop(ctx)
	go p.cleanupLoop(ctx)

	zap.L().Info("Transfer feed poller started",
		zap.Duration("polling_interval", p.pollingInterval),
		zap.Duration("lookback_window", p.lookbackWindow))
	return nil
}

// Stop gracefully stops the poller.
func (p *Poller) Stop() {
	zap.L().Info("Stopping transfer feed poller")
	close(p.stopChan)
	<-p.doneChan
	zap.L().Info("Transfer feed poller stopped")
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer close(p.doneChan)

	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	p.pollOnce(ctx)

	for {
		select {
		case <-ticker.C:
			p.pollOnce(ctx)
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	since := time.Now().UTC().Add(-p.lookbackWindow)

	transfers, err := p.feed.FetchTransfers(ctx, since)
	if err != nil {
		zap.L().Error("Failed to fetch transfers", zap.Error(err))
		return
	}

	newCount := 0
	for _, transfer := range transfers {
		if p.isHashProcessed(transfer.Hash) {
			continue
		}
		newCount++

		result, err := p.reconciler.HandleTransfer(ctx, transfer)
		if err != nil {
			zap.L().Error("Failed to handle transfer",
				zap.String("hash", transfer.Hash),
				zap.Error(err))
			continue
		}
		p.markHashProcessed(transfer.Hash)

		zap.L().Debug("Transfer handled",
			zap.String("hash", transfer.Hash),
			zap.String("result", string(result)))
	}

	if newCount == 0 && len(transfers) > 0 {
		zap.L().Debug("All fetched transfers already handled",
			zap.Int("total", len(transfers)))
	}
}

// performStartupRecovery replays the feed from the older of the most recent
// reconciled entry and the lookback horizon, so transfers delivered during
// downtime are not missed. Repeats are harmless.
func (p *Poller) performStartupRecovery(ctx context.Context) error {
	zap.L().Info("Starting startup recovery process")

	mostRecentTime, err := p.dbService.GetMostRecentEntryTime(ctx)
	if err != nil {
		return fmt.Errorf("failed to get most recent entry time: %w", err)
	}

	now := time.Now().UTC()
	recoveryStart := now.Add(-p.lookbackWindow)
	if mostRecentTime.Before(recoveryStart) {
		recoveryStart = mostRecentTime
	}

	zap.L().Info("Recovery window calculated",
		zap.Time("most_recent_entry", mostRecentTime),
		zap.Time("recovery_start", recoveryStart),
		zap.Duration("lookback_window", p.lookbackWindow))

	transfers, err := p.feed.FetchTransfers(ctx, recoveryStart)
	if err != nil {
		return fmt.Errorf("failed to fetch transfers during recovery: %w", err)
	}

	var recovered int
	for _, transfer := range transfers {
		result, err := p.reconciler.HandleTransfer(ctx, transfer)
		if err != nil {
			zap.L().Error("Failed to recover transfer",
				zap.String("hash", transfer.Hash),
				zap.Error(err))
			continue
		}
		p.markHashProcessed(transfer.Hash)
		if result == models.ReconcileProcessed {
			recovered++
		}
	}

	zap.L().Info("Startup recovery completed",
		zap.Int("transfers_seen", len(transfers)),
		zap.Int("transfers_processed", recovered))
	return nil
}

func (p *Poller) isHashProcessed(hash string) bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	_, exists := p.processedHashes[hash]
	return exists
}

func (p *Poller) markHashProcessed(hash string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.processedHashes[hash] = time.Now()
}

func (p *Poller) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.cleanupProcessedHashes()
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupProcessedHashes drops cache entries older than the lookback window;
// the feed will not redeliver them, and if it does the database catches it.
func (p *Poller) cleanupProcessedHashes() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	cutoff := time.Now().UTC().Add(-p.lookbackWindow)
	cleaned := 0

	for hash, processedTime := range p.processedHashes {
		if processedTime.Before(cutoff) {
			delete(p.processedHashes, hash)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up processed transfer hashes",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(p.processedHashes)))
	}
}
