package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transfer is one blockchain transfer as delivered by the external watcher.
// Delivery is at-least-once and unordered across hashes; the reconciler must
// tolerate duplicates and out-of-order arrival.
type Transfer struct {
	Hash        string          `json:"hash"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Value       decimal.Decimal `json:"value"` // cash value, e.g. USD
	BlockNumber uint64          `json:"block_number"`
	Timestamp   time.Time       `json:"timestamp"`
	Status      string          `json:"status"`
}

// ReconcileResult is the outcome of handling one transfer.
type ReconcileResult string

const (
	ReconcileProcessed ReconcileResult = "processed"
	ReconcileIgnored   ReconcileResult = "ignored"
	ReconcileFlagged   ReconcileResult = "flagged"
)
