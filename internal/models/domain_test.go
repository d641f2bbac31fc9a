package models

import (
	"testing"
	"time"
)

func TestEntryStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    EntryStatus
		to      EntryStatus
		allowed bool
	}{
		{EntryStatusPending, EntryStatusCompleted, true},
		{EntryStatusPending, EntryStatusFailed, true},
		{EntryStatusCompleted, EntryStatusPending, false},
		{EntryStatusCompleted, EntryStatusFailed, false},
		{EntryStatusFailed, EntryStatusCompleted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: got %t, want %t", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestPositionStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    PositionStatus
		to      PositionStatus
		allowed bool
	}{
		{PositionStatusActive, PositionStatusCompleted, true},
		{PositionStatusActive, PositionStatusCancelled, true},
		{PositionStatusCompleted, PositionStatusCancelled, false},
		{PositionStatusCompleted, PositionStatusActive, false},
		{PositionStatusCancelled, PositionStatusCompleted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: got %t, want %t", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestWithdrawalStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    WithdrawalStatus
		to      WithdrawalStatus
		allowed bool
	}{
		{WithdrawalStatusPending, WithdrawalStatusApproved, true},
		{WithdrawalStatusPending, WithdrawalStatusRejected, true},
		{WithdrawalStatusPending, WithdrawalStatusProcessing, false},
		{WithdrawalStatusPending, WithdrawalStatusCompleted, false},
		{WithdrawalStatusApproved, WithdrawalStatusProcessing, true},
		{WithdrawalStatusApproved, WithdrawalStatusRejected, false},
		{WithdrawalStatusProcessing, WithdrawalStatusCompleted, true},
		{WithdrawalStatusProcessing, WithdrawalStatusRejected, false},
		{WithdrawalStatusCompleted, WithdrawalStatusProcessing, false},
		{WithdrawalStatusRejected, WithdrawalStatusApproved, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: got %t, want %t", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestWithdrawalStatusTerminal(t *testing.T) {
	terminal := map[WithdrawalStatus]bool{
		WithdrawalStatusPending:    false,
		WithdrawalStatusApproved:   false,
		WithdrawalStatusProcessing: false,
		WithdrawalStatusCompleted:  true,
		WithdrawalStatusRejected:   true,
	}

	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal(): got %t, want %t", status, got, want)
		}
	}
}

func TestWithdrawalRequestEligibleAt(t *testing.T) {
	requestedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	request := &WithdrawalRequest{RequestedAt: requestedAt, LockPeriodDays: 30}

	want := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	if got := request.EligibleAt(); !got.Equal(want) {
		t.Errorf("EligibleAt: got %s, want %s", got, want)
	}
}
