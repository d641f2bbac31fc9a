package database

import (
	"context"
	"database/sql"
	"fmt"

	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GetSetting returns the stored value for a key, or empty string when the
// key has never been set. Callers fall back to their configured default.
func (s *Service) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, queryGetSetting, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

func (s *Service) SetSetting(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, querySetSetting, key, value); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	zap.L().Info("Setting updated", zap.String("key", key), zap.String("value", value))
	return nil
}

func scanCommission(row rowScanner) (*models.ReferralCommission, error) {
	var c models.ReferralCommission
	var amount, percentage string

	err := row.Scan(&c.Id, &c.ReferrerId, &c.ReferredAccountId, &amount, &percentage,
		&c.Status, &c.Period, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	if c.Amount, err = parseDecimal(amount, "amount"); err != nil {
		return nil, err
	}
	if c.Percentage, err = parseDecimal(percentage, "percentage"); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCommission returns the commission recorded for a referral pair, or
// (nil, nil) when none exists yet.
func (s *Service) GetCommission(ctx context.Context, referrerId, referredAccountId string) (*models.ReferralCommission, error) {
	commission, err := scanCommission(s.db.QueryRowContext(ctx, queryGetCommission, referrerId, referredAccountId))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commission: %w", err)
	}
	return commission, nil
}

// FlagTransfer records a transfer in the admin audit queue. Flagging the
// same hash twice is a silent no-op.
func (s *Service) FlagTransfer(ctx context.Context, params store.FlagTransferParams) error {
	_, err := s.db.ExecContext(ctx, queryInsertFlaggedTransfer,
		uuid.New().String(), params.Hash, params.Direction, params.Counterparty,
		params.Amount.String(), params.Reason, params.Severity)
	if err != nil {
		return fmt.Errorf("failed to flag transfer: %w", err)
	}

	zap.L().Warn("Transfer flagged for review",
		zap.String("hash", params.Hash),
		zap.String("direction", params.Direction),
		zap.String("counterparty", params.Counterparty),
		zap.String("amount", params.Amount.String()),
		zap.String("reason", params.Reason),
		zap.String("severity", params.Severity))
	return nil
}

func (s *Service) GetFlaggedTransfers(ctx context.Context, limit, offset int) ([]models.FlaggedTransfer, error) {
	rows, err := s.db.QueryContext(ctx, queryGetFlaggedTransfers, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query flagged transfers: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var flagged []models.FlaggedTransfer
	for rows.Next() {
		var f models.FlaggedTransfer
		var amount string
		if err := rows.Scan(&f.Id, &f.Hash, &f.Direction, &f.Counterparty, &amount, &f.Reason, &f.Severity, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flagged transfer: %w", err)
		}
		if f.Amount, err = parseDecimal(amount, "amount"); err != nil {
			return nil, err
		}
		flagged = append(flagged, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flagged transfer rows: %w", err)
	}
	return flagged, nil
}
