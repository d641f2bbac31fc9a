package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tokensale-ledger-go/internal/models"
	"tokensale-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func scanPosition(row rowScanner) (*models.StakingPosition, error) {
	var p models.StakingPosition
	var amount, apy, rewards string

	err := row.Scan(&p.Id, &p.AccountId, &amount, &apy, &p.LockYears,
		&p.StartDate, &p.EndDate, &p.Status, &rewards, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	if p.Amount, err = parseDecimal(amount, "amount"); err != nil {
		return nil, err
	}
	if p.Apy, err = parseDecimal(apy, "apy"); err != nil {
		return nil, err
	}
	if p.RewardsAccrued, err = parseDecimal(rewards, "rewards_accrued"); err != nil {
		return nil, err
	}
	return &p, nil
}

// OpenStakingPosition debits the account's available balance and creates the
// position in one transaction, with a stake_create ledger entry.
func (s *Service) OpenStakingPosition(ctx context.Context, params store.OpenPositionParams) (*models.StakingPosition, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.debitForStakeTx(ctx, tx, params.AccountId, params.Amount); err != nil {
		return nil, err
	}

	position := &models.StakingPosition{
		Id:             uuid.New().String(),
		AccountId:      params.AccountId,
		Amount:         params.Amount,
		Apy:            params.Apy,
		LockYears:      params.LockYears,
		StartDate:      params.StartDate,
		EndDate:        params.StartDate.AddDate(params.LockYears, 0, 0),
		Status:         models.PositionStatusActive,
		RewardsAccrued: decimal.Zero,
	}

	_, err = tx.ExecContext(ctx, queryInsertPosition,
		position.Id, position.AccountId, position.Amount.String(), position.Apy.String(),
		position.LockYears, position.StartDate, position.EndDate, string(position.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to insert staking position: %w", err)
	}

	entry := &models.LedgerEntry{
		Id:          uuid.New().String(),
		AccountId:   params.AccountId,
		Kind:        models.EntryKindStakeCreate,
		TokenAmount: params.Amount,
		Status:      models.EntryStatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
	if err := insertEntryTx(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("failed to insert stake entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Staking position opened",
		zap.String("position_id", position.Id),
		zap.String("account_id", position.AccountId),
		zap.String("amount", position.Amount.String()),
		zap.Int("lock_years", position.LockYears),
		zap.Time("end_date", position.EndDate))
	return position, nil
}

func (s *Service) GetStakingPosition(ctx context.Context, positionId string) (*models.StakingPosition, error) {
	position, err := scanPosition(s.db.QueryRowContext(ctx, queryGetPosition, positionId))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("staking position not found: %s", positionId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staking position: %w", err)
	}
	return position, nil
}

// GetMaturedPositions returns active positions whose end date has passed.
func (s *Service) GetMaturedPositions(ctx context.Context, asOf time.Time) ([]models.StakingPosition, error) {
	rows, err := s.db.QueryContext(ctx, queryGetMaturedPositions, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query matured positions: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var positions []models.StakingPosition
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staking position: %w", err)
		}
		positions = append(positions, *position)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// SettleMaturedPosition marks the position completed and credits principal
// plus rewards back to the account in one transaction. The status guard on
// the update makes settlement idempotent: a position that is already
// completed returns ErrInvalidTransition and nothing changes.
func (s *Service) SettleMaturedPosition(ctx context.Context, positionId string, rewards decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	position, err := scanPosition(tx.QueryRowContext(ctx, queryGetPosition, positionId))
	if err == sql.ErrNoRows {
		return fmt.Errorf("staking position not found: %s", positionId)
	}
	if err != nil {
		return fmt.Errorf("failed to get staking position: %w", err)
	}
	if !position.Status.CanTransitionTo(models.PositionStatusCompleted) {
		return fmt.Errorf("%w: position %s is %s", store.ErrInvalidTransition, positionId, position.Status)
	}

	result, err := tx.ExecContext(ctx, querySettlePosition, rewards.String(), positionId)
	if err != nil {
		return fmt.Errorf("failed to settle position: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: position %s is %s", store.ErrInvalidTransition, positionId, position.Status)
	}

	if err := s.creditFromStakeMaturityTx(ctx, tx, position.AccountId, position.Amount, rewards); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Staking position matured",
		zap.String("position_id", positionId),
		zap.String("account_id", position.AccountId),
		zap.String("principal", position.Amount.String()),
		zap.String("rewards", rewards.String()))
	return nil
}

// CancelStakingPosition terminates a position early. The principal minus
// the penalty returns to available; the penalty is forfeited, so total
// shrinks by the penalty amount.
func (s *Service) CancelStakingPosition(ctx context.Context, positionId string, penalty decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	position, err := scanPosition(tx.QueryRowContext(ctx, queryGetPosition, positionId))
	if err == sql.ErrNoRows {
		return fmt.Errorf("staking position not found: %s", positionId)
	}
	if err != nil {
		return fmt.Errorf("failed to get staking position: %w", err)
	}
	if !position.Status.CanTransitionTo(models.PositionStatusCancelled) {
		return fmt.Errorf("%w: position %s is %s", store.ErrInvalidTransition, positionId, position.Status)
	}

	result, err := tx.ExecContext(ctx, queryCancelPosition, positionId)
	if err != nil {
		return fmt.Errorf("failed to cancel position: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: position %s is %s", store.ErrInvalidTransition, positionId, position.Status)
	}

	account, err := s.getAccountTx(ctx, tx, position.AccountId)
	if err != nil {
		return err
	}
	if account.StakedTokens.LessThan(position.Amount) {
		return fmt.Errorf("%w: staked %s, position %s",
			store.ErrInsufficientAvailable, account.StakedTokens.String(), position.Amount.String())
	}

	returned := position.Amount.Sub(penalty)
	account.StakedTokens = account.StakedTokens.Sub(position.Amount)
	account.AvailableTokens = account.AvailableTokens.Add(returned)
	account.TotalTokens = account.TotalTokens.Sub(penalty)

	if err := s.applyBalancesTx(ctx, tx, account); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Info("Staking position cancelled",
		zap.String("position_id", positionId),
		zap.String("account_id", position.AccountId),
		zap.String("returned", returned.String()),
		zap.String("penalty", penalty.String()))
	return nil
}
