package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/observer"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/tenant"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// --- Deal / Stage / Transfer Repository Methods ---

// FindStageByName resolves a pipeline stage by its tenant-scoped name.
// Matching is case-insensitive because stage names arrive from free-form
// model output.
func (r *PostgresRepo) FindStageByName(ctx context.Context, name string) (*model.Stage, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var stage model.Stage
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("account_id = ? AND LOWER(name) = LOWER(?)", accountID, name).
			First(&stage)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: stage %q: %w", apperrors.ErrNotFound, name, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindStageByName", operation)
	observer.ObserveDbOperationDuration("find_by_name", "stage", accountID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find stage by name after retries",
			zap.String("stage_name", name),
			zap.Error(findErr))
		return nil, findErr
	}
	return &stage, nil
}

// FindOrCreateOpenDeal returns the contact's open deal, creating one in the
// given stage when absent. The partial unique index on (account_id,
// contact_id) WHERE status='open' arbitrates concurrent creates.
func (r *PostgresRepo) FindOrCreateOpenDeal(ctx context.Context, contactID, stageID string) (*model.Deal, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	findOpen := func() (*model.Deal, error) {
		var deal model.Deal
		operation := func() error {
			result := r.db.WithContext(ctx).
				Where("account_id = ? AND contact_id = ? AND status = ?", accountID, contactID, model.DealOpen).
				First(&deal)
			if result.Error != nil {
				if errors.Is(result.Error, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: open deal for contact %s: %w", apperrors.ErrNotFound, contactID, result.Error)
				}
				return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
			}
			return nil
		}
		readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
		if findErr := retryableOperation(ctx, readPolicy, "FindOpenDeal", operation); findErr != nil {
			return nil, findErr
		}
		return &deal, nil
	}

	startTime := utils.Now()
	existing, findErr := findOpen()
	if findErr == nil {
		observer.ObserveDbOperationDuration("find_or_create_open", "deal", accountID, time.Since(startTime), nil)
		return existing, nil
	}
	if !errors.Is(findErr, apperrors.ErrNotFound) {
		observer.ObserveDbOperationDuration("find_or_create_open", "deal", accountID, time.Since(startTime), findErr)
		return nil, findErr
	}

	deal := model.Deal{
		ID:        uuid.NewString(),
		AccountID: accountID,
		ContactID: contactID,
		StageID:   stageID,
		Status:    model.DealOpen,
	}
	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&deal).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		history := model.DealHistory{
			DealID:    deal.ID,
			ToStageID: stageID,
			MovedBy:   "ai",
		}
		if histErr := r.db.WithContext(ctx).Create(&history).Error; histErr != nil {
			return checkConstraintViolation(histErr)
		}
		return nil
	}
	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	createErr := retryableOperation(ctx, commitPolicy, "CreateOpenDeal", operation)
	observer.ObserveDbOperationDuration("find_or_create_open", "deal", accountID, time.Since(startTime), createErr)
	if createErr != nil {
		if errors.Is(createErr, apperrors.ErrDuplicate) {
			return findOpen()
		}
		logger.FromContext(ctx).Error("Failed to create deal after retries", zap.Error(createErr))
		return nil, createErr
	}
	return &deal, nil
}

// MoveDealStage updates the deal's stage and appends a history row.
func (r *PostgresRepo) MoveDealStage(ctx context.Context, dealID, toStageID, movedBy string) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if rec := recover(); rec != nil {
				tx.Rollback()
				panic(rec)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.FromContext(ctx).Error("Failed to rollback transaction after error",
						zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		var deal model.Deal
		if findErr := tx.Where("id = ? AND account_id = ?", dealID, accountID).First(&deal).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				txErr = fmt.Errorf("%w: deal_id %s: %w", apperrors.ErrNotFound, dealID, findErr)
			} else {
				txErr = fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, findErr)
			}
			return txErr
		}
		if deal.StageID == toStageID {
			// Already there, nothing to record.
			if commitErr := tx.Commit().Error; commitErr != nil {
				txErr = fmt.Errorf("%w: failed to commit: %w", apperrors.ErrDatabase, commitErr)
				return txErr
			}
			return nil
		}

		fromStage := deal.StageID
		if updErr := tx.Model(&deal).Updates(map[string]interface{}{
			"stage_id":   toStageID,
			"updated_at": utils.Now(),
		}).Error; updErr != nil {
			txErr = checkConstraintViolation(updErr)
			return txErr
		}
		history := model.DealHistory{
			DealID:      dealID,
			FromStageID: &fromStage,
			ToStageID:   toStageID,
			MovedBy:     movedBy,
		}
		if histErr := tx.Create(&history).Error; histErr != nil {
			txErr = checkConstraintViolation(histErr)
			return txErr
		}
		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = fmt.Errorf("%w: failed to commit stage move: %w", apperrors.ErrDatabase, commitErr)
			return txErr
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MoveDealStage", operation)
	observer.ObserveDbOperationDuration("move_stage", "deal", accountID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to move deal stage after retries",
			zap.String("deal_id", dealID),
			zap.String("to_stage_id", toStageID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// SaveTransfer appends a transfer audit row.
func (r *PostgresRepo) SaveTransfer(ctx context.Context, transfer model.Transfer) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if transfer.AccountID == "" {
		transfer.AccountID = accountID
	}
	if transfer.AccountID != accountID {
		return fmt.Errorf("%w: transfer AccountID %s does not match tenant ID %s", apperrors.ErrBadRequest, transfer.AccountID, accountID)
	}

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&transfer).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveTransfer", operation)
	observer.ObserveDbOperationDuration("save", "transfer", accountID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save transfer after retries",
			zap.String("conversation_id", transfer.ConversationID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
