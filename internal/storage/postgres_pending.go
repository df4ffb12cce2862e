package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/observer"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/tenant"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// --- Pending Response Repository Methods ---

// UpsertPendingResponse arms or re-arms the debounce timer for a
// conversation. The unique index on conversation_id makes the ON CONFLICT
// update atomic, so a burst of inbound messages collapses into one row
// whose fire_at keeps moving forward.
func (r *PostgresRepo) UpsertPendingResponse(ctx context.Context, pending model.PendingResponse) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if pending.AccountID == "" {
		pending.AccountID = accountID
	}
	if pending.AccountID != accountID {
		return fmt.Errorf("%w: pending AccountID %s does not match tenant ID %s", apperrors.ErrBadRequest, pending.AccountID, accountID)
	}
	pending.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"fire_at", "updated_at"}),
		}).Create(&pending)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpsertPendingResponse", operation)
	observer.ObserveDbOperationDuration("upsert", "pending_response", accountID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to upsert pending response after retries",
			zap.String("conversation_id", pending.ConversationID),
			zap.Error(commitErr))
		return commitErr
	}
	observer.IncResponsesScheduled(accountID)
	return nil
}

// FindDuePendingResponses returns up to limit rows whose fire_at has
// passed. The dispatcher calls this without a tenant context since it
// scans across all accounts.
func (r *PostgresRepo) FindDuePendingResponses(ctx context.Context, now time.Time, limit int) ([]model.PendingResponse, error) {
	var due []model.PendingResponse
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("fire_at <= ?", now).
			Order("fire_at ASC").
			Limit(limit).
			Find(&due)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindDuePendingResponses", operation)
	observer.ObserveDbOperationDuration("find_due", "pending_response", "", time.Since(startTime), findErr)
	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to scan due pending responses", zap.Error(findErr))
		return nil, findErr
	}
	return due, nil
}

// FindPendingResponseByConversation re-reads the timer row. Workers use
// this to detect rows superseded between claim and execution.
func (r *PostgresRepo) FindPendingResponseByConversation(ctx context.Context, conversationID string) (*model.PendingResponse, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var pending model.PendingResponse
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("conversation_id = ? AND account_id = ?", conversationID, accountID).
			First(&pending)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: pending response for conversation %s: %w", apperrors.ErrNotFound, conversationID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindPendingResponseByConversation", operation)
	observer.ObserveDbOperationDuration("find_by_conversation", "pending_response", accountID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find pending response after retries",
			zap.String("conversation_id", conversationID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &pending, nil
}

// DeletePendingResponse removes the timer row. Deleting a row that is
// already gone is not an error, the worker calls this unconditionally.
func (r *PostgresRepo) DeletePendingResponse(ctx context.Context, conversationID string) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("conversation_id = ? AND account_id = ?", conversationID, accountID).
			Delete(&model.PendingResponse{})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "DeletePendingResponse", operation)
	observer.ObserveDbOperationDuration("delete", "pending_response", accountID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to delete pending response after retries",
			zap.String("conversation_id", conversationID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
