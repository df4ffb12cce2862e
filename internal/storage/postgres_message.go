package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
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

// --- Message Repository Methods ---

// SaveInboundMessage inserts a webhook-delivered message with ON CONFLICT
// DO NOTHING on (conversation_id, external_id). stored=false means the
// provider redelivered a message we already hold; callers treat that as
// success and skip the rest of the pipeline. Echo deliveries of the
// tenant's own replies arrive here too, carrying direction outbound.
func (r *PostgresRepo) SaveInboundMessage(ctx context.Context, message model.Message) (bool, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if message.AccountID == "" {
		message.AccountID = accountID
	}
	if message.AccountID != accountID {
		return false, fmt.Errorf("%w: message AccountID %s does not match tenant ID %s", apperrors.ErrBadRequest, message.AccountID, accountID)
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Direction == "" {
		message.Direction = model.MessageInbound
	}

	var stored bool
	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "external_id"}},
			DoNothing: true,
		}).Create(&message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		stored = result.RowsAffected > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveInboundMessage", operation)
	observer.ObserveDbOperationDuration("save_inbound", "message", accountID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save inbound message after retries",
			zap.String("external_id", message.ExternalID),
			zap.Error(commitErr))
		return false, commitErr
	}
	if !stored {
		logger.FromContext(ctx).Debug("Duplicate inbound message ignored",
			zap.String("conversation_id", message.ConversationID),
			zap.String("external_id", message.ExternalID))
	}
	return stored, nil
}

// SaveOutboundMessage persists an outbound message. Called only after the
// provider accepted the send, so a plain insert is enough.
func (r *PostgresRepo) SaveOutboundMessage(ctx context.Context, message model.Message) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if message.AccountID == "" {
		message.AccountID = accountID
	}
	if message.AccountID != accountID {
		return fmt.Errorf("%w: message AccountID %s does not match tenant ID %s", apperrors.ErrBadRequest, message.AccountID, accountID)
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.Direction = model.MessageOutbound

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&message).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveOutboundMessage", operation)
	observer.ObserveDbOperationDuration("save_outbound", "message", accountID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save outbound message after retries", zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// FindRecentMessagesByConversation returns the newest messages of a
// conversation, oldest first, capped at limit. Deleted messages are skipped.
func (r *PostgresRepo) FindRecentMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var messages []model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("conversation_id = ? AND account_id = ? AND deleted = ?", conversationID, accountID, false).
			Order("sent_at DESC").
			Limit(limit).
			Find(&messages)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindRecentMessagesByConversation", operation)
	observer.ObserveDbOperationDuration("find_recent", "message", accountID, time.Since(startTime), findErr)
	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find recent messages after retries",
			zap.String("conversation_id", conversationID),
			zap.Error(findErr))
		return nil, findErr
	}

	// Reverse into chronological order for prompt assembly.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// FindLastInboundMessage returns the newest inbound message of a conversation.
func (r *PostgresRepo) FindLastInboundMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var message model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("conversation_id = ? AND account_id = ? AND direction = ? AND deleted = ?",
				conversationID, accountID, model.MessageInbound, false).
			Order("sent_at DESC").
			First(&message)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: no inbound message in conversation %s: %w", apperrors.ErrNotFound, conversationID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindLastInboundMessage", operation)
	observer.ObserveDbOperationDuration("find_last_inbound", "message", accountID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find last inbound message after retries",
			zap.String("conversation_id", conversationID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &message, nil
}

// MarkMessageDeleted soft-deletes a message.
func (r *PostgresRepo) MarkMessageDeleted(ctx context.Context, messageID string) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Message{}).
			Where("id = ? AND account_id = ?", messageID, accountID).
			Updates(map[string]interface{}{
				"deleted":    true,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: message_id %s", apperrors.ErrNotFound, messageID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkMessageDeleted", operation)
	observer.ObserveDbOperationDuration("mark_deleted", "message", accountID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark message deleted after retries",
			zap.String("message_id", messageID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
