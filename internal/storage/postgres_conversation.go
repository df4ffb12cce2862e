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

// --- Conversation Repository Methods ---

// findOpenConversation reads the single open conversation for a contact.
func (r *PostgresRepo) findOpenConversation(ctx context.Context, accountID, contactID string) (*model.Conversation, error) {
	var conv model.Conversation
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("account_id = ? AND contact_id = ? AND status <> ? AND archived = ?",
				accountID, contactID, model.ConversationClosed, false).
			First(&conv)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: open conversation for contact %s: %w", apperrors.ErrNotFound, contactID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}
	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	if err := retryableOperation(ctx, readPolicy, "FindOpenConversation", operation); err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindOrCreateOpenConversation returns the contact's open conversation,
// creating one when none exists. The partial unique index on
// (account_id, contact_id) for open rows arbitrates concurrent creates: the
// loser's insert fails with a unique violation and falls back to a read.
func (r *PostgresRepo) FindOrCreateOpenConversation(ctx context.Context, conv model.Conversation) (*model.Conversation, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if conv.AccountID == "" {
		conv.AccountID = accountID
	}
	if conv.AccountID != accountID {
		return nil, fmt.Errorf("%w: conversation AccountID %s does not match tenant ID %s", apperrors.ErrBadRequest, conv.AccountID, accountID)
	}
	loggerCtx := logger.FromContext(ctx)

	startTime := utils.Now()
	existing, findErr := r.findOpenConversation(ctx, accountID, conv.ContactID)
	if findErr == nil {
		observer.ObserveDbOperationDuration("find_or_create_open", "conversation", accountID, time.Since(startTime), nil)
		return existing, nil
	}
	if !errors.Is(findErr, apperrors.ErrNotFound) {
		observer.ObserveDbOperationDuration("find_or_create_open", "conversation", accountID, time.Since(startTime), findErr)
		return nil, findErr
	}

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Status == "" {
		conv.Status = model.ConversationInProgress
	}
	conv.Archived = false

	operation := func() error {
		if createErr := r.db.WithContext(ctx).Create(&conv).Error; createErr != nil {
			return checkConstraintViolation(createErr)
		}
		return nil
	}
	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	createErr := retryableOperation(ctx, commitPolicy, "CreateOpenConversation", operation)
	observer.ObserveDbOperationDuration("find_or_create_open", "conversation", accountID, time.Since(startTime), createErr)

	if createErr != nil {
		if errors.Is(createErr, apperrors.ErrDuplicate) {
			// Lost the race, another delivery created the open conversation.
			loggerCtx.Debug("Open conversation insert lost race, reading winner",
				zap.String("contact_id", conv.ContactID))
			return r.findOpenConversation(ctx, accountID, conv.ContactID)
		}
		loggerCtx.Error("Failed to create conversation after retries", zap.Error(createErr))
		return nil, createErr
	}
	return &conv, nil
}

// FindConversationByID finds a conversation by ID within the tenant.
func (r *PostgresRepo) FindConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var conv model.Conversation
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).First(&conv)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: conversation_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindConversationByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "conversation", accountID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find conversation by ID after retries",
			zap.String("conversation_id", id),
			zap.Error(findErr))
		return nil, findErr
	}
	return &conv, nil
}

// updateConversationColumns applies a column map to one tenant-scoped row.
func (r *PostgresRepo) updateConversationColumns(ctx context.Context, opName, conversationID string, columns map[string]interface{}) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	columns["updated_at"] = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Conversation{}).
			Where("id = ? AND account_id = ?", conversationID, accountID).
			Updates(columns)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: conversation_id %s", apperrors.ErrNotFound, conversationID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, opName, operation)
	observer.ObserveDbOperationDuration("update", "conversation", accountID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update conversation after retries",
			zap.String("operation", opName),
			zap.String("conversation_id", conversationID),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}

// RecordInboundOnConversation refreshes the summary columns for an inbound
// message: preview, timestamp, unread increment and reopen to in_progress.
func (r *PostgresRepo) RecordInboundOnConversation(ctx context.Context, conversationID, preview string, at time.Time) error {
	return r.updateConversationColumns(ctx, "RecordInboundOnConversation", conversationID, map[string]interface{}{
		"last_message_text": preview,
		"last_message_at":   at,
		"unread_count":      gorm.Expr("unread_count + 1"),
		"status":            model.ConversationInProgress,
	})
}

// RecordOutboundOnConversation refreshes the summary columns after a reply
// was delivered and flips the status to awaiting_customer.
func (r *PostgresRepo) RecordOutboundOnConversation(ctx context.Context, conversationID, preview string, at time.Time) error {
	return r.updateConversationColumns(ctx, "RecordOutboundOnConversation", conversationID, map[string]interface{}{
		"last_message_text": preview,
		"last_message_at":   at,
		"status":            model.ConversationAwaitingCustomer,
	})
}

// SetConversationAIEnabled toggles the AI flag.
func (r *PostgresRepo) SetConversationAIEnabled(ctx context.Context, conversationID string, enabled bool) error {
	return r.updateConversationColumns(ctx, "SetConversationAIEnabled", conversationID, map[string]interface{}{
		"ai_enabled": enabled,
	})
}

// AssignConversation sets the human or AI assignee. A nil pointer clears
// the corresponding column.
func (r *PostgresRepo) AssignConversation(ctx context.Context, conversationID string, userID, agentID *string) error {
	return r.updateConversationColumns(ctx, "AssignConversation", conversationID, map[string]interface{}{
		"assigned_user_id":  userID,
		"assigned_agent_id": agentID,
	})
}

// SetConversationStage sets the pipeline stage reference.
func (r *PostgresRepo) SetConversationStage(ctx context.Context, conversationID, stageID string) error {
	return r.updateConversationColumns(ctx, "SetConversationStage", conversationID, map[string]interface{}{
		"stage_id": stageID,
	})
}

// CloseConversation marks the conversation closed, releasing the partial
// unique slot so the next inbound message opens a fresh thread.
func (r *PostgresRepo) CloseConversation(ctx context.Context, conversationID string) error {
	return r.updateConversationColumns(ctx, "CloseConversation", conversationID, map[string]interface{}{
		"status": model.ConversationClosed,
	})
}
