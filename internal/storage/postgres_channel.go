package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/observer"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/tenant"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// --- Channel Repository Methods ---

// FindChannelByInstanceKey resolves a channel by its provider instance key.
// This runs before the tenant is known, so it deliberately takes no tenant
// from context; the returned row's AccountID is what establishes it.
func (r *PostgresRepo) FindChannelByInstanceKey(ctx context.Context, instanceKey string) (*model.Channel, error) {
	var channel model.Channel
	operation := func() error {
		result := r.db.WithContext(ctx).Where("instance_key = ?", instanceKey).First(&channel)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: instance_key %s: %w", apperrors.ErrNotFound, instanceKey, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindChannelByInstanceKey", operation)
	observer.ObserveDbOperationDuration("find_by_instance", "channel", "", time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find channel by instance key after retries",
			zap.String("instance_key", instanceKey),
			zap.Error(findErr))
		return nil, findErr
	}
	return &channel, nil
}

// FindChannelByID finds a channel by ID within the tenant.
func (r *PostgresRepo) FindChannelByID(ctx context.Context, id string) (*model.Channel, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var channel model.Channel
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).First(&channel)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: channel_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindChannelByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "channel", accountID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find channel by ID after retries",
			zap.String("channel_id", id),
			zap.Error(findErr))
		return nil, findErr
	}
	return &channel, nil
}

// UpdateChannelStatus applies a connection lifecycle update from the
// provider (connection.update / qrcode.updated). Empty pairingCode and
// phoneNumber values leave the stored columns untouched.
func (r *PostgresRepo) UpdateChannelStatus(ctx context.Context, instanceKey, status, pairingCode, phoneNumber string) error {
	columns := map[string]interface{}{
		"status":     status,
		"updated_at": utils.Now(),
	}
	if status == model.ChannelConnected {
		// A fresh connection invalidates any pairing code.
		columns["pairing_code"] = ""
	}
	if pairingCode != "" {
		columns["pairing_code"] = pairingCode
	}
	if phoneNumber != "" {
		columns["phone_number"] = phoneNumber
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Channel{}).
			Where("instance_key = ?", instanceKey).
			Updates(columns)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: instance_key %s", apperrors.ErrNotFound, instanceKey)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateChannelStatus", operation)
	observer.ObserveDbOperationDuration("update_status", "channel", "", time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update channel status after retries",
			zap.String("instance_key", instanceKey),
			zap.String("status", status),
			zap.Error(commitErr))
		return commitErr
	}
	return nil
}
