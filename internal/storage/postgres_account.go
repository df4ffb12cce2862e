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
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// --- Account Repository Methods ---

// FindAccountByID loads the tenant settings row (LLM credential, timezone).
func (r *PostgresRepo) FindAccountByID(ctx context.Context, id string) (*model.Account, error) {
	var account model.Account
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).First(&account)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: account_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindAccountByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "account", id, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find account after retries",
			zap.String("account_id", id),
			zap.Error(findErr))
		return nil, findErr
	}
	return &account, nil
}
