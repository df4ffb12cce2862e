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

// --- Contact Repository Methods ---

// FindOrCreateContact resolves a contact by (account_id, external_key),
// creating it when absent. On an existing row the push name and avatar are
// refreshed via ON CONFLICT DO UPDATE, which keeps the call a single
// round trip and safe under concurrent webhook deliveries.
func (r *PostgresRepo) FindOrCreateContact(ctx context.Context, contact model.Contact) (*model.Contact, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if contact.AccountID == "" {
		contact.AccountID = accountID
	}
	if contact.AccountID != accountID {
		return nil, fmt.Errorf("%w: contact AccountID %s does not match tenant ID %s", apperrors.ErrBadRequest, contact.AccountID, accountID)
	}
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	contact.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "external_key"}},
			DoUpdates: clause.AssignmentColumns(contact.GetUpdatableFields()),
		}).Create(&contact)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "FindOrCreateContact", operation)
	observer.ObserveDbOperationDuration("find_or_create", "contact", accountID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to upsert contact after retries", zap.Error(commitErr))
		return nil, commitErr
	}

	// The upsert does not return the surviving row's ID on conflict, so
	// re-read by the natural key.
	var saved model.Contact
	readOp := func() error {
		result := r.db.WithContext(ctx).
			Where("account_id = ? AND external_key = ?", accountID, contact.ExternalKey).
			First(&saved)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: external_key %s: %w", apperrors.ErrNotFound, contact.ExternalKey, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}
	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	if readErr := retryableOperation(ctx, readPolicy, "FindOrCreateContact Read", readOp); readErr != nil {
		logger.FromContext(ctx).Error("Failed to re-read contact after upsert", zap.Error(readErr))
		return nil, readErr
	}
	return &saved, nil
}

// FindContactByID finds a contact by its ID within the tenant.
func (r *PostgresRepo) FindContactByID(ctx context.Context, id string) (*model.Contact, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var contact model.Contact
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).First(&contact)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: contact_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindContactByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "contact", accountID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find contact by ID after retries",
			zap.String("contact_id", id),
			zap.String("account_id", accountID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &contact, nil
}

// UpdateContact updates mutable fields of an existing contact record.
// Directive execution (rename, tag, product, source) funnels through here.
func (r *PostgresRepo) UpdateContact(ctx context.Context, contact model.Contact) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}
	if contact.AccountID != accountID {
		return fmt.Errorf("%w: contact AccountID %s does not match tenant ID %s", apperrors.ErrBadRequest, contact.AccountID, accountID)
	}
	contact.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Contact{}).
			Where("id = ? AND account_id = ?", contact.ID, accountID).
			Updates(map[string]interface{}{
				"name":       contact.Name,
				"push_name":  contact.PushName,
				"tags":       contact.Tags,
				"metadata":   contact.Metadata,
				"product_id": contact.ProductID,
				"source":     contact.Source,
				"updated_at": contact.UpdatedAt,
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: contact_id %s", apperrors.ErrNotFound, contact.ID)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateContact", operation)
	observer.ObserveDbOperationDuration("update", "contact", accountID, time.Since(startTime), commitErr)
	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update contact after retries", zap.Error(commitErr))
		return commitErr
	}
	return nil
}
