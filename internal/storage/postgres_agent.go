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

// --- Agent Repository Methods ---

// FindActiveAgentsByAccount returns every active agent of the tenant. The
// responder needs the full list to enforce its exactly-one precondition.
func (r *PostgresRepo) FindActiveAgentsByAccount(ctx context.Context) ([]model.Agent, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var agents []model.Agent
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("account_id = ? AND active = ?", accountID, true).
			Order("created_at ASC").
			Find(&agents)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindActiveAgentsByAccount", operation)
	observer.ObserveDbOperationDuration("find_active", "agent", accountID, time.Since(startTime), findErr)
	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find active agents after retries", zap.Error(findErr))
		return nil, findErr
	}
	return agents, nil
}

// FindAgentByID finds an agent by its ID within the tenant.
func (r *PostgresRepo) FindAgentByID(ctx context.Context, id string) (*model.Agent, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var agent model.Agent
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).First(&agent)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: agent_id %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindAgentByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "agent", accountID, time.Since(startTime), findErr)
	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find agent by ID after retries",
			zap.String("agent_id", id),
			zap.Error(findErr))
		return nil, findErr
	}
	return &agent, nil
}

// FindAgentStages returns the agent's script steps in position order.
func (r *PostgresRepo) FindAgentStages(ctx context.Context, agentID string) ([]model.AgentStage, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var stages []model.AgentStage
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("agent_id = ?", agentID).
			Order("position ASC").
			Find(&stages)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindAgentStages", operation)
	observer.ObserveDbOperationDuration("find_stages", "agent", accountID, time.Since(startTime), findErr)
	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find agent stages after retries",
			zap.String("agent_id", agentID),
			zap.Error(findErr))
		return nil, findErr
	}
	return stages, nil
}

// FindAgentFAQs returns the agent's FAQ pairs in position order.
func (r *PostgresRepo) FindAgentFAQs(ctx context.Context, agentID string) ([]model.AgentFAQ, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID from context: %w", apperrors.ErrUnauthorized, err)
	}

	var faqs []model.AgentFAQ
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("agent_id = ?", agentID).
			Order("position ASC").
			Find(&faqs)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindAgentFAQs", operation)
	observer.ObserveDbOperationDuration("find_faqs", "agent", accountID, time.Since(startTime), findErr)
	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find agent FAQs after retries",
			zap.String("agent_id", agentID),
			zap.Error(findErr))
		return nil, findErr
	}
	return faqs, nil
}
