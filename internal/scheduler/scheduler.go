// Package scheduler owns the durable debounce timer. Arming upserts one
// row per conversation in respostas_pendentes; the dispatcher polls for
// due rows and hands them to a worker pool. Rows survive restarts, so a
// reply scheduled before a crash still fires after the next boot.
package scheduler

import (
	"context"
	"time"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/storage"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/tenant"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// Scheduler arms the per-conversation debounce timer.
type Scheduler struct {
	pendingRepo storage.PendingResponseRepo
}

func NewScheduler(pendingRepo storage.PendingResponseRepo) *Scheduler {
	return &Scheduler{pendingRepo: pendingRepo}
}

// Arm upserts the pending row with fire_at = now + wait. A conversation
// that already has a pending row gets its fire_at overwritten, which is
// the debounce: rapid-fire messages collapse into one cycle at the
// latest deadline.
func (s *Scheduler) Arm(ctx context.Context, conversationID string, wait time.Duration) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	return s.pendingRepo.Upsert(ctx, model.PendingResponse{
		AccountID:      accountID,
		ConversationID: conversationID,
		FireAt:         utils.Now().Add(wait),
	})
}

// Disarm removes the pending row, cancelling any scheduled cycle.
func (s *Scheduler) Disarm(ctx context.Context, conversationID string) error {
	return s.pendingRepo.DeleteByConversation(ctx, conversationID)
}
