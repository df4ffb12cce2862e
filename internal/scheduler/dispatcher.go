package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/config"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/observer"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/storage"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/tenant"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// ResponseHandler runs one response cycle for a due conversation. Wired
// to the responder service in main; the indirection keeps this package
// free of the usecase dependency.
type ResponseHandler func(ctx context.Context, conversationID string) string

// fireTask is the unit of work submitted to the pool.
type fireTask struct {
	ctx     context.Context
	pending model.PendingResponse
}

// Dispatcher polls respostas_pendentes across all tenants and fires due
// rows through a bounded worker pool.
type Dispatcher struct {
	pendingRepo  storage.PendingResponseRepo
	handler      ResponseHandler
	pool         *ants.PoolWithFunc
	pollInterval time.Duration
	batchSize    int
	baseLogger   *zap.Logger
	stop         chan struct{}
	done         chan struct{}
}

// NewDispatcher creates the dispatcher and its worker pool.
func NewDispatcher(
	pendingRepo storage.PendingResponseRepo,
	handler ResponseHandler,
	pollInterval time.Duration,
	batchSize int,
	poolCfg config.ResponderWorkerPoolConfig,
	baseLogger *zap.Logger,
) (*Dispatcher, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}

	d := &Dispatcher{
		pendingRepo:  pendingRepo,
		handler:      handler,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		baseLogger:   baseLogger.Named("dispatcher"),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}

	pool, err := ants.NewPoolWithFunc(poolCfg.PoolSize, func(i interface{}) {
		task, ok := i.(fireTask)
		if !ok {
			d.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		d.fire(task)
	},
		ants.WithExpiryDuration(poolCfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(poolCfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			d.baseLogger.Error("Panic recovered in responder worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create responder worker pool: %w", err)
	}
	d.pool = pool
	d.baseLogger.Info("Responder worker pool initialized",
		zap.Int("pool_size", poolCfg.PoolSize),
		zap.Int("queue_size", poolCfg.QueueSize),
		zap.Duration("poll_interval", pollInterval),
	)
	return d, nil
}

// Start runs the poll loop until Stop is called.
func (d *Dispatcher) Start() {
	utils.SafeGo(func() {
		defer close(d.done)
		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				d.scan()
			}
		}
	}, nil)
}

// scan fetches one batch of due rows and submits them to the pool.
func (d *Dispatcher) scan() {
	ctx := logger.WithLogger(context.Background(), d.baseLogger)

	due, err := d.pendingRepo.FindDue(ctx, utils.Now(), d.batchSize)
	if err != nil {
		d.baseLogger.Error("Failed to scan due pending responses", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	d.baseLogger.Debug("Dispatching due responses", zap.Int("count", len(due)))

	for _, pending := range due {
		taskCtx := tenant.WithAccountID(context.Background(), pending.AccountID)
		taskCtx = logger.WithLogger(taskCtx, d.baseLogger.With(
			zap.String("account_id", pending.AccountID),
			zap.String("conversation_id", pending.ConversationID),
		))

		observer.SetResponderQueueLength(d.pool.Waiting())
		if err := d.pool.Invoke(fireTask{ctx: taskCtx, pending: pending}); err != nil {
			if errors.Is(err, ants.ErrPoolOverload) {
				// Leave the row in place; the next scan retries it.
				d.baseLogger.Warn("Responder pool overloaded, deferring pending response",
					zap.String("conversation_id", pending.ConversationID))
				continue
			}
			d.baseLogger.Error("Failed to submit response task",
				zap.String("conversation_id", pending.ConversationID),
				zap.Error(err))
		}
	}
}

// fire re-validates the pending row and runs the response cycle. The row
// is re-read because the scan snapshot may be stale: a newer inbound
// message can have pushed fire_at into the future, or another worker may
// have consumed the row already. Either way the fire is a no-op.
func (d *Dispatcher) fire(task fireTask) {
	ctx := task.ctx
	log := logger.FromContext(ctx)

	current, err := d.pendingRepo.FindByConversation(ctx, task.pending.ConversationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Debug("Pending response already consumed, skipping fire")
			observer.IncResponsesFired(task.pending.AccountID, "superseded")
			return
		}
		log.Error("Failed to re-validate pending response", zap.Error(err))
		return
	}
	if current.FireAt.After(utils.Now()) {
		log.Debug("Pending response rearmed to a later time, skipping fire",
			zap.Time("fire_at", current.FireAt))
		observer.IncResponsesFired(task.pending.AccountID, "superseded")
		return
	}

	// Delete before the cycle so a crash mid-generation cannot leave a
	// row that refires forever. Success or failure, the debounce slot is
	// spent; the next inbound message arms a fresh one.
	if err := d.pendingRepo.DeleteByConversation(ctx, task.pending.ConversationID); err != nil {
		log.Error("Failed to delete pending response before fire", zap.Error(err))
		return
	}

	d.handler(ctx, task.pending.ConversationID)
}

// Stop halts the poll loop and releases the pool.
func (d *Dispatcher) Stop() {
	close(d.stop)
	select {
	case <-d.done:
	case <-time.After(5 * time.Second):
		d.baseLogger.Warn("Dispatcher poll loop did not stop in time")
	}
	if d.pool != nil {
		d.baseLogger.Info("Releasing responder worker pool")
		start := time.Now()
		d.pool.Release()
		d.baseLogger.Info("Responder worker pool released", zap.Duration("duration", time.Since(start)))
	}
}
