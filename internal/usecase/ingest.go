package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/observer"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/storage"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/tenant"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/validator"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// Ingestion outcome labels for metrics.
const (
	ingestOutcomeStored    = "stored"
	ingestOutcomeDuplicate = "duplicate"
	ingestOutcomeIgnored   = "ignored"
	ingestOutcomeError     = "error"
)

// ResponseScheduler arms the debounce timer for a conversation.
// Implemented by the scheduler package.
type ResponseScheduler interface {
	Arm(ctx context.Context, conversationID string, wait time.Duration) error
}

// IngestService runs the inbound pipeline from normalized event to armed
// debounce timer: resolve channel and tenant, find-or-create contact and
// open conversation, dedup-insert the message, refresh the conversation
// summary, then schedule the deferred response.
type IngestService struct {
	channelRepo      storage.ChannelRepo
	contactRepo      storage.ContactRepo
	conversationRepo storage.ConversationRepo
	messageRepo      storage.MessageRepo
	agentRepo        storage.AgentRepo
	scheduler        ResponseScheduler
	defaultWait      time.Duration
}

func NewIngestService(
	channelRepo storage.ChannelRepo,
	contactRepo storage.ContactRepo,
	conversationRepo storage.ConversationRepo,
	messageRepo storage.MessageRepo,
	agentRepo storage.AgentRepo,
	scheduler ResponseScheduler,
	defaultWait time.Duration,
) *IngestService {
	if defaultWait <= 0 {
		defaultWait = 5 * time.Second
	}
	return &IngestService{
		channelRepo:      channelRepo,
		contactRepo:      contactRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		agentRepo:        agentRepo,
		scheduler:        scheduler,
		defaultWait:      defaultWait,
	}
}

// Process handles one normalized inbound event. Events for unknown
// channel instances are accepted and dropped: the provider already got
// its 200 and there is no tenant to attribute the event to. Returned
// errors are for the caller's logging only, never surfaced to the
// provider.
func (s *IngestService) Process(ctx context.Context, providerTag string, event model.InboundEvent) error {
	start := utils.Now()
	log := logger.FromContext(ctx).With(
		zap.String("provider", providerTag),
		zap.String("external_id", event.ExternalID),
	)

	if err := validator.Validate(event); err != nil {
		log.Warn("Inbound event failed validation", zap.Error(err))
		observer.IncMessagesIngested("", ingestOutcomeError)
		return apperrors.NewFatal(err, "inbound event validation failed")
	}

	channel, err := s.channelRepo.FindByInstanceKey(ctx, event.ChannelInstanceKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Debug("Ignoring event for unknown channel instance",
				zap.String("instance_key", event.ChannelInstanceKey))
			observer.IncWebhooksRejected(providerTag, "")
			return nil
		}
		return err
	}
	if channel.Provider != providerTag {
		log.Warn("Channel provider tag mismatch, ignoring event",
			zap.String("channel_provider", channel.Provider))
		observer.IncWebhooksRejected(providerTag, channel.AccountID)
		return nil
	}

	ctx = tenant.WithAccountID(ctx, channel.AccountID)
	log = log.With(zap.String("account_id", channel.AccountID))
	ctx = logger.WithLogger(ctx, log)

	contact, err := s.contactRepo.FindOrCreate(ctx, model.Contact{
		ID:          uuid.NewString(),
		AccountID:   channel.AccountID,
		ExternalKey: event.ExternalKey,
		PushName:    event.PushName,
		Name:        event.PushName,
	})
	if err != nil {
		observer.IncMessagesIngested(channel.AccountID, ingestOutcomeError)
		return err
	}

	conv, err := s.conversationRepo.FindOrCreateOpen(ctx, model.Conversation{
		AccountID: channel.AccountID,
		ContactID: contact.ID,
		ChannelID: channel.ID,
		AIEnabled: true,
	})
	if err != nil {
		observer.IncMessagesIngested(channel.AccountID, ingestOutcomeError)
		return err
	}
	if conv.AssignedAgentID == nil {
		s.attachPrimaryAgent(ctx, conv)
	}

	direction := model.MessageInbound
	if event.FromMe {
		direction = model.MessageOutbound
	}
	sentAt := event.SentAt
	if sentAt.IsZero() {
		sentAt = utils.Now()
	}
	stored, err := s.messageRepo.SaveInbound(ctx, model.Message{
		ID:             uuid.NewString(),
		AccountID:      channel.AccountID,
		ConversationID: conv.ID,
		ExternalID:     event.ExternalID,
		Direction:      direction,
		Content:        event.Content,
		Type:           event.Type,
		MediaURL:       event.MediaURL,
		RawPayload:     event.RawPayload,
		SentAt:         sentAt,
	})
	if err != nil {
		observer.IncMessagesIngested(channel.AccountID, ingestOutcomeError)
		return err
	}
	if !stored {
		// Provider redelivery; the first delivery did all the work.
		log.Debug("Duplicate inbound message absorbed",
			zap.String("conversation_id", conv.ID))
		observer.IncMessagesIngested(channel.AccountID, ingestOutcomeDuplicate)
		return nil
	}

	if event.FromMe {
		// Echo of the tenant's own reply: refresh the summary, never arm.
		if err := s.conversationRepo.RecordOutbound(ctx, conv.ID, event.Content, sentAt); err != nil {
			log.Warn("Failed to record outbound echo on conversation", zap.Error(err))
		}
		observer.IncMessagesIngested(channel.AccountID, ingestOutcomeStored)
		observer.ObserveIngestDuration(providerTag, channel.AccountID, time.Since(start))
		return nil
	}

	if err := s.conversationRepo.RecordInbound(ctx, conv.ID, event.Content, sentAt); err != nil {
		log.Warn("Failed to record inbound summary on conversation", zap.Error(err))
	}

	if conv.AIEnabled {
		wait := s.waitWindow(ctx, conv)
		if err := s.scheduler.Arm(ctx, conv.ID, wait); err != nil {
			log.Error("Failed to arm pending response",
				zap.String("conversation_id", conv.ID),
				zap.Error(err))
		}
	}

	log.Info("Ingested inbound message",
		zap.String("conversation_id", conv.ID),
		zap.String("contact_id", contact.ID),
		zap.Bool("ai_enabled", conv.AIEnabled),
	)
	observer.IncMessagesIngested(channel.AccountID, ingestOutcomeStored)
	observer.ObserveIngestDuration(providerTag, channel.AccountID, time.Since(start))
	return nil
}

// attachPrimaryAgent assigns the tenant's single active agent to a fresh
// conversation. Best effort: ambiguity or lookup failure leaves the
// conversation unassigned.
func (s *IngestService) attachPrimaryAgent(ctx context.Context, conv *model.Conversation) {
	agents, err := s.agentRepo.FindActiveByAccount(ctx)
	if err != nil || len(agents) != 1 {
		return
	}
	agentID := agents[0].ID
	if err := s.conversationRepo.Assign(ctx, conv.ID, nil, &agentID); err != nil {
		logger.FromContext(ctx).Warn("Failed to attach primary agent",
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
		return
	}
	conv.AssignedAgentID = &agentID
}

// waitWindow picks the debounce window from the assigned agent, falling
// back to the configured default.
func (s *IngestService) waitWindow(ctx context.Context, conv *model.Conversation) time.Duration {
	if conv.AssignedAgentID != nil {
		agent, err := s.agentRepo.FindByID(ctx, *conv.AssignedAgentID)
		if err == nil && agent.WaitSeconds > 0 {
			return time.Duration(agent.WaitSeconds) * time.Second
		}
	}
	return s.defaultWait
}
