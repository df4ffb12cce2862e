package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/observer"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/provider"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/storage"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// DeliveryService sends replies through the conversation's channel. The
// outbound Message row is written only after the provider accepted the
// send; a transport failure leaves no row, which is the correct "not
// delivered" state. There is no retry queue.
type DeliveryService struct {
	channelRepo      storage.ChannelRepo
	contactRepo      storage.ContactRepo
	conversationRepo storage.ConversationRepo
	messageRepo      storage.MessageRepo
	providers        *provider.Registry
}

func NewDeliveryService(
	channelRepo storage.ChannelRepo,
	contactRepo storage.ContactRepo,
	conversationRepo storage.ConversationRepo,
	messageRepo storage.MessageRepo,
	providers *provider.Registry,
) *DeliveryService {
	return &DeliveryService{
		channelRepo:      channelRepo,
		contactRepo:      contactRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		providers:        providers,
	}
}

// SendReply delivers content to the conversation's contact and persists
// the outbound message on success.
func (s *DeliveryService) SendReply(ctx context.Context, conv *model.Conversation, content string, fromAI bool) error {
	log := logger.FromContext(ctx).With(zap.String("conversation_id", conv.ID))

	contact, err := s.contactRepo.FindByID(ctx, conv.ContactID)
	if err != nil {
		return err
	}
	channel, err := s.channelRepo.FindByID(ctx, conv.ChannelID)
	if err != nil {
		return err
	}
	sender, err := s.providers.For(channel)
	if err != nil {
		return err
	}

	externalID, err := sender.Send(ctx, channel, provider.OutboundMessage{
		To:      contact.ExternalKey,
		Content: content,
		Type:    model.MessageTypeText,
	})
	if err != nil {
		observer.IncDeliveryAttempt(conv.AccountID, "error")
		log.Warn("Outbound send failed",
			zap.String("provider", channel.Provider),
			zap.Error(err))
		return err
	}
	observer.IncDeliveryAttempt(conv.AccountID, "success")

	now := utils.Now()
	if err := s.messageRepo.SaveOutbound(ctx, model.Message{
		ID:             uuid.NewString(),
		AccountID:      conv.AccountID,
		ConversationID: conv.ID,
		ExternalID:     externalID,
		Direction:      model.MessageOutbound,
		Content:        content,
		Type:           model.MessageTypeText,
		FromAI:         fromAI,
		SentAt:         now,
	}); err != nil {
		log.Error("Reply delivered but outbound message persist failed", zap.Error(err))
		return err
	}

	if err := s.conversationRepo.RecordOutbound(ctx, conv.ID, content, now); err != nil {
		log.Warn("Failed to update conversation summary after reply", zap.Error(err))
	}

	log.Info("Reply delivered",
		zap.String("provider", channel.Provider),
		zap.String("external_id", externalID),
		zap.Bool("from_ai", fromAI),
	)
	return nil
}

// DeleteMessage revokes a delivered message where the provider supports
// it and soft-deletes the local row either way.
func (s *DeliveryService) DeleteMessage(ctx context.Context, conv *model.Conversation, messageID, externalID string) error {
	contact, err := s.contactRepo.FindByID(ctx, conv.ContactID)
	if err != nil {
		return err
	}
	channel, err := s.channelRepo.FindByID(ctx, conv.ChannelID)
	if err != nil {
		return err
	}
	sender, err := s.providers.For(channel)
	if err != nil {
		return err
	}

	if err := sender.DeleteMessage(ctx, channel, externalID, contact.ExternalKey); err != nil {
		logger.FromContext(ctx).Warn("Provider message revoke failed",
			zap.String("external_id", externalID),
			zap.Error(err))
	}
	return s.messageRepo.MarkDeleted(ctx, messageID)
}
