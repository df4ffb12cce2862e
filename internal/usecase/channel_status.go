package usecase

import (
	"context"

	"go.uber.org/zap"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/storage"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/validator"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
)

// ChannelStatusService applies connection lifecycle events (Evolution
// connection.update / qrcode.updated). These bypass the message pipeline
// entirely: only the channel row changes.
type ChannelStatusService struct {
	channelRepo storage.ChannelRepo
}

func NewChannelStatusService(channelRepo storage.ChannelRepo) *ChannelStatusService {
	return &ChannelStatusService{channelRepo: channelRepo}
}

// Apply updates the channel's status and pairing code. Events for
// unknown instances are dropped silently, matching the webhook contract.
func (s *ChannelStatusService) Apply(ctx context.Context, event *model.ChannelStatusEvent) error {
	if event == nil {
		return nil
	}
	log := logger.FromContext(ctx).With(
		zap.String("instance_key", event.ChannelInstanceKey),
		zap.String("status", event.Status),
	)

	if err := validator.Validate(*event); err != nil {
		log.Warn("Channel status event failed validation", zap.Error(err))
		return apperrors.NewFatal(err, "channel status event validation failed")
	}

	err := s.channelRepo.UpdateStatus(ctx, event.ChannelInstanceKey, event.Status, event.PairingCode, event.PhoneNumber)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			log.Debug("Status event for unknown channel instance, ignoring")
			return nil
		}
		log.Error("Failed to apply channel status", zap.Error(err))
		return err
	}

	log.Info("Channel status updated")
	return nil
}
