// Package notifier publishes operator notifications to a JetStream
// stream. Downstream consumers (the web app's alerting worker) subscribe
// elsewhere; this service only writes.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// Notification is the payload published when a conversation requests
// human attention.
type Notification struct {
	AccountID      string    `json:"accountId"`
	ConversationID string    `json:"conversationId"`
	ContactID      string    `json:"contactId"`
	Reason         string    `json:"reason"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// NotifierInterface lets the directive executor be tested with a fake.
type NotifierInterface interface {
	Notify(ctx context.Context, n Notification) error
	Close()
}

// Notifier wraps a NATS JetStream connection for publishing.
type Notifier struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

var _ NotifierInterface = (*Notifier)(nil)

// New connects to NATS and creates a JetStream context.
func New(url, subject string) (*Notifier, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, s *nats.Subscription, err error) {
			logger.Log.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Notifier{nc: nc, js: js, subject: subject}, nil
}

// SetupStream ensures the notification stream exists with the given
// configuration, updating it in place when the config drifted.
func (n *Notifier) SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error {
	log := logger.FromContext(ctx)

	stream, err := n.js.StreamInfo(streamConfig.Name)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for '%s': %w", streamConfig.Name, err)
	}

	if stream == nil {
		_, err = n.js.AddStream(streamConfig)
		if err != nil {
			return fmt.Errorf("failed to add stream '%s': %w", streamConfig.Name, err)
		}
		log.Info(
			"Created stream", zap.String("name", streamConfig.Name),
			zap.Any("subjects", streamConfig.Subjects),
		)
		return nil
	}

	if !utils.StreamConfigEqual(stream.Config, *streamConfig) {
		_, err = n.js.UpdateStream(streamConfig)
		if err != nil {
			return fmt.Errorf("failed to update stream '%s': %w", streamConfig.Name, err)
		}
		log.Info(
			"Updated stream", zap.String("name", streamConfig.Name),
			zap.Any("subjects", streamConfig.Subjects),
		)
	} else {
		log.Info("stream no need update", zap.String("name", streamConfig.Name))
	}

	return nil
}

// Notify publishes one notification. The account ID travels in a header
// so consumers can filter without decoding the body.
func (n *Notifier) Notify(ctx context.Context, notification Notification) error {
	if notification.OccurredAt.IsZero() {
		notification.OccurredAt = utils.Now()
	}

	msg := nats.NewMsg(n.subject)
	msg.Data = utils.MustMarshalJSON(notification)
	msg.Header.Add("Account-Id", notification.AccountID)

	_, err := n.js.PublishMsg(msg)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	logger.FromContext(ctx).Info("Published notification",
		zap.String("conversation_id", notification.ConversationID),
		zap.String("subject", n.subject),
	)
	return nil
}

// Close closes the NATS connection.
func (n *Notifier) Close() {
	if n.nc != nil {
		n.nc.Close()
	}
}
