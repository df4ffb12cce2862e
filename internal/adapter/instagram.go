package adapter

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// InstagramAdapter normalizes Instagram messaging webhook payloads. The
// envelope nests messaging events per entry; attachments carry media.
type InstagramAdapter struct{}

func NewInstagramAdapter() *InstagramAdapter {
	return &InstagramAdapter{}
}

type instagramEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Recipient struct {
				ID string `json:"id"`
			} `json:"recipient"`
			Timestamp int64 `json:"timestamp"`
			Message   *struct {
				MID         string `json:"mid"`
				Text        string `json:"text"`
				IsEcho      bool   `json:"is_echo"`
				Attachments []struct {
					Type    string `json:"type"`
					Payload struct {
						URL string `json:"url"`
					} `json:"payload"`
				} `json:"attachments"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// Normalize flattens every messaging event. Non-message events (reads,
// reactions) yield nothing.
func (a *InstagramAdapter) Normalize(raw []byte) ([]model.InboundEvent, error) {
	var envelope instagramEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode instagram payload: %w", err)
	}

	var events []model.InboundEvent
	for _, entry := range envelope.Entry {
		for _, m := range entry.Messaging {
			if m.Message == nil || m.Message.MID == "" {
				continue
			}

			content := m.Message.Text
			messageType := model.MessageTypeText
			mediaURL := ""
			if len(m.Message.Attachments) > 0 {
				att := m.Message.Attachments[0]
				mediaURL = att.Payload.URL
				switch att.Type {
				case "image":
					messageType = model.MessageTypeImage
				case "audio":
					messageType = model.MessageTypeAudio
				case "video":
					messageType = model.MessageTypeVideo
				case "file":
					messageType = model.MessageTypeDocument
				}
				if content == "" {
					content = placeholderFor(messageType)
				}
			}
			if content == "" {
				content = placeholderUnknown
			}

			externalKey := m.Sender.ID
			if m.Message.IsEcho {
				externalKey = m.Recipient.ID
			}

			events = append(events, model.InboundEvent{
				ExternalKey:        externalKey,
				ExternalID:         m.Message.MID,
				ChannelInstanceKey: entry.ID,
				Content:            content,
				Type:               messageType,
				MediaURL:           mediaURL,
				FromMe:             m.Message.IsEcho,
				SentAt:             utils.UnixToTimeWithMilliseconds(m.Timestamp),
				RawPayload:         datatypes.JSON(raw),
			})
		}
	}
	return events, nil
}
