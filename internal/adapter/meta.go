package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// MetaAdapter normalizes WhatsApp Cloud API webhook payloads. One body
// can batch several entries, each with several messages; every one
// becomes its own inbound event.
type MetaAdapter struct{}

func NewMetaAdapter() *MetaAdapter {
	return &MetaAdapter{}
}

type metaEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string          `json:"field"`
			Value metaChangeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type metaChangeValue struct {
	Metadata struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []metaMessage `json:"messages"`
}

type metaMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *metaMedia `json:"image"`
	Audio    *metaMedia `json:"audio"`
	Video    *metaMedia `json:"video"`
	Document *metaMedia `json:"document"`
	Sticker  *metaMedia `json:"sticker"`
	Button   *struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive *struct {
		ButtonReply *struct {
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

type metaMedia struct {
	ID       string `json:"id"`
	Link     string `json:"link"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

// Normalize flattens every message in the batch. Status-only payloads
// (delivery/read receipts) yield an empty slice.
func (a *MetaAdapter) Normalize(raw []byte) ([]model.InboundEvent, error) {
	var envelope metaEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode meta payload: %w", err)
	}

	var events []model.InboundEvent
	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.ID == "" || msg.From == "" {
					continue
				}
				content, messageType, mediaURL := extractMetaContent(msg)
				events = append(events, model.InboundEvent{
					ExternalKey:        msg.From,
					ExternalID:         msg.ID,
					ChannelInstanceKey: change.Value.Metadata.PhoneNumberID,
					PushName:           names[msg.From],
					Content:            content,
					Type:               messageType,
					MediaURL:           mediaURL,
					SentAt:             metaTimestamp(msg.Timestamp),
					RawPayload:         datatypes.JSON(raw),
				})
			}
		}
	}
	return events, nil
}

func extractMetaContent(msg metaMessage) (content, messageType, mediaURL string) {
	switch msg.Type {
	case "text":
		if msg.Text != nil {
			return msg.Text.Body, model.MessageTypeText, ""
		}
	case "image":
		if msg.Image != nil {
			return mediaCaption(msg.Image.Caption, placeholderImage), model.MessageTypeImage, msg.Image.Link
		}
	case "audio":
		if msg.Audio != nil {
			return placeholderAudio, model.MessageTypeAudio, msg.Audio.Link
		}
	case "video":
		if msg.Video != nil {
			return mediaCaption(msg.Video.Caption, placeholderVideo), model.MessageTypeVideo, msg.Video.Link
		}
	case "document":
		if msg.Document != nil {
			content = msg.Document.Caption
			if content == "" {
				content = msg.Document.Filename
			}
			return mediaCaption(content, placeholderDocument), model.MessageTypeDocument, msg.Document.Link
		}
	case "sticker":
		if msg.Sticker != nil {
			return placeholderSticker, model.MessageTypeSticker, msg.Sticker.Link
		}
	case "button":
		if msg.Button != nil {
			return msg.Button.Text, model.MessageTypeText, ""
		}
	case "interactive":
		if msg.Interactive != nil {
			if msg.Interactive.ButtonReply != nil {
				return msg.Interactive.ButtonReply.Title, model.MessageTypeText, ""
			}
			if msg.Interactive.ListReply != nil {
				return msg.Interactive.ListReply.Title, model.MessageTypeText, ""
			}
		}
	}
	return placeholderUnknown, model.MessageTypeText, ""
}

func mediaCaption(caption, fallback string) string {
	if caption == "" {
		return fallback
	}
	return caption
}

func metaTimestamp(s string) (t time.Time) {
	unix, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return utils.Now()
	}
	return utils.UnixToTime(unix)
}
