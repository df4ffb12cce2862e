package adapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// EvolutionAdapter normalizes Evolution API bridge events. The bridge
// forwards raw Baileys message structures, so content lives in one of
// several nested message variants.
type EvolutionAdapter struct{}

func NewEvolutionAdapter() *EvolutionAdapter {
	return &EvolutionAdapter{}
}

type evolutionEnvelope struct {
	Event    string             `json:"event"`
	Instance string             `json:"instance"`
	Data     evolutionEventData `json:"data"`
}

type evolutionEventData struct {
	Key struct {
		RemoteJid string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	PushName         string           `json:"pushName"`
	Message          evolutionMessage `json:"message"`
	MessageType      string           `json:"messageType"`
	MessageTimestamp int64            `json:"messageTimestamp"`

	// connection.update / qrcode.updated fields.
	State  string `json:"state"`
	QRCode struct {
		PairingCode string `json:"pairingCode"`
	} `json:"qrcode"`
	WUID string `json:"wuid"`
}

type evolutionMessage struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	ImageMessage *struct {
		Caption string `json:"caption"`
		URL     string `json:"url"`
	} `json:"imageMessage"`
	AudioMessage *struct {
		URL string `json:"url"`
	} `json:"audioMessage"`
	VideoMessage *struct {
		Caption string `json:"caption"`
		URL     string `json:"url"`
	} `json:"videoMessage"`
	DocumentMessage *struct {
		Caption  string `json:"caption"`
		URL      string `json:"url"`
		FileName string `json:"fileName"`
	} `json:"documentMessage"`
	StickerMessage *struct {
		URL string `json:"url"`
	} `json:"stickerMessage"`
}

// Normalize handles messages.upsert payloads. Connection lifecycle
// events return no messages here; NormalizeStatus covers them.
func (a *EvolutionAdapter) Normalize(raw []byte) ([]model.InboundEvent, error) {
	var envelope evolutionEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode evolution payload: %w", err)
	}
	if envelope.Event != "messages.upsert" {
		return nil, nil
	}
	data := envelope.Data
	if data.Key.ID == "" || data.Key.RemoteJid == "" {
		return nil, nil
	}

	content, messageType, mediaURL := extractEvolutionContent(data.Message)

	event := model.InboundEvent{
		ExternalKey:        jidToExternalKey(data.Key.RemoteJid),
		ExternalID:         data.Key.ID,
		ChannelInstanceKey: envelope.Instance,
		PushName:           data.PushName,
		Content:            content,
		Type:               messageType,
		MediaURL:           mediaURL,
		FromMe:             data.Key.FromMe,
		SentAt:             utils.UnixToTime(data.MessageTimestamp),
		RawPayload:         datatypes.JSON(raw),
	}
	return []model.InboundEvent{event}, nil
}

// IsStatusEvent reports whether the payload belongs to the channel
// provisioning sub-protocol rather than the message pipeline.
func (a *EvolutionAdapter) IsStatusEvent(raw []byte) bool {
	var envelope evolutionEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return false
	}
	return envelope.Event == "connection.update" || envelope.Event == "qrcode.updated"
}

// NormalizeStatus maps connection.update and qrcode.updated payloads to
// a channel status event.
func (a *EvolutionAdapter) NormalizeStatus(raw []byte) (*model.ChannelStatusEvent, error) {
	var envelope evolutionEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode evolution status payload: %w", err)
	}

	switch envelope.Event {
	case "connection.update":
		status := model.ChannelAwaiting
		switch envelope.Data.State {
		case "open":
			status = model.ChannelConnected
		case "close":
			status = model.ChannelDisconnected
		}
		return &model.ChannelStatusEvent{
			ChannelInstanceKey: envelope.Instance,
			Status:             status,
			PhoneNumber:        jidToExternalKey(envelope.Data.WUID),
		}, nil
	case "qrcode.updated":
		return &model.ChannelStatusEvent{
			ChannelInstanceKey: envelope.Instance,
			Status:             model.ChannelAwaiting,
			PairingCode:        envelope.Data.QRCode.PairingCode,
		}, nil
	default:
		return nil, nil
	}
}

func extractEvolutionContent(msg evolutionMessage) (content, messageType, mediaURL string) {
	switch {
	case msg.Conversation != "":
		return msg.Conversation, model.MessageTypeText, ""
	case msg.ExtendedTextMessage != nil:
		return msg.ExtendedTextMessage.Text, model.MessageTypeText, ""
	case msg.ImageMessage != nil:
		content = msg.ImageMessage.Caption
		if content == "" {
			content = placeholderImage
		}
		return content, model.MessageTypeImage, msg.ImageMessage.URL
	case msg.AudioMessage != nil:
		return placeholderAudio, model.MessageTypeAudio, msg.AudioMessage.URL
	case msg.VideoMessage != nil:
		content = msg.VideoMessage.Caption
		if content == "" {
			content = placeholderVideo
		}
		return content, model.MessageTypeVideo, msg.VideoMessage.URL
	case msg.DocumentMessage != nil:
		content = msg.DocumentMessage.Caption
		if content == "" {
			content = msg.DocumentMessage.FileName
		}
		if content == "" {
			content = placeholderDocument
		}
		return content, model.MessageTypeDocument, msg.DocumentMessage.URL
	case msg.StickerMessage != nil:
		return placeholderSticker, model.MessageTypeSticker, msg.StickerMessage.URL
	default:
		return placeholderUnknown, model.MessageTypeText, ""
	}
}

// jidToExternalKey strips the WhatsApp JID suffix, leaving the bare
// phone number.
func jidToExternalKey(jid string) string {
	if idx := strings.IndexByte(jid, '@'); idx >= 0 {
		return jid[:idx]
	}
	return jid
}
