package model

import (
	"time"

	"gorm.io/datatypes"
)

// Message direction values.
const (
	MessageInbound  = "inbound"
	MessageOutbound = "outbound"
)

// Message content types.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeAudio    = "audio"
	MessageTypeVideo    = "video"
	MessageTypeDocument = "document"
	MessageTypeSticker  = "sticker"
	MessageTypeSystem   = "system"
)

// Message is a single message inside a conversation. ExternalID is the
// provider message ID; the unique index on (conversation_id, external_id)
// makes redelivered webhooks no-ops.
type Message struct {
	ID             string         `json:"id" gorm:"column:id;primaryKey"`
	AccountID      string         `json:"account_id" gorm:"column:account_id;index"`
	ConversationID string         `json:"conversation_id" gorm:"column:conversation_id;index:idx_mensagens_conv_ext,unique,priority:1"`
	ExternalID     string         `json:"external_id,omitempty" gorm:"column:external_id;index:idx_mensagens_conv_ext,unique,priority:2"`
	Direction      string         `json:"direction" gorm:"column:direction"`
	Content        string         `json:"content,omitempty" gorm:"column:content"`
	Type           string         `json:"type" gorm:"column:type;default:text"`
	MediaURL       string         `json:"media_url,omitempty" gorm:"column:media_url"`
	FromAI         bool           `json:"from_ai" gorm:"column:from_ai;default:false"`
	Read           bool           `json:"read" gorm:"column:read;default:false"`
	Deleted        bool           `json:"deleted" gorm:"column:deleted;default:false"`
	RawPayload     datatypes.JSON `json:"raw_payload,omitempty" gorm:"type:jsonb;column:raw_payload"`
	SentAt         time.Time      `json:"sent_at" gorm:"column:sent_at"`
	CreatedAt      time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Message) TableName() string {
	return "mensagens"
}
