package model

import (
	"time"

	"gorm.io/datatypes"
)

// InboundEvent is the provider-neutral shape every webhook adapter
// normalizes into. The pipeline downstream of the adapters only ever sees
// this type.
type InboundEvent struct {
	// ExternalKey identifies the sender within the tenant (phone number or
	// platform-scoped user ID).
	ExternalKey string `json:"external_key" validate:"required"`
	// ExternalID is the provider message ID used for dedup.
	ExternalID string `json:"external_id" validate:"required"`
	// ChannelInstanceKey resolves the receiving Channel row.
	ChannelInstanceKey string `json:"channel_instance_key" validate:"required"`
	PushName           string `json:"push_name,omitempty"`
	Content            string `json:"content"`
	Type               string `json:"type" validate:"required"`
	MediaURL           string `json:"media_url,omitempty"`
	// FromMe marks an echo of the tenant's own outbound message; those are
	// persisted but never schedule a reply.
	FromMe     bool           `json:"from_me"`
	SentAt     time.Time      `json:"sent_at"`
	RawPayload datatypes.JSON `json:"raw_payload,omitempty"`
}

// ChannelStatusEvent carries Evolution connection lifecycle updates
// (connection.update, qrcode.updated). These bypass the message pipeline.
type ChannelStatusEvent struct {
	ChannelInstanceKey string `json:"channel_instance_key" validate:"required"`
	Status             string `json:"status" validate:"required,oneof=connected awaiting disconnected"`
	PairingCode        string `json:"pairing_code,omitempty"`
	PhoneNumber        string `json:"phone_number,omitempty"`
}
