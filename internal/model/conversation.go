package model

import (
	"time"
)

// Conversation status values.
const (
	ConversationInProgress       = "in_progress"
	ConversationAwaitingCustomer = "awaiting_customer"
	ConversationClosed           = "closed"
)

// Conversation is a thread between a contact and the tenant over one channel.
// A partial unique index on (account_id, contact_id) for non-closed,
// non-archived rows guarantees at most one open conversation per contact.
type Conversation struct {
	ID              string     `json:"id" gorm:"column:id;primaryKey"`
	AccountID       string     `json:"account_id" gorm:"column:account_id;index"`
	ContactID       string     `json:"contact_id" gorm:"column:contact_id;index"`
	ChannelID       string     `json:"channel_id" gorm:"column:channel_id"`
	AIEnabled       bool       `json:"ai_enabled" gorm:"column:ai_enabled;default:true"`
	AssignedUserID  *string    `json:"assigned_user_id,omitempty" gorm:"column:assigned_user_id"`
	AssignedAgentID *string    `json:"assigned_agent_id,omitempty" gorm:"column:assigned_agent_id"`
	StageID         *string    `json:"stage_id,omitempty" gorm:"column:stage_id"`
	LastMessageText string     `json:"last_message_text,omitempty" gorm:"column:last_message_text"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty" gorm:"column:last_message_at"`
	UnreadCount     int        `json:"unread_count" gorm:"column:unread_count;default:0"`
	Status          string     `json:"status" gorm:"column:status;default:in_progress"`
	Archived        bool       `json:"archived" gorm:"column:archived;default:false"`
	CreatedAt       time.Time  `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Conversation) TableName() string {
	return "conversas"
}

// IsOpen reports whether the conversation still accepts the inbound flow.
func (c *Conversation) IsOpen() bool {
	return c.Status != ConversationClosed && !c.Archived
}
