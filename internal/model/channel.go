package model

import (
	"time"
)

// Channel provider tags. Adapter dispatch keys off these values, never off
// payload shape.
const (
	ProviderEvolution = "evolution"
	ProviderMeta      = "meta"
	ProviderInstagram = "instagram"
)

// Channel connection states.
const (
	ChannelConnected    = "connected"
	ChannelAwaiting     = "awaiting"
	ChannelDisconnected = "disconnected"
)

// Channel is a tenant's messaging connection. InstanceKey identifies the
// Evolution instance or the Meta phone-number/Instagram business ID.
type Channel struct {
	ID          string    `json:"id" gorm:"column:id;primaryKey"`
	AccountID   string    `json:"account_id" gorm:"column:account_id;index"`
	Provider    string    `json:"provider" gorm:"column:provider"`
	InstanceKey string    `json:"instance_key" gorm:"column:instance_key;uniqueIndex:idx_conexoes_instance"`
	AccessToken string    `json:"-" gorm:"column:access_token"`
	PhoneNumber string    `json:"phone_number,omitempty" gorm:"column:phone_number"`
	Status      string    `json:"status" gorm:"column:status;default:disconnected"`
	PairingCode string    `json:"pairing_code,omitempty" gorm:"column:pairing_code"`
	CreatedAt   time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Channel) TableName() string {
	return "conexoes_whatsapp"
}
