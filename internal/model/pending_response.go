package model

import (
	"time"
)

// PendingResponse is a durable debounce timer. One row per conversation;
// each new inbound message overwrites FireAt, pushing the reply out.
// Rows survive restarts, the dispatcher picks up due ones on its next scan.
type PendingResponse struct {
	ID             int64     `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	AccountID      string    `json:"account_id" gorm:"column:account_id;index"`
	ConversationID string    `json:"conversation_id" gorm:"column:conversation_id;uniqueIndex:idx_respostas_pendentes_conv"`
	FireAt         time.Time `json:"fire_at" gorm:"column:fire_at;index"`
	CreatedAt      time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (PendingResponse) TableName() string {
	return "respostas_pendentes"
}
