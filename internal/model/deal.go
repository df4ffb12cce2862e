package model

import (
	"time"
)

// Stage is a pipeline stage of the tenant's CRM funnel.
type Stage struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	AccountID string    `json:"account_id" gorm:"column:account_id;index"`
	Name      string    `json:"name" gorm:"column:name"`
	Position  int       `json:"position" gorm:"column:position"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Stage) TableName() string {
	return "estagios"
}

// Deal statuses.
const (
	DealOpen = "open"
	DealWon  = "won"
	DealLost = "lost"
)

// Deal is a negotiation attached to a contact. Stage moves driven by the
// etapa directive land here and in DealHistory.
type Deal struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	AccountID string    `json:"account_id" gorm:"column:account_id;index"`
	ContactID string    `json:"contact_id" gorm:"column:contact_id;index"`
	StageID   string    `json:"stage_id" gorm:"column:stage_id"`
	Status    string    `json:"status" gorm:"column:status;default:open"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Deal) TableName() string {
	return "negociacoes"
}

// DealHistory records one stage move of a deal.
type DealHistory struct {
	ID          int64     `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	DealID      string    `json:"deal_id" gorm:"column:deal_id;index"`
	FromStageID *string   `json:"from_stage_id,omitempty" gorm:"column:from_stage_id"`
	ToStageID   string    `json:"to_stage_id" gorm:"column:to_stage_id"`
	MovedBy     string    `json:"moved_by" gorm:"column:moved_by"` // "ai" or a user ID
	CreatedAt   time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (DealHistory) TableName() string {
	return "negociacao_historico"
}

// Transfer target kinds.
const (
	TransferToHuman = "human"
	TransferToUser  = "user"
	TransferToAI    = "ai"
	TransferToAgent = "agent"
)

// Transfer is an audit row for a conversation handoff.
type Transfer struct {
	ID             int64     `json:"-" gorm:"column:id;primaryKey;autoIncrement"`
	AccountID      string    `json:"account_id" gorm:"column:account_id;index"`
	ConversationID string    `json:"conversation_id" gorm:"column:conversation_id;index"`
	TargetKind     string    `json:"target_kind" gorm:"column:target_kind"`
	TargetID       *string   `json:"target_id,omitempty" gorm:"column:target_id"`
	Reason         string    `json:"reason,omitempty" gorm:"column:reason"`
	CreatedAt      time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (Transfer) TableName() string {
	return "transferencias_atendimento"
}
