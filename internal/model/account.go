package model

import (
	"time"
)

// Account is a tenant. Only the columns this service reads are mapped;
// account CRUD belongs to the main CRM application.
type Account struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	Name      string    `json:"name" gorm:"column:name"`
	LLMAPIKey string    `json:"-" gorm:"column:llm_api_key"`
	Timezone  string    `json:"timezone" gorm:"column:timezone"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Account) TableName() string {
	return "contas"
}
