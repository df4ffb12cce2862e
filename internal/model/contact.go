package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Contact represents a CRM contact, keyed per tenant by the external
// provider handle (phone number for WhatsApp, scoped user ID for Instagram).
type Contact struct {
	ID          string         `json:"id" gorm:"column:id;primaryKey"`
	AccountID   string         `json:"account_id" gorm:"column:account_id;index:idx_contatos_account_key,unique,priority:1"`
	ExternalKey string         `json:"external_key" gorm:"column:external_key;index:idx_contatos_account_key,unique,priority:2"`
	Name        string         `json:"name,omitempty" gorm:"column:name"`
	PushName    string         `json:"push_name,omitempty" gorm:"column:push_name"`
	AvatarURL   string         `json:"avatar_url,omitempty" gorm:"column:avatar_url"`
	Tags        datatypes.JSON `json:"tags,omitempty" gorm:"type:jsonb;column:tags"`
	Metadata    datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb;column:metadata"`
	ProductID   *string        `json:"product_id,omitempty" gorm:"column:product_id"`
	Source      string         `json:"source,omitempty" gorm:"column:source"`
	CreatedAt   time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Contact) TableName() string {
	return "contatos"
}

// GetUpdatableFields returns the column names that can be updated during an
// ON CONFLICT clause. Excludes primary key, tenant key and creation timestamp.
func (c *Contact) GetUpdatableFields() []string {
	return []string{"push_name", "avatar_url", "updated_at"}
}

// TagList decodes the jsonb tags column into a string slice.
// A missing or malformed column yields an empty list.
func (c *Contact) TagList() []string {
	if len(c.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(c.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

// AddTag appends a tag preserving order and uniqueness. Returns false when
// the tag was already present.
func (c *Contact) AddTag(tag string) bool {
	tags := c.TagList()
	for _, t := range tags {
		if t == tag {
			return false
		}
	}
	tags = append(tags, tag)
	data, err := json.Marshal(tags)
	if err != nil {
		return false
	}
	c.Tags = data
	return true
}
