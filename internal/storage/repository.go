package storage

import (
	"context"
	"time"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
)

// AccountRepo defines tenant account storage operations
type AccountRepo interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
	Close(ctx context.Context) error
}

// ChannelRepo defines messaging channel storage operations.
// FindByInstanceKey runs before tenant resolution, it is the lookup that
// tells the webhook layer which tenant a delivery belongs to.
type ChannelRepo interface {
	FindByInstanceKey(ctx context.Context, instanceKey string) (*model.Channel, error)
	FindByID(ctx context.Context, id string) (*model.Channel, error)
	UpdateStatus(ctx context.Context, instanceKey, status, pairingCode, phoneNumber string) error
	Close(ctx context.Context) error
}

// ContactRepo defines contact storage operations
type ContactRepo interface {
	FindOrCreate(ctx context.Context, contact model.Contact) (*model.Contact, error)
	FindByID(ctx context.Context, id string) (*model.Contact, error)
	Update(ctx context.Context, contact model.Contact) error
	Close(ctx context.Context) error
}

// ConversationRepo defines conversation storage operations
type ConversationRepo interface {
	FindOrCreateOpen(ctx context.Context, conv model.Conversation) (*model.Conversation, error)
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	RecordInbound(ctx context.Context, conversationID, preview string, at time.Time) error
	RecordOutbound(ctx context.Context, conversationID, preview string, at time.Time) error
	SetAIEnabled(ctx context.Context, conversationID string, enabled bool) error
	Assign(ctx context.Context, conversationID string, userID, agentID *string) error
	SetStage(ctx context.Context, conversationID, stageID string) error
	CloseConversation(ctx context.Context, conversationID string) error
	Close(ctx context.Context) error
}

// MessageRepo defines message storage operations
type MessageRepo interface {
	// SaveInbound inserts with conflict-ignore on (conversation_id,
	// external_id); stored=false signals a duplicate delivery.
	SaveInbound(ctx context.Context, message model.Message) (stored bool, err error)
	SaveOutbound(ctx context.Context, message model.Message) error
	FindRecentByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	FindLastInbound(ctx context.Context, conversationID string) (*model.Message, error)
	MarkDeleted(ctx context.Context, messageID string) error
	Close(ctx context.Context) error
}

// PendingResponseRepo defines the durable debounce timer operations.
// FindDue is tenant-agnostic: the dispatcher scans across accounts.
type PendingResponseRepo interface {
	Upsert(ctx context.Context, pending model.PendingResponse) error
	FindDue(ctx context.Context, now time.Time, limit int) ([]model.PendingResponse, error)
	FindByConversation(ctx context.Context, conversationID string) (*model.PendingResponse, error)
	DeleteByConversation(ctx context.Context, conversationID string) error
	Close(ctx context.Context) error
}

// AgentRepo defines AI agent configuration storage operations
type AgentRepo interface {
	FindActiveByAccount(ctx context.Context) ([]model.Agent, error)
	FindByID(ctx context.Context, id string) (*model.Agent, error)
	FindStages(ctx context.Context, agentID string) ([]model.AgentStage, error)
	FindFAQs(ctx context.Context, agentID string) ([]model.AgentFAQ, error)
	Close(ctx context.Context) error
}

// DealRepo defines negotiation storage operations
type DealRepo interface {
	FindOrCreateOpen(ctx context.Context, contactID, stageID string) (*model.Deal, error)
	MoveStage(ctx context.Context, dealID, toStageID, movedBy string) error
	FindStageByName(ctx context.Context, name string) (*model.Stage, error)
	Close(ctx context.Context) error
}

// TransferRepo defines transfer audit storage operations
type TransferRepo interface {
	Save(ctx context.Context, transfer model.Transfer) error
	Close(ctx context.Context) error
}
