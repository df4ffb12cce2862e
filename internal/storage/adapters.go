package storage

import (
	"context"
	"time"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
)

// Adapters bridging the entity-scoped repository interfaces to the shared
// PostgresRepo. The pipeline services depend on the narrow interfaces so
// tests can swap in mocks per entity.

// AccountStorageAdapter adapts PostgresRepo to AccountRepo.
type AccountStorageAdapter struct {
	repo *PostgresRepo
}

func NewAccountStorageAdapter(repo *PostgresRepo) *AccountStorageAdapter {
	return &AccountStorageAdapter{repo: repo}
}

func (a *AccountStorageAdapter) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return a.repo.FindAccountByID(ctx, id)
}

func (a *AccountStorageAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// ChannelStorageAdapter adapts PostgresRepo to ChannelRepo.
type ChannelStorageAdapter struct {
	repo *PostgresRepo
}

func NewChannelStorageAdapter(repo *PostgresRepo) *ChannelStorageAdapter {
	return &ChannelStorageAdapter{repo: repo}
}

func (a *ChannelStorageAdapter) FindByInstanceKey(ctx context.Context, instanceKey string) (*model.Channel, error) {
	return a.repo.FindChannelByInstanceKey(ctx, instanceKey)
}

func (a *ChannelStorageAdapter) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	return a.repo.FindChannelByID(ctx, id)
}

func (a *ChannelStorageAdapter) UpdateStatus(ctx context.Context, instanceKey, status, pairingCode, phoneNumber string) error {
	return a.repo.UpdateChannelStatus(ctx, instanceKey, status, pairingCode, phoneNumber)
}

func (a *ChannelStorageAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// ContactStorageAdapter adapts PostgresRepo to ContactRepo.
type ContactStorageAdapter struct {
	repo *PostgresRepo
}

func NewContactStorageAdapter(repo *PostgresRepo) *ContactStorageAdapter {
	return &ContactStorageAdapter{repo: repo}
}

func (a *ContactStorageAdapter) FindOrCreate(ctx context.Context, contact model.Contact) (*model.Contact, error) {
	return a.repo.FindOrCreateContact(ctx, contact)
}

func (a *ContactStorageAdapter) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	return a.repo.FindContactByID(ctx, id)
}

func (a *ContactStorageAdapter) Update(ctx context.Context, contact model.Contact) error {
	return a.repo.UpdateContact(ctx, contact)
}

func (a *ContactStorageAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// ConversationStorageAdapter adapts PostgresRepo to ConversationRepo.
type ConversationStorageAdapter struct {
	repo *PostgresRepo
}

func NewConversationStorageAdapter(repo *PostgresRepo) *ConversationStorageAdapter {
	return &ConversationStorageAdapter{repo: repo}
}

func (a *ConversationStorageAdapter) FindOrCreateOpen(ctx context.Context, conv model.Conversation) (*model.Conversation, error) {
	return a.repo.FindOrCreateOpenConversation(ctx, conv)
}

func (a *ConversationStorageAdapter) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	return a.repo.FindConversationByID(ctx, id)
}

func (a *ConversationStorageAdapter) RecordInbound(ctx context.Context, conversationID, preview string, at time.Time) error {
	return a.repo.RecordInboundOnConversation(ctx, conversationID, preview, at)
}

func (a *ConversationStorageAdapter) RecordOutbound(ctx context.Context, conversationID, preview string, at time.Time) error {
	return a.repo.RecordOutboundOnConversation(ctx, conversationID, preview, at)
}

func (a *ConversationStorageAdapter) SetAIEnabled(ctx context.Context, conversationID string, enabled bool) error {
	return a.repo.SetConversationAIEnabled(ctx, conversationID, enabled)
}

func (a *ConversationStorageAdapter) Assign(ctx context.Context, conversationID string, userID, agentID *string) error {
	return a.repo.AssignConversation(ctx, conversationID, userID, agentID)
}

func (a *ConversationStorageAdapter) SetStage(ctx context.Context, conversationID, stageID string) error {
	return a.repo.SetConversationStage(ctx, conversationID, stageID)
}

func (a *ConversationStorageAdapter) CloseConversation(ctx context.Context, conversationID string) error {
	return a.repo.CloseConversation(ctx, conversationID)
}

func (a *ConversationStorageAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// MessageStorageAdapter adapts PostgresRepo to MessageRepo.
type MessageStorageAdapter struct {
	repo *PostgresRepo
}

func NewMessageStorageAdapter(repo *PostgresRepo) *MessageStorageAdapter {
	return &MessageStorageAdapter{repo: repo}
}

func (a *MessageStorageAdapter) SaveInbound(ctx context.Context, message model.Message) (bool, error) {
	return a.repo.SaveInboundMessage(ctx, message)
}

func (a *MessageStorageAdapter) SaveOutbound(ctx context.Context, message model.Message) error {
	return a.repo.SaveOutboundMessage(ctx, message)
}

func (a *MessageStorageAdapter) FindRecentByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	return a.repo.FindRecentMessagesByConversation(ctx, conversationID, limit)
}

func (a *MessageStorageAdapter) FindLastInbound(ctx context.Context, conversationID string) (*model.Message, error) {
	return a.repo.FindLastInboundMessage(ctx, conversationID)
}

func (a *MessageStorageAdapter) MarkDeleted(ctx context.Context, messageID string) error {
	return a.repo.MarkMessageDeleted(ctx, messageID)
}

func (a *MessageStorageAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// PendingResponseStorageAdapter adapts PostgresRepo to PendingResponseRepo.
type PendingResponseStorageAdapter struct {
	repo *PostgresRepo
}

func NewPendingResponseStorageAdapter(repo *PostgresRepo) *PendingResponseStorageAdapter {
	return &PendingResponseStorageAdapter{repo: repo}
}

func (a *PendingResponseStorageAdapter) Upsert(ctx context.Context, pending model.PendingResponse) error {
	return a.repo.UpsertPendingResponse(ctx, pending)
}

func (a *PendingResponseStorageAdapter) FindDue(ctx context.Context, now time.Time, limit int) ([]model.PendingResponse, error) {
	return a.repo.FindDuePendingResponses(ctx, now, limit)
}

func (a *PendingResponseStorageAdapter) FindByConversation(ctx context.Context, conversationID string) (*model.PendingResponse, error) {
	return a.repo.FindPendingResponseByConversation(ctx, conversationID)
}

func (a *PendingResponseStorageAdapter) DeleteByConversation(ctx context.Context, conversationID string) error {
	return a.repo.DeletePendingResponse(ctx, conversationID)
}

func (a *PendingResponseStorageAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// AgentStorageAdapter adapts PostgresRepo to AgentRepo.
type AgentStorageAdapter struct {
	repo *PostgresRepo
}

func NewAgentStorageAdapter(repo *PostgresRepo) *AgentStorageAdapter {
	return &AgentStorageAdapter{repo: repo}
}

func (a *AgentStorageAdapter) FindActiveByAccount(ctx context.Context) ([]model.Agent, error) {
	return a.repo.FindActiveAgentsByAccount(ctx)
}

func (a *AgentStorageAdapter) FindByID(ctx context.Context, id string) (*model.Agent, error) {
	return a.repo.FindAgentByID(ctx, id)
}

func (a *AgentStorageAdapter) FindStages(ctx context.Context, agentID string) ([]model.AgentStage, error) {
	return a.repo.FindAgentStages(ctx, agentID)
}

func (a *AgentStorageAdapter) FindFAQs(ctx context.Context, agentID string) ([]model.AgentFAQ, error) {
	return a.repo.FindAgentFAQs(ctx, agentID)
}

func (a *AgentStorageAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// DealStorageAdapter adapts PostgresRepo to DealRepo.
type DealStorageAdapter struct {
	repo *PostgresRepo
}

func NewDealStorageAdapter(repo *PostgresRepo) *DealStorageAdapter {
	return &DealStorageAdapter{repo: repo}
}

func (a *DealStorageAdapter) FindOrCreateOpen(ctx context.Context, contactID, stageID string) (*model.Deal, error) {
	return a.repo.FindOrCreateOpenDeal(ctx, contactID, stageID)
}

func (a *DealStorageAdapter) MoveStage(ctx context.Context, dealID, toStageID, movedBy string) error {
	return a.repo.MoveDealStage(ctx, dealID, toStageID, movedBy)
}

func (a *DealStorageAdapter) FindStageByName(ctx context.Context, name string) (*model.Stage, error) {
	return a.repo.FindStageByName(ctx, name)
}

func (a *DealStorageAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}

// TransferStorageAdapter adapts PostgresRepo to TransferRepo.
type TransferStorageAdapter struct {
	repo *PostgresRepo
}

func NewTransferStorageAdapter(repo *PostgresRepo) *TransferStorageAdapter {
	return &TransferStorageAdapter{repo: repo}
}

func (a *TransferStorageAdapter) Save(ctx context.Context, transfer model.Transfer) error {
	return a.repo.SaveTransfer(ctx, transfer)
}

func (a *TransferStorageAdapter) Close(ctx context.Context) error {
	return a.repo.Close(ctx)
}
