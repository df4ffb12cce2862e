package usecase

import (
	"context"
	"sync"
	"time"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/llm"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/notifier"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/provider"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/tenant"
)

const testAccountID = "acc-test-123"

func testContext() context.Context {
	return tenant.WithAccountID(context.Background(), testAccountID)
}

// --- Repository fakes ---

type fakeAccountRepo struct {
	account *model.Account
	err     error
}

func (f *fakeAccountRepo) FindByID(_ context.Context, _ string) (*model.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.account, nil
}

func (f *fakeAccountRepo) Close(_ context.Context) error { return nil }

type fakeChannelRepo struct {
	byInstanceKey map[string]*model.Channel
	byID          map[string]*model.Channel
	statusCalls   []string
}

func (f *fakeChannelRepo) FindByInstanceKey(_ context.Context, instanceKey string) (*model.Channel, error) {
	if ch, ok := f.byInstanceKey[instanceKey]; ok {
		return ch, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeChannelRepo) FindByID(_ context.Context, id string) (*model.Channel, error) {
	if ch, ok := f.byID[id]; ok {
		return ch, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeChannelRepo) UpdateStatus(_ context.Context, instanceKey, status, _, _ string) error {
	f.statusCalls = append(f.statusCalls, instanceKey+":"+status)
	if _, ok := f.byInstanceKey[instanceKey]; !ok {
		return apperrors.ErrNotFound
	}
	return nil
}

func (f *fakeChannelRepo) Close(_ context.Context) error { return nil }

type fakeContactRepo struct {
	contacts  map[string]*model.Contact
	updates   []model.Contact
	updateErr error
}

func (f *fakeContactRepo) FindOrCreate(_ context.Context, contact model.Contact) (*model.Contact, error) {
	for _, c := range f.contacts {
		if c.ExternalKey == contact.ExternalKey {
			return c, nil
		}
	}
	stored := contact
	if f.contacts == nil {
		f.contacts = make(map[string]*model.Contact)
	}
	f.contacts[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeContactRepo) FindByID(_ context.Context, id string) (*model.Contact, error) {
	if c, ok := f.contacts[id]; ok {
		return c, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeContactRepo) Update(_ context.Context, contact model.Contact) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, contact)
	stored := contact
	f.contacts[contact.ID] = &stored
	return nil
}

func (f *fakeContactRepo) Close(_ context.Context) error { return nil }

type assignCall struct {
	userID  *string
	agentID *string
}

type fakeConversationRepo struct {
	conversations map[string]*model.Conversation
	findErr       error
	aiEnabled     []bool
	assigns       []assignCall
	stageSets     []string
	stageErr      error
	closed        []string
	inbound       []string
	outbound      []string
}

func (f *fakeConversationRepo) FindOrCreateOpen(_ context.Context, conv model.Conversation) (*model.Conversation, error) {
	for _, c := range f.conversations {
		if c.ContactID == conv.ContactID && c.IsOpen() {
			return c, nil
		}
	}
	stored := conv
	if stored.ID == "" {
		stored.ID = "conv-" + conv.ContactID
	}
	stored.Status = model.ConversationInProgress
	if f.conversations == nil {
		f.conversations = make(map[string]*model.Conversation)
	}
	f.conversations[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeConversationRepo) FindByID(_ context.Context, id string) (*model.Conversation, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if c, ok := f.conversations[id]; ok {
		return c, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeConversationRepo) RecordInbound(_ context.Context, conversationID, _ string, _ time.Time) error {
	f.inbound = append(f.inbound, conversationID)
	return nil
}

func (f *fakeConversationRepo) RecordOutbound(_ context.Context, conversationID, _ string, _ time.Time) error {
	f.outbound = append(f.outbound, conversationID)
	return nil
}

func (f *fakeConversationRepo) SetAIEnabled(_ context.Context, conversationID string, enabled bool) error {
	f.aiEnabled = append(f.aiEnabled, enabled)
	if c, ok := f.conversations[conversationID]; ok {
		c.AIEnabled = enabled
	}
	return nil
}

func (f *fakeConversationRepo) Assign(_ context.Context, conversationID string, userID, agentID *string) error {
	f.assigns = append(f.assigns, assignCall{userID: userID, agentID: agentID})
	if c, ok := f.conversations[conversationID]; ok {
		c.AssignedUserID = userID
		c.AssignedAgentID = agentID
	}
	return nil
}

func (f *fakeConversationRepo) SetStage(_ context.Context, _ string, stageID string) error {
	if f.stageErr != nil {
		return f.stageErr
	}
	f.stageSets = append(f.stageSets, stageID)
	return nil
}

func (f *fakeConversationRepo) CloseConversation(_ context.Context, conversationID string) error {
	f.closed = append(f.closed, conversationID)
	if c, ok := f.conversations[conversationID]; ok {
		c.Status = model.ConversationClosed
	}
	return nil
}

func (f *fakeConversationRepo) Close(_ context.Context) error { return nil }

type fakeMessageRepo struct {
	stored        bool
	saveErr       error
	savedInbound  []model.Message
	savedOutbound []model.Message
	history       []model.Message
	historyErr    error
	lastInbound   *model.Message
	deleted       []string
}

func (f *fakeMessageRepo) SaveInbound(_ context.Context, message model.Message) (bool, error) {
	if f.saveErr != nil {
		return false, f.saveErr
	}
	f.savedInbound = append(f.savedInbound, message)
	return f.stored, nil
}

func (f *fakeMessageRepo) SaveOutbound(_ context.Context, message model.Message) error {
	f.savedOutbound = append(f.savedOutbound, message)
	return nil
}

func (f *fakeMessageRepo) FindRecentByConversation(_ context.Context, _ string, _ int) ([]model.Message, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeMessageRepo) FindLastInbound(_ context.Context, _ string) (*model.Message, error) {
	if f.lastInbound == nil {
		return nil, apperrors.ErrNotFound
	}
	return f.lastInbound, nil
}

func (f *fakeMessageRepo) MarkDeleted(_ context.Context, messageID string) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessageRepo) Close(_ context.Context) error { return nil }

type fakeAgentRepo struct {
	agents map[string]*model.Agent
	active []model.Agent
	stages []model.AgentStage
	faqs   []model.AgentFAQ
}

func (f *fakeAgentRepo) FindActiveByAccount(_ context.Context) ([]model.Agent, error) {
	return f.active, nil
}

func (f *fakeAgentRepo) FindByID(_ context.Context, id string) (*model.Agent, error) {
	if a, ok := f.agents[id]; ok {
		return a, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeAgentRepo) FindStages(_ context.Context, _ string) ([]model.AgentStage, error) {
	return f.stages, nil
}

func (f *fakeAgentRepo) FindFAQs(_ context.Context, _ string) ([]model.AgentFAQ, error) {
	return f.faqs, nil
}

func (f *fakeAgentRepo) Close(_ context.Context) error { return nil }

type stageMove struct {
	dealID  string
	stageID string
	movedBy string
}

type fakeDealRepo struct {
	stagesByName map[string]*model.Stage
	deal         *model.Deal
	moves        []stageMove
}

func (f *fakeDealRepo) FindOrCreateOpen(_ context.Context, contactID, stageID string) (*model.Deal, error) {
	if f.deal == nil {
		f.deal = &model.Deal{ID: "deal-1", AccountID: testAccountID, ContactID: contactID, StageID: stageID, Status: model.DealOpen}
	}
	return f.deal, nil
}

func (f *fakeDealRepo) MoveStage(_ context.Context, dealID, toStageID, movedBy string) error {
	f.moves = append(f.moves, stageMove{dealID: dealID, stageID: toStageID, movedBy: movedBy})
	return nil
}

func (f *fakeDealRepo) FindStageByName(_ context.Context, name string) (*model.Stage, error) {
	if s, ok := f.stagesByName[name]; ok {
		return s, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeDealRepo) Close(_ context.Context) error { return nil }

type fakeTransferRepo struct {
	saved []model.Transfer
	err   error
}

func (f *fakeTransferRepo) Save(_ context.Context, transfer model.Transfer) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, transfer)
	return nil
}

func (f *fakeTransferRepo) Close(_ context.Context) error { return nil }

// --- Side channel fakes ---

// fakeNotifier records notifications on a channel because the executor
// publishes from a detached goroutine.
type fakeNotifier struct {
	ch chan notifier.Notification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ch: make(chan notifier.Notification, 8)}
}

func (f *fakeNotifier) Notify(_ context.Context, n notifier.Notification) error {
	f.ch <- n
	return nil
}

func (f *fakeNotifier) Close() {}

type fakeLLMClient struct {
	mu       sync.Mutex
	resp     *llm.ChatResponse
	err      error
	requests []llm.ChatRequest
}

func (f *fakeLLMClient) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeLLMClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeSender struct {
	sent    []provider.OutboundMessage
	sendErr error
	revoked []string
}

func (f *fakeSender) Send(_ context.Context, _ *model.Channel, msg provider.OutboundMessage) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, msg)
	return "ext-out-1", nil
}

func (f *fakeSender) DeleteMessage(_ context.Context, _ *model.Channel, externalID, _ string) error {
	f.revoked = append(f.revoked, externalID)
	return nil
}

type armCall struct {
	conversationID string
	wait           time.Duration
}

type fakeScheduler struct {
	armed  []armCall
	armErr error
}

func (f *fakeScheduler) Arm(_ context.Context, conversationID string, wait time.Duration) error {
	if f.armErr != nil {
		return f.armErr
	}
	f.armed = append(f.armed, armCall{conversationID: conversationID, wait: wait})
	return nil
}
