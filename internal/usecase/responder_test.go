package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/apperrors"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/llm"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/provider"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
)

type responderFixture struct {
	accounts      *fakeAccountRepo
	agents        *fakeAgentRepo
	channels      *fakeChannelRepo
	contacts      *fakeContactRepo
	conversations *fakeConversationRepo
	messages      *fakeMessageRepo
	llm           *fakeLLMClient
	sender        *fakeSender
	deals         *fakeDealRepo
	responder     *ResponderService
	agent         *model.Agent
	conv          *model.Conversation
}

func newResponderFixture(t *testing.T) *responderFixture {
	logger.Log = zaptest.NewLogger(t)

	agent := &model.Agent{
		ID:          "agent-1",
		AccountID:   testAccountID,
		Prompt:      "Você é a assistente da loja.",
		Model:       "gpt-4o",
		Temperature: 0.7,
		MaxTokens:   1024,
		Active:      true,
	}
	contact := &model.Contact{ID: "contact-1", AccountID: testAccountID, ExternalKey: "5511999990000"}
	channel := &model.Channel{ID: "chan-1", AccountID: testAccountID, Provider: model.ProviderEvolution, InstanceKey: "inst-1", Status: model.ChannelConnected}
	agentID := agent.ID
	conv := &model.Conversation{
		ID:              "conv-1",
		AccountID:       testAccountID,
		ContactID:       contact.ID,
		ChannelID:       channel.ID,
		AIEnabled:       true,
		AssignedAgentID: &agentID,
		Status:          model.ConversationInProgress,
	}

	f := &responderFixture{
		accounts:      &fakeAccountRepo{account: &model.Account{ID: testAccountID, LLMAPIKey: "sk-test"}},
		agents:        &fakeAgentRepo{agents: map[string]*model.Agent{agent.ID: agent}},
		channels:      &fakeChannelRepo{byID: map[string]*model.Channel{channel.ID: channel}},
		contacts:      &fakeContactRepo{contacts: map[string]*model.Contact{contact.ID: contact}},
		conversations: &fakeConversationRepo{conversations: map[string]*model.Conversation{conv.ID: conv}},
		messages: &fakeMessageRepo{
			history:     []model.Message{{ID: "m1", Direction: model.MessageInbound, Content: "Oi"}},
			lastInbound: &model.Message{ID: "m1", Direction: model.MessageInbound, Content: "Oi"},
		},
		llm:    &fakeLLMClient{resp: &llm.ChatResponse{Content: "Olá! Como posso ajudar?"}},
		sender: &fakeSender{},
		deals:  &fakeDealRepo{stagesByName: map[string]*model.Stage{}},
		agent:  agent,
		conv:   conv,
	}

	providers := provider.NewRegistry()
	providers.Register(model.ProviderEvolution, f.sender)

	delivery := NewDeliveryService(f.channels, f.contacts, f.conversations, f.messages, providers)
	executor := NewDirectiveExecutor(f.contacts, f.conversations, f.messages, f.agents, f.deals, &fakeTransferRepo{}, newFakeNotifier())
	f.responder = NewResponderService(f.accounts, f.agents, f.conversations, f.messages, f.llm, executor, delivery)
	return f
}

// alwaysOutOfHours pins the agent outside its window regardless of the
// wall clock: every day is active but the window is empty.
func alwaysOutOfHours(agent *model.Agent) {
	agent.ActiveDays = "0,1,2,3,4,5,6"
	agent.StartMinutes = 0
	agent.EndMinutes = 0
}

func TestResponderRepliesAndPersistsOutbound(t *testing.T) {
	f := newResponderFixture(t)

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeReplied, outcome)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "Olá! Como posso ajudar?", f.sender.sent[0].Content)
	assert.Equal(t, "5511999990000", f.sender.sent[0].To)
	require.Len(t, f.messages.savedOutbound, 1)
	assert.True(t, f.messages.savedOutbound[0].FromAI)
	assert.Equal(t, "ext-out-1", f.messages.savedOutbound[0].ExternalID)

	require.Equal(t, 1, f.llm.callCount())
	req := f.llm.requests[0]
	assert.Equal(t, "sk-test", req.APIKey)
	assert.Equal(t, "gpt-4o", req.Model)
}

func TestResponderExecutesDirectivesFromCompletion(t *testing.T) {
	f := newResponderFixture(t)
	f.llm.resp = &llm.ChatResponse{Content: "Perfeito, anotado! @tag:vip"}

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeReplied, outcome)
	require.Len(t, f.sender.sent, 1)
	// The contact never sees the directive token.
	assert.Equal(t, "Perfeito, anotado!", f.sender.sent[0].Content)
	assert.Equal(t, []string{"vip"}, f.contacts.contacts["contact-1"].TagList())
}

func TestResponderDirectivesRunWhenDeliveryFails(t *testing.T) {
	f := newResponderFixture(t)
	f.llm.resp = &llm.ChatResponse{Content: "Vou encaminhar @transferir:humano"}
	f.sender.sendErr = apperrors.ErrProvider

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeReplied, outcome)
	assert.False(t, f.conv.AIEnabled)
}

func TestResponderSkipsClosedConversation(t *testing.T) {
	f := newResponderFixture(t)
	f.conv.Status = model.ConversationClosed

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, f.llm.callCount())
}

func TestResponderSkipsWhenAIDisabled(t *testing.T) {
	f := newResponderFixture(t)
	f.conv.AIEnabled = false

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, f.llm.callCount())
}

func TestResponderSkipsWithoutCredential(t *testing.T) {
	f := newResponderFixture(t)
	f.accounts.account.LLMAPIKey = ""

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, f.llm.callCount())
}

func TestResponderFallsBackToSingleActiveAgent(t *testing.T) {
	f := newResponderFixture(t)
	f.conv.AssignedAgentID = nil
	f.agents.active = []model.Agent{*f.agent}

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeReplied, outcome)
}

func TestResponderSkipsWhenAgentAmbiguous(t *testing.T) {
	f := newResponderFixture(t)
	f.conv.AssignedAgentID = nil
	f.agents.active = []model.Agent{*f.agent, {ID: "agent-2", Active: true}}

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, f.llm.callCount())
}

func TestResponderOutOfHoursSkip(t *testing.T) {
	f := newResponderFixture(t)
	alwaysOutOfHours(f.agent)
	f.agent.OutOfHoursPolicy = model.OutOfHoursSkip

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, f.llm.callCount())
}

func TestResponderOutOfHoursCannedMessage(t *testing.T) {
	f := newResponderFixture(t)
	alwaysOutOfHours(f.agent)
	f.agent.OutOfHoursPolicy = model.OutOfHoursCannedMessage
	f.agent.OutOfHoursReply = "Estamos fora do horário, retornamos amanhã."

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeCanned, outcome)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "Estamos fora do horário, retornamos amanhã.", f.sender.sent[0].Content)
	assert.Zero(t, f.llm.callCount())
}

func TestResponderOutOfHoursCannedWithoutTextGenerates(t *testing.T) {
	f := newResponderFixture(t)
	alwaysOutOfHours(f.agent)
	f.agent.OutOfHoursPolicy = model.OutOfHoursCannedMessage
	f.agent.OutOfHoursReply = ""

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeReplied, outcome)
	assert.Equal(t, 1, f.llm.callCount())
}

func TestResponderOutOfHoursGenerateAnyway(t *testing.T) {
	f := newResponderFixture(t)
	alwaysOutOfHours(f.agent)
	f.agent.OutOfHoursPolicy = model.OutOfHoursGenerateAnyway

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeReplied, outcome)
	assert.Equal(t, 1, f.llm.callCount())
}

func TestResponderModelFailureIsError(t *testing.T) {
	f := newResponderFixture(t)
	f.llm.err = apperrors.ErrProvider

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeError, outcome)
	assert.Empty(t, f.sender.sent)
}

func TestResponderEmptyCompletionIsError(t *testing.T) {
	f := newResponderFixture(t)
	f.llm.resp = &llm.ChatResponse{Content: "", FinishReason: "length"}

	outcome := f.responder.Respond(testContext(), "conv-1")

	assert.Equal(t, OutcomeError, outcome)
	assert.Empty(t, f.sender.sent)
}

func TestResponderWithoutTenantContext(t *testing.T) {
	f := newResponderFixture(t)

	outcome := f.responder.Respond(context.Background(), "conv-1")

	assert.Equal(t, OutcomeError, outcome)
}
