package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
)

type ingestFixture struct {
	channels      *fakeChannelRepo
	contacts      *fakeContactRepo
	conversations *fakeConversationRepo
	messages      *fakeMessageRepo
	agents        *fakeAgentRepo
	scheduler     *fakeScheduler
	ingest        *IngestService
	channel       *model.Channel
}

func newIngestFixture(t *testing.T) *ingestFixture {
	logger.Log = zaptest.NewLogger(t)

	channel := &model.Channel{
		ID:          "chan-1",
		AccountID:   testAccountID,
		Provider:    model.ProviderEvolution,
		InstanceKey: "inst-1",
		Status:      model.ChannelConnected,
	}
	f := &ingestFixture{
		channels:      &fakeChannelRepo{byInstanceKey: map[string]*model.Channel{channel.InstanceKey: channel}},
		contacts:      &fakeContactRepo{contacts: map[string]*model.Contact{}},
		conversations: &fakeConversationRepo{conversations: map[string]*model.Conversation{}},
		messages:      &fakeMessageRepo{stored: true},
		agents:        &fakeAgentRepo{},
		scheduler:     &fakeScheduler{},
		channel:       channel,
	}
	f.ingest = NewIngestService(f.channels, f.contacts, f.conversations, f.messages, f.agents, f.scheduler, 15*time.Second)
	return f
}

func textEvent(instanceKey string) model.InboundEvent {
	return model.InboundEvent{
		ExternalKey:        "5511999990000",
		ExternalID:         "wamid-1",
		ChannelInstanceKey: instanceKey,
		PushName:           "Carla",
		Content:            "Oi, quanto custa?",
		Type:               model.MessageTypeText,
		SentAt:             time.Now().UTC(),
	}
}

func TestIngestStoresMessageAndArmsTimer(t *testing.T) {
	f := newIngestFixture(t)

	err := f.ingest.Process(context.Background(), model.ProviderEvolution, textEvent("inst-1"))

	require.NoError(t, err)
	require.Len(t, f.messages.savedInbound, 1)
	saved := f.messages.savedInbound[0]
	assert.Equal(t, testAccountID, saved.AccountID)
	assert.Equal(t, "wamid-1", saved.ExternalID)
	assert.Equal(t, model.MessageInbound, saved.Direction)

	require.Len(t, f.scheduler.armed, 1)
	assert.Equal(t, saved.ConversationID, f.scheduler.armed[0].conversationID)
	assert.Equal(t, 15*time.Second, f.scheduler.armed[0].wait)
	assert.Equal(t, []string{saved.ConversationID}, f.conversations.inbound)
}

func TestIngestUsesAgentWaitWindow(t *testing.T) {
	f := newIngestFixture(t)
	agent := &model.Agent{ID: "agent-1", AccountID: testAccountID, WaitSeconds: 45, Active: true}
	f.agents.agents = map[string]*model.Agent{agent.ID: agent}
	f.agents.active = []model.Agent{*agent}

	err := f.ingest.Process(context.Background(), model.ProviderEvolution, textEvent("inst-1"))

	require.NoError(t, err)
	require.Len(t, f.scheduler.armed, 1)
	assert.Equal(t, 45*time.Second, f.scheduler.armed[0].wait)
	// The fresh conversation picked up the tenant's single active agent.
	require.Len(t, f.conversations.assigns, 1)
	require.NotNil(t, f.conversations.assigns[0].agentID)
	assert.Equal(t, "agent-1", *f.conversations.assigns[0].agentID)
}

func TestIngestFallbackWaitWindow(t *testing.T) {
	f := newIngestFixture(t)
	// With no agent and no configured wait, the debounce window falls
	// back to 5 seconds.
	f.ingest = NewIngestService(f.channels, f.contacts, f.conversations, f.messages, f.agents, f.scheduler, 0)

	err := f.ingest.Process(context.Background(), model.ProviderEvolution, textEvent("inst-1"))

	require.NoError(t, err)
	require.Len(t, f.scheduler.armed, 1)
	assert.Equal(t, 5*time.Second, f.scheduler.armed[0].wait)
}

func TestIngestDuplicateDoesNotArm(t *testing.T) {
	f := newIngestFixture(t)
	f.messages.stored = false

	err := f.ingest.Process(context.Background(), model.ProviderEvolution, textEvent("inst-1"))

	require.NoError(t, err)
	assert.Empty(t, f.scheduler.armed)
	assert.Empty(t, f.conversations.inbound)
}

func TestIngestEchoNeverArms(t *testing.T) {
	f := newIngestFixture(t)
	event := textEvent("inst-1")
	event.FromMe = true

	err := f.ingest.Process(context.Background(), model.ProviderEvolution, event)

	require.NoError(t, err)
	require.Len(t, f.messages.savedInbound, 1)
	assert.Equal(t, model.MessageOutbound, f.messages.savedInbound[0].Direction)
	assert.Empty(t, f.scheduler.armed)
	assert.Len(t, f.conversations.outbound, 1)
}

func TestIngestUnknownChannelIsDropped(t *testing.T) {
	f := newIngestFixture(t)

	err := f.ingest.Process(context.Background(), model.ProviderEvolution, textEvent("inst-unknown"))

	require.NoError(t, err)
	assert.Empty(t, f.messages.savedInbound)
	assert.Empty(t, f.scheduler.armed)
}

func TestIngestProviderMismatchIsDropped(t *testing.T) {
	f := newIngestFixture(t)

	err := f.ingest.Process(context.Background(), model.ProviderMeta, textEvent("inst-1"))

	require.NoError(t, err)
	assert.Empty(t, f.messages.savedInbound)
}

func TestIngestAIDisabledDoesNotArm(t *testing.T) {
	f := newIngestFixture(t)
	conv := &model.Conversation{
		ID:        "conv-existing",
		AccountID: testAccountID,
		ContactID: "contact-pre",
		ChannelID: "chan-1",
		AIEnabled: false,
		Status:    model.ConversationInProgress,
	}
	f.conversations.conversations[conv.ID] = conv
	f.contacts.contacts["contact-pre"] = &model.Contact{
		ID:          "contact-pre",
		AccountID:   testAccountID,
		ExternalKey: "5511999990000",
	}

	err := f.ingest.Process(context.Background(), model.ProviderEvolution, textEvent("inst-1"))

	require.NoError(t, err)
	require.Len(t, f.messages.savedInbound, 1)
	assert.Empty(t, f.scheduler.armed)
}

func TestIngestInvalidEventFails(t *testing.T) {
	f := newIngestFixture(t)
	event := textEvent("inst-1")
	event.ExternalID = ""

	err := f.ingest.Process(context.Background(), model.ProviderEvolution, event)

	assert.Error(t, err)
	assert.Empty(t, f.messages.savedInbound)
}
