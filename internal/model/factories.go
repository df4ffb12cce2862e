package model

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Test data factories. Each returns a valid entity with sane defaults;
// override fields in the test after construction.

// NewFakeContact creates a contact for the given account.
func NewFakeContact(accountID string) *Contact {
	return &Contact{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		ExternalKey: fmt.Sprintf("55%s", gofakeit.Numerify("###########")),
		Name:        gofakeit.Name(),
		PushName:    gofakeit.FirstName(),
		Source:      "whatsapp",
	}
}

// NewFakeConversation creates an open conversation for the given contact.
func NewFakeConversation(accountID, contactID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		ContactID:       contactID,
		ChannelID:       uuid.NewString(),
		AIEnabled:       true,
		Status:          ConversationInProgress,
		LastMessageText: gofakeit.Sentence(5),
		LastMessageAt:   &now,
	}
}

// NewFakeInboundMessage creates an inbound text message.
func NewFakeInboundMessage(accountID, conversationID string) *Message {
	return &Message{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		ConversationID: conversationID,
		ExternalID:     gofakeit.UUID(),
		Direction:      MessageInbound,
		Content:        gofakeit.Sentence(8),
		Type:           MessageTypeText,
		SentAt:         time.Now().UTC(),
	}
}

// NewFakeAgent creates an active always-on agent.
func NewFakeAgent(accountID string) *Agent {
	return &Agent{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		Name:             gofakeit.JobTitle(),
		Prompt:           gofakeit.Paragraph(1, 3, 12, " "),
		Model:            "gpt-4o",
		Temperature:      0.7,
		MaxTokens:        1024,
		WaitSeconds:      15,
		Active:           true,
		OutOfHoursPolicy: OutOfHoursGenerateAnyway,
	}
}

// NewFakeChannel creates a connected Evolution channel.
func NewFakeChannel(accountID string) *Channel {
	return &Channel{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Provider:    ProviderEvolution,
		InstanceKey: gofakeit.LetterN(12),
		AccessToken: gofakeit.UUID(),
		PhoneNumber: fmt.Sprintf("55%s", gofakeit.Numerify("###########")),
		Status:      ChannelConnected,
	}
}

// NewFakeInboundEvent creates a normalized inbound text event.
func NewFakeInboundEvent(instanceKey string) *InboundEvent {
	return &InboundEvent{
		ExternalKey:        fmt.Sprintf("55%s", gofakeit.Numerify("###########")),
		ExternalID:         gofakeit.UUID(),
		ChannelInstanceKey: instanceKey,
		PushName:           gofakeit.FirstName(),
		Content:            gofakeit.Sentence(6),
		Type:               MessageTypeText,
		SentAt:             time.Now().UTC(),
	}
}
