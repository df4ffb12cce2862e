package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/llm"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
)

func TestBuildPromptSystemTurn(t *testing.T) {
	agent := &model.Agent{Prompt: "Você é a assistente da loja."}
	stages := []model.AgentStage{
		{Title: "Saudação", Script: "Cumprimente pelo nome"},
		{Title: "Qualificação"},
	}
	faqs := []model.AgentFAQ{
		{Question: "Qual o horário?", Answer: "Das 9h às 18h"},
	}

	turns := BuildPrompt(agent, stages, faqs, nil, nil)

	require.NotEmpty(t, turns)
	system := turns[0]
	assert.Equal(t, llm.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "Você é a assistente da loja.")
	assert.Contains(t, system.Content, "Etapas do atendimento:")
	assert.Contains(t, system.Content, "1. Saudação: Cumprimente pelo nome")
	assert.Contains(t, system.Content, "2. Qualificação")
	assert.Contains(t, system.Content, "Perguntas frequentes:")
	assert.Contains(t, system.Content, "P: Qual o horário?")
	assert.Contains(t, system.Content, "R: Das 9h às 18h")
}

func TestBuildPromptOmitsEmptySections(t *testing.T) {
	agent := &model.Agent{Prompt: "Atenda com simpatia."}

	turns := BuildPrompt(agent, nil, nil, nil, nil)

	require.Len(t, turns, 1)
	assert.Equal(t, "Atenda com simpatia.", turns[0].Content)
}

func TestBuildPromptRoleMapping(t *testing.T) {
	agent := &model.Agent{Prompt: "prompt"}
	history := []model.Message{
		{ID: "m1", Direction: model.MessageInbound, Content: "Oi"},
		{ID: "m2", Direction: model.MessageOutbound, Content: "Olá! Como posso ajudar?"},
		{ID: "m3", Direction: model.MessageOutbound, Content: "transferido", Type: model.MessageTypeSystem},
		{ID: "m4", Direction: model.MessageInbound, Content: "Quero um orçamento", Deleted: true},
		{ID: "m5", Direction: model.MessageInbound, Content: "Quanto custa?"},
	}
	trigger := &history[4]

	turns := BuildPrompt(agent, nil, nil, history, trigger)

	// System + m1 + m2 + m5; system notes and deleted messages are invisible
	// to the model.
	require.Len(t, turns, 4)
	assert.Equal(t, llm.RoleUser, turns[1].Role)
	assert.Equal(t, "Oi", turns[1].Content)
	assert.Equal(t, llm.RoleAssistant, turns[2].Role)
	assert.Equal(t, llm.RoleUser, turns[3].Role)
	assert.Equal(t, "Quanto custa?", turns[3].Content)
}

func TestBuildPromptAppendsUnseenTrigger(t *testing.T) {
	agent := &model.Agent{Prompt: "prompt"}
	history := []model.Message{
		{ID: "m1", Direction: model.MessageInbound, Content: "Oi"},
	}
	trigger := &model.Message{ID: "m2", ExternalID: "ext-2", Direction: model.MessageInbound, Content: "Ainda está aí?"}

	turns := BuildPrompt(agent, nil, nil, history, trigger)

	require.Len(t, turns, 3)
	last := turns[len(turns)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Equal(t, "Ainda está aí?", last.Content)
}

func TestBuildPromptDoesNotDuplicateSeenTrigger(t *testing.T) {
	agent := &model.Agent{Prompt: "prompt"}
	history := []model.Message{
		{ID: "other-id", ExternalID: "ext-9", Direction: model.MessageInbound, Content: "Oi"},
	}
	// Matched by external ID even when the row IDs differ.
	trigger := &model.Message{ID: "m9", ExternalID: "ext-9", Direction: model.MessageInbound, Content: "Oi"}

	turns := BuildPrompt(agent, nil, nil, history, trigger)

	require.Len(t, turns, 2)
}
