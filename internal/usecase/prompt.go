package usecase

import (
	"fmt"
	"strings"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/llm"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
)

// historyWindow is the number of persisted messages fed to the model.
const historyWindow = 20

// BuildPrompt assembles the ordered turn list for one completion: a
// single system turn (agent instructions, numbered stage scripts, FAQ
// pairs as structured text), then the recent history oldest-first with
// inbound mapped to user and outbound to assistant. When the triggering
// message is not yet visible in the history window it is appended as a
// final user turn so the model always sees what it is replying to.
func BuildPrompt(agent *model.Agent, stages []model.AgentStage, faqs []model.AgentFAQ, history []model.Message, trigger *model.Message) []llm.Message {
	turns := make([]llm.Message, 0, len(history)+2)
	turns = append(turns, llm.Message{
		Role:    llm.RoleSystem,
		Content: buildSystemTurn(agent, stages, faqs),
	})

	triggerSeen := trigger == nil
	for _, msg := range history {
		if msg.Deleted || msg.Type == model.MessageTypeSystem {
			continue
		}
		role := llm.RoleAssistant
		if msg.Direction == model.MessageInbound {
			role = llm.RoleUser
		}
		turns = append(turns, llm.Message{Role: role, Content: msg.Content})
		if trigger != nil && (msg.ID == trigger.ID || (msg.ExternalID != "" && msg.ExternalID == trigger.ExternalID)) {
			triggerSeen = true
		}
	}

	if !triggerSeen {
		turns = append(turns, llm.Message{Role: llm.RoleUser, Content: trigger.Content})
	}
	return turns
}

func buildSystemTurn(agent *model.Agent, stages []model.AgentStage, faqs []model.AgentFAQ) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(agent.Prompt))

	if len(stages) > 0 {
		sb.WriteString("\n\nEtapas do atendimento:")
		for i, stage := range stages {
			sb.WriteString(fmt.Sprintf("\n%d. %s", i+1, stage.Title))
			if stage.Script != "" {
				sb.WriteString(": " + stage.Script)
			}
		}
	}

	if len(faqs) > 0 {
		sb.WriteString("\n\nPerguntas frequentes:")
		for _, faq := range faqs {
			sb.WriteString("\nP: " + faq.Question)
			sb.WriteString("\nR: " + faq.Answer)
		}
	}

	return sb.String()
}
