package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/notifier"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/observer"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/storage"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/tenant"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// Directive kinds. One kind per side effect.
const (
	DirectiveSetName       = "nome"
	DirectiveTag           = "tag"
	DirectiveStage         = "etapa"
	DirectiveTransferHuman = "transferir_humano"
	DirectiveTransferUser  = "transferir_usuario"
	DirectiveTransferAI    = "transferir_ia"
	DirectiveTransferAgent = "transferir_agente"
	DirectiveSource        = "fonte"
	DirectiveNotify        = "notificar"
	DirectiveProduct       = "produto"
	DirectiveTerminate     = "finalizar"
)

// Directive is a parsed @keyword:value token. Raw preserves the exact
// matched text so directives round-trip through clean text.
type Directive struct {
	Kind  string
	Value string
	Raw   string
}

// DirectiveResult is the per-directive outcome. Execution is independent,
// one failure never aborts the batch.
type DirectiveResult struct {
	Directive Directive
	Err       error
}

// directivePattern matches @keyword optionally followed by :value, where
// value runs to the next whitespace or @. Trailing sentence punctuation is
// trimmed from the value afterwards.
var directivePattern = regexp.MustCompile(`@(nome|tag|etapa|transferir|fonte|notificar|produto|finalizar)(?::([^\s@]+))?`)

// ParseDirectives scans free text left-to-right for directive tokens.
// It returns the clean text with tokens stripped and whitespace collapsed,
// plus the parsed directives in order. Malformed tokens (a keyword that
// needs a value but has none, or an unknown transferir sub-form) stay in
// the text as literals.
func ParseDirectives(text string) (clean string, directives []Directive) {
	matches := directivePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(text), nil
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		raw := text[m[0]:m[1]]
		keyword := text[m[2]:m[3]]
		value := ""
		if m[4] >= 0 {
			value = strings.TrimRight(text[m[4]:m[5]], ".,;:!?")
		}

		directive, ok := buildDirective(keyword, value, raw)
		if !ok {
			// Leave the literal text in place.
			sb.WriteString(text[last:m[1]])
			last = m[1]
			continue
		}

		sb.WriteString(text[last:m[0]])
		last = m[1]
		directives = append(directives, directive)
	}
	sb.WriteString(text[last:])

	clean = strings.Join(strings.Fields(sb.String()), " ")
	return clean, directives
}

func buildDirective(keyword, value, raw string) (Directive, bool) {
	switch keyword {
	case "finalizar":
		return Directive{Kind: DirectiveTerminate, Raw: raw}, true
	case "transferir":
		switch {
		case value == "humano":
			return Directive{Kind: DirectiveTransferHuman, Raw: raw}, true
		case value == "ia":
			return Directive{Kind: DirectiveTransferAI, Raw: raw}, true
		case strings.HasPrefix(value, "usuario:") && len(value) > len("usuario:"):
			return Directive{Kind: DirectiveTransferUser, Value: value[len("usuario:"):], Raw: raw}, true
		case strings.HasPrefix(value, "agente:") && len(value) > len("agente:"):
			return Directive{Kind: DirectiveTransferAgent, Value: value[len("agente:"):], Raw: raw}, true
		default:
			return Directive{}, false
		}
	case "nome", "tag", "etapa", "fonte", "notificar", "produto":
		if value == "" {
			return Directive{}, false
		}
		kind := keyword
		return Directive{Kind: kind, Value: value, Raw: raw}, true
	default:
		return Directive{}, false
	}
}

// ResponderTrigger re-invokes the response cycle after a transfer back to
// the AI. Implemented by ResponderService; the indirection keeps the
// executor constructible in tests without a model client.
type ResponderTrigger interface {
	TriggerNow(ctx context.Context, conversationID string)
}

// DirectiveExecutor applies parsed directives to the CRM state.
type DirectiveExecutor struct {
	contactRepo      storage.ContactRepo
	conversationRepo storage.ConversationRepo
	messageRepo      storage.MessageRepo
	agentRepo        storage.AgentRepo
	dealRepo         storage.DealRepo
	transferRepo     storage.TransferRepo
	notifier         notifier.NotifierInterface
	trigger          ResponderTrigger
}

// NewDirectiveExecutor wires the executor. The responder trigger is set
// afterwards via SetTrigger because the responder itself depends on the
// executor.
func NewDirectiveExecutor(
	contactRepo storage.ContactRepo,
	conversationRepo storage.ConversationRepo,
	messageRepo storage.MessageRepo,
	agentRepo storage.AgentRepo,
	dealRepo storage.DealRepo,
	transferRepo storage.TransferRepo,
	notif notifier.NotifierInterface,
) *DirectiveExecutor {
	return &DirectiveExecutor{
		contactRepo:      contactRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		agentRepo:        agentRepo,
		dealRepo:         dealRepo,
		transferRepo:     transferRepo,
		notifier:         notif,
	}
}

// SetTrigger binds the responder used for transfer-to-AI re-invocation.
func (e *DirectiveExecutor) SetTrigger(t ResponderTrigger) {
	e.trigger = t
}

// Execute applies each directive in order, collecting per-directive
// results. allowRetrigger guards the transfer-to-AI self-invocation so a
// re-triggered cycle cannot recurse.
func (e *DirectiveExecutor) Execute(ctx context.Context, conv *model.Conversation, directives []Directive, allowRetrigger bool) []DirectiveResult {
	log := logger.FromContext(ctx).With(zap.String("conversation_id", conv.ID))

	results := make([]DirectiveResult, 0, len(directives))
	retriggerAI := false
	for _, d := range directives {
		err := e.apply(ctx, conv, d)
		if err != nil {
			log.Warn("Directive execution failed",
				zap.String("kind", d.Kind),
				zap.String("value", d.Value),
				zap.Error(err),
			)
		}
		result := "success"
		if err != nil {
			result = "error"
		}
		observer.IncDirectiveExecuted(conv.AccountID, result)
		results = append(results, DirectiveResult{Directive: d, Err: err})

		if err == nil && (d.Kind == DirectiveTransferAI || d.Kind == DirectiveTransferAgent) {
			retriggerAI = true
		}
	}

	if retriggerAI && allowRetrigger && e.trigger != nil {
		log.Info("Transfer back to AI, re-invoking responder")
		e.trigger.TriggerNow(ctx, conv.ID)
	}

	return results
}

func (e *DirectiveExecutor) apply(ctx context.Context, conv *model.Conversation, d Directive) error {
	switch d.Kind {
	case DirectiveSetName:
		return e.renameContact(ctx, conv.ContactID, d.Value)
	case DirectiveTag:
		return e.tagContact(ctx, conv.ContactID, d.Value)
	case DirectiveStage:
		return e.moveStage(ctx, conv, d.Value)
	case DirectiveTransferHuman:
		return e.transfer(ctx, conv, model.TransferToHuman, nil)
	case DirectiveTransferUser:
		return e.transfer(ctx, conv, model.TransferToUser, &d.Value)
	case DirectiveTransferAI:
		return e.transfer(ctx, conv, model.TransferToAI, nil)
	case DirectiveTransferAgent:
		return e.transfer(ctx, conv, model.TransferToAgent, &d.Value)
	case DirectiveSource:
		return e.setSource(ctx, conv.ContactID, d.Value)
	case DirectiveNotify:
		return e.notify(ctx, conv, d.Value)
	case DirectiveProduct:
		return e.setProduct(ctx, conv.ContactID, d.Value)
	case DirectiveTerminate:
		return e.terminate(ctx, conv)
	default:
		return fmt.Errorf("unknown directive kind %q", d.Kind)
	}
}

func (e *DirectiveExecutor) renameContact(ctx context.Context, contactID, name string) error {
	contact, err := e.contactRepo.FindByID(ctx, contactID)
	if err != nil {
		return err
	}
	contact.Name = name
	return e.contactRepo.Update(ctx, *contact)
}

// tagContact appends with set semantics; a tag already present is a no-op.
func (e *DirectiveExecutor) tagContact(ctx context.Context, contactID, tag string) error {
	contact, err := e.contactRepo.FindByID(ctx, contactID)
	if err != nil {
		return err
	}
	if !contact.AddTag(tag) {
		return nil
	}
	return e.contactRepo.Update(ctx, *contact)
}

// moveStage resolves the stage by name (case-insensitive), finds or
// creates the contact's open deal and records the move.
func (e *DirectiveExecutor) moveStage(ctx context.Context, conv *model.Conversation, stageName string) error {
	stage, err := e.dealRepo.FindStageByName(ctx, stageName)
	if err != nil {
		return fmt.Errorf("stage %q: %w", stageName, err)
	}
	deal, err := e.dealRepo.FindOrCreateOpen(ctx, conv.ContactID, stage.ID)
	if err != nil {
		return err
	}
	if err := e.dealRepo.MoveStage(ctx, deal.ID, stage.ID, "ai"); err != nil {
		return err
	}
	return e.conversationRepo.SetStage(ctx, conv.ID, stage.ID)
}

func (e *DirectiveExecutor) transfer(ctx context.Context, conv *model.Conversation, targetKind string, targetID *string) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}

	toAI := targetKind == model.TransferToAI || targetKind == model.TransferToAgent
	if err := e.conversationRepo.SetAIEnabled(ctx, conv.ID, toAI); err != nil {
		return err
	}
	conv.AIEnabled = toAI

	var userID, agentID *string
	note := "Conversa transferida para atendimento humano"
	switch targetKind {
	case model.TransferToUser:
		userID = targetID
	case model.TransferToAI:
		note = "Conversa transferida para o agente de IA"
	case model.TransferToAgent:
		agentID = targetID
		note = "Conversa transferida para o agente de IA"
	}
	if userID != nil || agentID != nil {
		if err := e.conversationRepo.Assign(ctx, conv.ID, userID, agentID); err != nil {
			return err
		}
		conv.AssignedUserID = userID
		conv.AssignedAgentID = agentID
	}

	if err := e.transferRepo.Save(ctx, model.Transfer{
		AccountID:      accountID,
		ConversationID: conv.ID,
		TargetKind:     targetKind,
		TargetID:       targetID,
	}); err != nil {
		return err
	}

	return e.emitSystemMessage(ctx, conv, note)
}

func (e *DirectiveExecutor) setSource(ctx context.Context, contactID, source string) error {
	contact, err := e.contactRepo.FindByID(ctx, contactID)
	if err != nil {
		return err
	}
	contact.Source = source
	return e.contactRepo.Update(ctx, *contact)
}

// notify publishes to the side channel. Publishing happens in a detached
// goroutine so a slow broker never blocks the pipeline.
func (e *DirectiveExecutor) notify(ctx context.Context, conv *model.Conversation, reason string) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	notification := notifier.Notification{
		AccountID:      accountID,
		ConversationID: conv.ID,
		ContactID:      conv.ContactID,
		Reason:         reason,
		OccurredAt:     utils.Now(),
	}

	log := logger.FromContext(ctx)
	utils.SafeGo(func() {
		bgCtx := logger.WithLogger(context.Background(), log)
		if pubErr := e.notifier.Notify(bgCtx, notification); pubErr != nil {
			log.Warn("Failed to publish notification",
				zap.String("conversation_id", conv.ID),
				zap.Error(pubErr),
			)
		}
	}, nil)
	return nil
}

func (e *DirectiveExecutor) setProduct(ctx context.Context, contactID, productID string) error {
	contact, err := e.contactRepo.FindByID(ctx, contactID)
	if err != nil {
		return err
	}
	contact.ProductID = &productID
	return e.contactRepo.Update(ctx, *contact)
}

func (e *DirectiveExecutor) terminate(ctx context.Context, conv *model.Conversation) error {
	if err := e.conversationRepo.SetAIEnabled(ctx, conv.ID, false); err != nil {
		return err
	}
	if err := e.conversationRepo.CloseConversation(ctx, conv.ID); err != nil {
		return err
	}
	conv.AIEnabled = false
	conv.Status = model.ConversationClosed
	return nil
}

// emitSystemMessage persists an internal note visible to operators. It is
// never delivered to the contact.
func (e *DirectiveExecutor) emitSystemMessage(ctx context.Context, conv *model.Conversation, text string) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return err
	}
	return e.messageRepo.SaveOutbound(ctx, model.Message{
		AccountID:      accountID,
		ConversationID: conv.ID,
		Direction:      model.MessageOutbound,
		Content:        text,
		Type:           model.MessageTypeSystem,
		SentAt:         utils.Now(),
	})
}
