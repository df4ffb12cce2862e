package usecase

import (
	"context"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"gitlab.com/vendalink/api/crm-inbound-processor/internal/llm"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/model"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/observer"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/storage"
	"gitlab.com/vendalink/api/crm-inbound-processor/internal/tenant"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/logger"
	"gitlab.com/vendalink/api/crm-inbound-processor/pkg/utils"
)

// Response cycle outcomes. Every cycle resolves to exactly one.
const (
	OutcomeReplied = "replied"
	OutcomeSkipped = "skipped"
	OutcomeCanned  = "canned"
	OutcomeError   = "error"
)

// ResponderService runs one AI response cycle for a conversation. The
// precondition chain is a series of short circuits, each a soft negative
// outcome rather than an error: missing credential, no single active
// agent, closed or human-owned conversation all end the cycle quietly.
type ResponderService struct {
	accountRepo      storage.AccountRepo
	agentRepo        storage.AgentRepo
	conversationRepo storage.ConversationRepo
	messageRepo      storage.MessageRepo
	llmClient        llm.ClientInterface
	executor         *DirectiveExecutor
	delivery         *DeliveryService
}

func NewResponderService(
	accountRepo storage.AccountRepo,
	agentRepo storage.AgentRepo,
	conversationRepo storage.ConversationRepo,
	messageRepo storage.MessageRepo,
	llmClient llm.ClientInterface,
	executor *DirectiveExecutor,
	delivery *DeliveryService,
) *ResponderService {
	s := &ResponderService{
		accountRepo:      accountRepo,
		agentRepo:        agentRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		llmClient:        llmClient,
		executor:         executor,
		delivery:         delivery,
	}
	executor.SetTrigger(s)
	return s
}

// Respond runs the full cycle: preconditions, business-hours gate,
// prompt assembly, model call, directive execution, delivery. The
// returned outcome is for metrics and the dispatcher's logging; errors
// never propagate past the caller.
func (s *ResponderService) Respond(ctx context.Context, conversationID string) string {
	return s.respond(ctx, conversationID, true)
}

// TriggerNow is the transfer-to-AI re-invocation. Retriggering is
// disabled inside the nested cycle so a directive loop cannot recurse.
func (s *ResponderService) TriggerNow(ctx context.Context, conversationID string) {
	s.respond(ctx, conversationID, false)
}

func (s *ResponderService) respond(ctx context.Context, conversationID string, allowRetrigger bool) string {
	start := utils.Now()
	log := logger.FromContext(ctx).With(zap.String("conversation_id", conversationID))
	ctx = logger.WithLogger(ctx, log)

	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		log.Error("Response cycle without tenant context", zap.Error(err))
		return OutcomeError
	}

	outcome := s.run(ctx, accountID, conversationID, allowRetrigger)

	observer.IncResponsesFired(accountID, outcome)
	observer.ObserveResponderDuration(accountID, time.Since(start))
	log.Info("Response cycle finished",
		zap.String("outcome", outcome),
		zap.Duration("duration", time.Since(start)),
	)
	return outcome
}

func (s *ResponderService) run(ctx context.Context, accountID, conversationID string, allowRetrigger bool) string {
	log := logger.FromContext(ctx)

	conv, err := s.conversationRepo.FindByID(ctx, conversationID)
	if err != nil {
		log.Warn("Conversation lookup failed", zap.Error(err))
		return OutcomeError
	}
	if !conv.IsOpen() || !conv.AIEnabled {
		log.Debug("Conversation closed or AI disabled, skipping")
		return OutcomeSkipped
	}

	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		log.Warn("Account lookup failed", zap.Error(err))
		return OutcomeError
	}
	if account.LLMAPIKey == "" {
		log.Debug("No model credential configured for account, skipping")
		return OutcomeSkipped
	}

	agent, ok := s.resolveAgent(ctx, conv)
	if !ok {
		return OutcomeSkipped
	}

	if !agent.InBusinessWindow(utils.Now()) {
		switch agent.OutOfHoursPolicy {
		case model.OutOfHoursSkip:
			log.Debug("Outside business hours, policy skip")
			return OutcomeSkipped
		case model.OutOfHoursCannedMessage:
			if agent.OutOfHoursReply != "" {
				if err := s.delivery.SendReply(ctx, conv, agent.OutOfHoursReply, true); err != nil {
					return OutcomeError
				}
				return OutcomeCanned
			}
			// No canned text configured, fall through to generation.
		case model.OutOfHoursGenerateAnyway:
		}
	}

	completion, ok := s.generate(ctx, account, agent, conv)
	if !ok {
		return OutcomeError
	}

	clean, directives := ParseDirectives(completion)
	if clean != "" {
		if err := s.delivery.SendReply(ctx, conv, clean, true); err != nil {
			// Directives still run: side effects are independent of the
			// transport outcome.
			log.Warn("Reply delivery failed", zap.Error(err))
		}
	}
	if len(directives) > 0 {
		s.executor.Execute(ctx, conv, directives, allowRetrigger)
	}

	return OutcomeReplied
}

// resolveAgent picks the conversation's assigned agent when it is still
// active, otherwise requires the tenant to have exactly one active agent.
func (s *ResponderService) resolveAgent(ctx context.Context, conv *model.Conversation) (*model.Agent, bool) {
	log := logger.FromContext(ctx)

	if conv.AssignedAgentID != nil {
		agent, err := s.agentRepo.FindByID(ctx, *conv.AssignedAgentID)
		if err == nil && agent.Active {
			return agent, true
		}
		log.Debug("Assigned agent missing or inactive, falling back to account lookup")
	}

	agents, err := s.agentRepo.FindActiveByAccount(ctx)
	if err != nil {
		log.Warn("Active agent lookup failed", zap.Error(err))
		return nil, false
	}
	if len(agents) != 1 {
		log.Debug("Tenant does not have exactly one active agent, skipping",
			zap.Int("active_agents", len(agents)))
		return nil, false
	}
	return &agents[0], true
}

// generate assembles the prompt and calls the model once. No retries: a
// failed completion means no reply this cycle, the next inbound message
// arms a fresh one.
func (s *ResponderService) generate(ctx context.Context, account *model.Account, agent *model.Agent, conv *model.Conversation) (string, bool) {
	log := logger.FromContext(ctx)

	// The prompt inputs are independent reads; fetch them concurrently.
	var (
		stages     []model.AgentStage
		faqs       []model.AgentFAQ
		history    []model.Message
		trigger    *model.Message
		historyErr error
	)
	var wg conc.WaitGroup
	wg.Go(func() {
		var err error
		stages, err = s.agentRepo.FindStages(ctx, agent.ID)
		if err != nil {
			log.Warn("Agent stage lookup failed", zap.Error(err))
		}
	})
	wg.Go(func() {
		var err error
		faqs, err = s.agentRepo.FindFAQs(ctx, agent.ID)
		if err != nil {
			log.Warn("Agent FAQ lookup failed", zap.Error(err))
		}
	})
	wg.Go(func() {
		history, historyErr = s.messageRepo.FindRecentByConversation(ctx, conv.ID, historyWindow)
		if t, err := s.messageRepo.FindLastInbound(ctx, conv.ID); err == nil {
			trigger = t
		}
	})
	wg.Wait()
	if historyErr != nil {
		log.Warn("History lookup failed", zap.Error(historyErr))
		return "", false
	}

	turns := BuildPrompt(agent, stages, faqs, history, trigger)

	llmStart := utils.Now()
	resp, err := s.llmClient.Chat(ctx, llm.ChatRequest{
		APIKey:      account.LLMAPIKey,
		Model:       agent.Model,
		Messages:    turns,
		Temperature: agent.Temperature,
		MaxTokens:   agent.MaxTokens,
	})
	if err != nil {
		observer.ObserveLLMRequestDuration(account.ID, "error", time.Since(llmStart))
		log.Warn("Model invocation failed",
			zap.String("model", agent.Model),
			zap.Error(err))
		return "", false
	}
	observer.ObserveLLMRequestDuration(account.ID, "success", time.Since(llmStart))

	if resp.Content == "" {
		log.Warn("Model returned an empty completion",
			zap.String("finish_reason", resp.FinishReason))
		return "", false
	}

	log.Debug("Completion received",
		zap.String("model", agent.Model),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("output_tokens", resp.OutputTokens),
	)
	return resp.Content, true
}
